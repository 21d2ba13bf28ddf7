package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float64{0.1, 0.2, float64(len(req.Prompt))}})
	}))
	defer srv.Close()

	c := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 3)
	out, err := c.Embed(context.Background(), []string{"hello", "world!"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(out))
	}
	if out[0][2] != 5 {
		t.Fatalf("expected third component 5 (len(\"hello\")), got %v", out[0][2])
	}
	if c.Dimensions() != 3 {
		t.Fatalf("expected dims 3, got %d", c.Dimensions())
	}
}

func TestOllamaEmbedder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	c := NewOllamaEmbedder(srv.URL, "m", 3)
	_, err := c.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", httpErr.StatusCode)
	}
}

func TestOllamaChat_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResp{Message: ChatMessage{Role: "assistant", Content: "hi there"}, Done: true})
	}))
	defer srv.Close()

	c := NewOllamaChat(srv.URL, "llama3")
	out, err := c.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hi there" {
		t.Fatalf("expected 'hi there', got %q", out)
	}
}

func TestOllamaChat_ChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		chunks := []ollamaChatResp{
			{Message: ChatMessage{Content: "hi "}},
			{Message: ChatMessage{Content: "there"}, Done: true},
		}
		for _, c := range chunks {
			json.NewEncoder(w).Encode(c)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c := NewOllamaChat(srv.URL, "llama3")
	var got string
	err := c.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hello"}}, func(tok string) {
		got += tok
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if got != "hi there" {
		t.Fatalf("expected 'hi there', got %q", got)
	}
}
