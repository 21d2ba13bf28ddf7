package gateway

import "testing"

func TestStaticRegistry_RerankerLookup(t *testing.T) {
	r := NewStaticRegistry([]RerankerConfig{{ID: 1, Model: "rerank-v1"}}, nil)
	rc, err := r.Reranker(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.Model != "rerank-v1" {
		t.Fatalf("expected rerank-v1, got %q", rc.Model)
	}
	if _, err := r.Reranker(2); err == nil {
		t.Fatal("expected error for unknown reranker")
	}
}

func TestStaticRegistry_LLMLookup(t *testing.T) {
	r := NewStaticRegistry(nil, []LLMConfig{{ID: 7, Model: "gpt-local"}})
	lc, err := r.LLM(7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.Model != "gpt-local" {
		t.Fatalf("expected gpt-local, got %q", lc.Model)
	}
	if _, err := r.LLM(8); err == nil {
		t.Fatal("expected error for unknown llm")
	}
}

func TestStaticRegistry_ListsReturnAllEntries(t *testing.T) {
	r := NewStaticRegistry(
		[]RerankerConfig{{ID: 1}, {ID: 2}},
		[]LLMConfig{{ID: 1}},
	)
	if len(r.ListRerankers()) != 2 {
		t.Fatalf("expected 2 rerankers, got %d", len(r.ListRerankers()))
	}
	if len(r.ListLLMs()) != 1 {
		t.Fatalf("expected 1 llm, got %d", len(r.ListLLMs()))
	}
}
