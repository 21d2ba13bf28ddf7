package worker

import "testing"

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := chunkText("hello world.", DefaultChunkSize, DefaultOverlap)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestChunkText_Empty(t *testing.T) {
	if chunks := chunkText("   ", DefaultChunkSize, DefaultOverlap); chunks != nil {
		t.Fatalf("expected nil for blank text, got %v", chunks)
	}
}

func TestChunkText_SplitsLongTextIntoMultipleChunks(t *testing.T) {
	text := ""
	for i := 0; i < 200; i++ {
		text += "word word word word word word word word word word. "
	}
	chunks := chunkText(text, 50, 5)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("expected chunk index %d, got %d", i, c.Index)
		}
	}
}

func TestPlainTextExtractor(t *testing.T) {
	out, err := PlainTextExtractor([]byte("raw bytes"), "text/plain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "raw bytes" {
		t.Fatalf("expected passthrough, got %q", out)
	}
}
