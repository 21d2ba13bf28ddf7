package worker

import (
	"strings"
	"unicode"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

const (
	// DefaultChunkSize is the target number of tokens per chunk.
	DefaultChunkSize = 512
	// DefaultOverlap is the number of overlapping tokens between chunks.
	DefaultOverlap = 50
)

// splitSentences splits text into sentences using punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if r == '\n' || i == len(text)-1 || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				s := strings.TrimSpace(current.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// chunkText splits raw extracted text into a sentence-window chunk set of
// ~chunkSize tokens with overlap, the default ChunkerFunc used when a
// Collection Transform's chunking config names no alternative.
func chunkText(text string, chunkSize, overlap int) []domain.Chunk {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []domain.Chunk{{Index: 0, Content: text}}
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []domain.Chunk
	idx := 0
	start := 0

	for start < len(sentences) {
		var buf strings.Builder
		tokens := 0
		end := start

		for end < len(sentences) {
			words := wordCount(sentences[end])
			if tokens+words > chunkSize && tokens > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteRune(' ')
			}
			buf.WriteString(sentences[end])
			tokens += words
			end++
		}

		chunks = append(chunks, domain.Chunk{Index: idx, Content: buf.String()})
		idx++

		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < overlap {
			newStart--
			overlapTokens += wordCount(sentences[newStart])
		}
		if newStart == start {
			start = end
		} else {
			start = newStart
		}
	}
	return chunks
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// ExtractorFunc turns raw object bytes into plain text, dispatched on
// content type: the collection handler looks the job's ContentType up in
// CollectionDeps.Extractors.
type ExtractorFunc func(content []byte, contentType string) (string, error)

// ChunkerFunc turns extracted text into ordered chunks.
type ChunkerFunc func(text string) []domain.Chunk

// PlainTextExtractor passes content through unchanged, the fallback used
// for text/plain and markdown sources.
func PlainTextExtractor(content []byte, contentType string) (string, error) {
	return string(content), nil
}

// DefaultChunker wraps chunkText with the package defaults.
func DefaultChunker(text string) []domain.Chunk {
	return chunkText(text, DefaultChunkSize, DefaultOverlap)
}
