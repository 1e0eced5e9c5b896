package process

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk is one retrieval-sized piece of a saved document.
type Chunk struct {
	Content    string
	Headings   []string // Headings that start inside this chunk
	TokenCount int
}

// ChunkerConfig holds configuration for the chunker.
type ChunkerConfig struct {
	MaxChunkSize int // Maximum chunk size in tokens
	ChunkOverlap int // Overlap between consecutive chunks in tokens
}

// DefaultChunkerConfig returns sensible defaults for RAG chunking.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxChunkSize: 512,
		ChunkOverlap: 64,
	}
}

// Chunker splits document bodies on paragraph, line and word boundaries
// so that each chunk stays within a token budget.
type Chunker struct {
	cfg      ChunkerConfig
	tok      *Tokenizer
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a Chunker measuring length with tok.
// If tok is nil, length falls back to the rune count.
func NewChunker(cfg ChunkerConfig, tok *Tokenizer) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultChunkerConfig().MaxChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.MaxChunkSize {
		cfg.ChunkOverlap = cfg.MaxChunkSize / 8
	}

	c := &Chunker{cfg: cfg, tok: tok}
	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		textsplitter.WithChunkSize(cfg.MaxChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithLenFunc(c.length),
	)
	return c
}

func (c *Chunker) length(s string) int {
	if n := c.tok.Count(s); n >= 0 {
		return n
	}
	return len([]rune(s))
}

// Split returns the chunks of body in order. Blank input yields no chunks.
func (c *Chunker) Split(body string) ([]Chunk, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(body)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:    part,
			Headings:   ExtractHeadings([]byte(part)),
			TokenCount: c.length(part),
		})
	}
	return chunks, nil
}
