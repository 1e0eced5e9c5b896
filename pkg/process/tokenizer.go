package process

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultEncoding is used when no tokenizer encoding is configured.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens with a fixed tiktoken encoding.
// A Tokenizer is safe for concurrent use.
type Tokenizer struct {
	encoding string
	codec    tokenizer.Codec
}

// NewTokenizer loads the named encoding. Common encodings: "cl100k_base",
// "o200k_base", "p50k_base". An empty name selects DefaultEncoding.
func NewTokenizer(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	var enc tokenizer.Encoding
	switch encoding {
	case "cl100k_base":
		enc = tokenizer.Cl100kBase
	case "p50k_base":
		enc = tokenizer.P50kBase
	case "p50k_edit":
		enc = tokenizer.P50kEdit
	case "r50k_base":
		enc = tokenizer.R50kBase
	case "o200k_base":
		enc = tokenizer.O200kBase
	default:
		return nil, fmt.Errorf("unknown tokenizer encoding %q", encoding)
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", encoding, err)
	}
	return &Tokenizer{encoding: encoding, codec: codec}, nil
}

// Encoding returns the encoding name.
func (t *Tokenizer) Encoding() string {
	return t.encoding
}

// Count returns the number of tokens in text.
// Returns -1 if t is nil or encoding fails, so callers can tell
// "not available" from a real zero count.
func (t *Tokenizer) Count(text string) int {
	if t == nil || t.codec == nil {
		return -1
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
