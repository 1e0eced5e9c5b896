package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenizer_DefaultEncoding(t *testing.T) {
	tok, err := NewTokenizer("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEncoding, tok.Encoding())
}

func TestNewTokenizer_UnknownEncoding(t *testing.T) {
	_, err := NewTokenizer("not_an_encoding")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_an_encoding")
}

func TestTokenizer_Count(t *testing.T) {
	tok, err := NewTokenizer("cl100k_base")
	require.NoError(t, err)

	assert.Equal(t, 0, tok.Count(""))

	short := tok.Count("Solve the quadratic equation.")
	long := tok.Count("Solve the quadratic equation by factorising, completing the square or using the formula.")
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestTokenizer_NilReturnsMinusOne(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, -1, tok.Count("anything"))
}
