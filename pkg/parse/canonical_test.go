package parse

import (
	"net/url"
	"testing"

	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	const base = "https://site.tld/bitesize/guides/abc/revision/1"

	tests := []struct {
		name     string
		raw      string
		base     string
		expected string
	}{
		{"absolute unchanged", "https://site.tld/bitesize/guides/abc", "", "https://site.tld/bitesize/guides/abc"},
		{"trailing slash stripped", "https://site.tld/bitesize/guides/abc/", "", "https://site.tld/bitesize/guides/abc"},
		{"fragment stripped", "https://site.tld/bitesize/guides/abc#section-2", "", "https://site.tld/bitesize/guides/abc"},
		{"query kept verbatim", "https://site.tld/bitesize/topics?b=2&a=1", "", "https://site.tld/bitesize/topics?b=2&a=1"},
		{"relative path", "../revision/2", base, "https://site.tld/bitesize/guides/abc/revision/2"},
		{"root relative", "/bitesize/subjects/ztrjmp3/", base, "https://site.tld/bitesize/subjects/ztrjmp3"},
		{"protocol relative", "//site.tld/bitesize/x", base, "https://site.tld/bitesize/x"},
		{"host lowercased", "https://SITE.tld/Bitesize/Path", "", "https://site.tld/Bitesize/Path"},
		{"default port dropped", "https://site.tld:443/bitesize", "", "https://site.tld/bitesize"},
		{"non default port kept", "http://127.0.0.1:8080/bitesize/", "", "http://127.0.0.1:8080/bitesize"},
		{"root path", "https://site.tld/", "", "https://site.tld"},
		{"multiple trailing slashes", "https://site.tld/a//", "", "https://site.tld/a"},
		{"escaped path preserved", "https://site.tld/a%20b/", "", "https://site.tld/a%20b"},
		{"ipv6 default port dropped", "https://[::1]:443/a/", "", "https://[::1]/a"},
		{"ipv6 non default port kept", "http://[::1]:8080/a", "", "http://[::1]:8080/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.raw, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCanonicalize_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		base        string
		uncrawlable bool
	}{
		{"mailto", "mailto:someone@site.tld", "https://site.tld", true},
		{"tel", "tel:+441234", "https://site.tld", true},
		{"javascript", "JavaScript:void(0)", "https://site.tld", true},
		{"fragment only", "#top", "https://site.tld", true},
		{"empty", "   ", "https://site.tld", false},
		{"relative without base", "/bitesize/x", "", false},
		{"ftp scheme", "ftp://site.tld/file", "", false},
		{"malformed", "http://[::1", "", false},
		{"no host", "https:///path-only", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonicalize(tt.raw, tt.base)
			require.Error(t, err)
			if tt.uncrawlable {
				assert.ErrorIs(t, err, ErrUncrawlable)
			} else {
				assert.ErrorIs(t, err, utils.ErrParsing)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"https://site.tld/bitesize/guides/abc/revision/1/",
		"https://site.tld/bitesize/topics?page=2#frag",
		"HTTP://Site.TLD:80/a/b//",
		"https://site.tld/",
		"https://[::1]:443/a/",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in, "")
		require.NoError(t, err)
		twice, err := Canonicalize(once, "")
		require.NoError(t, err)
		assert.Equal(t, once, twice, "canonicalize should be idempotent for %q", in)
	}
}

func TestCanonicalize_Equivalence(t *testing.T) {
	variants := []string{
		"https://site.tld/bitesize/guides/abc",
		"https://site.tld/bitesize/guides/abc/",
		"https://site.tld/bitesize/guides/abc#intro",
		"https://site.tld/bitesize/guides/abc/#intro",
	}
	want, err := Canonicalize(variants[0], "")
	require.NoError(t, err)
	for _, v := range variants[1:] {
		got, err := Canonicalize(v, "")
		require.NoError(t, err)
		assert.Equal(t, want, got, "variant %q", v)
	}
}

func TestCanonicalizeURL_NilAndNoMutation(t *testing.T) {
	assert.Equal(t, "", CanonicalizeURL(nil))

	u, err := url.Parse("https://SITE.tld/x/#f")
	require.NoError(t, err)
	_ = CanonicalizeURL(u)
	assert.Equal(t, "SITE.tld", u.Host)
	assert.Equal(t, "f", u.Fragment)
}
