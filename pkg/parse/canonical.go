package parse

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// ErrUncrawlable marks hrefs that can never be fetched (mailto:, tel:, javascript:, bare fragments).
var ErrUncrawlable = errors.New("uncrawlable link")

var uncrawlablePrefixes = []string{"mailto:", "tel:", "javascript:", "#"}

// Canonicalize resolves raw against base and returns its canonical form:
// scheme://host/path[?query] with the fragment dropped and trailing slashes
// stripped from the path. base may be empty when raw is absolute.
func Canonicalize(raw, base string) (string, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", fmt.Errorf("%w: empty URL", utils.ErrParsing)
	}
	lower := strings.ToLower(ref)
	for _, p := range uncrawlablePrefixes {
		if strings.HasPrefix(lower, p) {
			return "", fmt.Errorf("%w: %q", ErrUncrawlable, raw)
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL %q: %v", utils.ErrParsing, raw, err)
	}

	if !u.IsAbs() {
		if base == "" {
			return "", fmt.Errorf("%w: relative URL %q without base", utils.ErrParsing, raw)
		}
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: invalid base URL %q: %v", utils.ErrParsing, base, err)
		}
		u = b.ResolveReference(u)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme in URL %q", utils.ErrParsing, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: URL %q has no host", utils.ErrParsing, raw)
	}

	return CanonicalizeURL(u), nil
}

// CanonicalizeURL renders an already-parsed absolute URL in canonical form.
// Scheme and host are lowercased and default ports dropped; path and query are kept verbatim.
// Does not modify the input *url.URL
func CanonicalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
			if strings.Contains(h, ":") {
				host = "[" + h + "]" // IPv6 literal
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString("://")
	sb.WriteString(host)
	sb.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if u.RawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(u.RawQuery)
	}
	return sb.String()
}
