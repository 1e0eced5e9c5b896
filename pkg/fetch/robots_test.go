package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, hits
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRobotsHandler_Allowed(t *testing.T) {
	server, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /bitesize/private\n")
	rh := NewRobotsHandler(testClient(), NewPolitenessLimiter(0, testLogger()), "test-agent", testLogger())
	ctx := context.Background()

	assert.True(t, rh.Allowed(ctx, mustParse(t, server.URL+"/bitesize/guides/abc")))
	assert.False(t, rh.Allowed(ctx, mustParse(t, server.URL+"/bitesize/private/x")))
	assert.Equal(t, int32(1), hits.Load(), "robots.txt should be fetched once per host")
}

func TestRobotsHandler_StatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		allowed bool
	}{
		{"missing robots allows all", http.StatusNotFound, true},
		{"server error disallows all", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := robotsServer(t, tt.status, "")
			rh := NewRobotsHandler(testClient(), NewPolitenessLimiter(0, testLogger()), "test-agent", testLogger())
			assert.Equal(t, tt.allowed, rh.Allowed(context.Background(), mustParse(t, server.URL+"/bitesize")))
		})
	}
}

func TestRobotsHandler_UnreachableAllowsAll(t *testing.T) {
	server, _ := robotsServer(t, http.StatusOK, "")
	target := mustParse(t, server.URL+"/bitesize")
	server.Close()

	rh := NewRobotsHandler(testClient(), NewPolitenessLimiter(0, testLogger()), "test-agent", testLogger())
	assert.True(t, rh.Allowed(context.Background(), target))
}
