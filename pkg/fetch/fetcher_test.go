package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
		UserAgent:         "test-agent/1.0",
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// newTestFetcher builds a Fetcher without politeness delay whose sleeps are recorded, not performed.
func newTestFetcher(cfg *config.AppConfig) (*Fetcher, *[]time.Duration) {
	f := NewFetcher(testClient(), NewPolitenessLimiter(0, testLogger()), cfg, testLogger())
	var mu sync.Mutex
	slept := &[]time.Duration{}
	f.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*slept = append(*slept, d)
		mu.Unlock()
		return ctx.Err()
	}
	return f, slept
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		_, _ = io.WriteString(w, "<html><body><p>page body</p></body></html>")
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetch_Success(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, "<html>ok</html>")
	}))
	t.Cleanup(server.Close)

	f, slept := newTestFetcher(testConfig(2))
	res := f.Fetch(context.Background(), server.URL+"/page")

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, "<html>ok</html>", string(res.Body))
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, server.URL+"/page", res.FinalURL)
	assert.Equal(t, "test-agent/1.0", gotAgent)
	assert.Empty(t, *slept)
}

func TestFetch_FailTwiceThenSucceed(t *testing.T) {
	server, attempts := mockServer(t, []int{500, 503, 200})

	f, slept := newTestFetcher(testConfig(2))
	res := f.Fetch(context.Background(), server.URL)

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestFetch_RetriesExhausted(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"server error", http.StatusInternalServerError, utils.ErrServerHTTPError},
		{"not found is retried", http.StatusNotFound, utils.ErrClientHTTPError},
		{"rate limited", http.StatusTooManyRequests, utils.ErrClientHTTPError},
		{"unexpected 3xx", http.StatusNotModified, utils.ErrOtherHTTPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.status})

			f, slept := newTestFetcher(testConfig(2))
			res := f.Fetch(context.Background(), server.URL)

			require.False(t, res.OK())
			assert.ErrorIs(t, res.Err, utils.ErrRetryFailed)
			assert.ErrorIs(t, res.Err, tt.sentinel)
			assert.Equal(t, int32(3), attempts.Load())
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Len(t, *slept, 2)
		})
	}
}

func TestFetch_BackoffStrictlyIncreasing(t *testing.T) {
	server, _ := mockServer(t, []int{500})

	cfg := testConfig(4)
	cfg.MaxRetryDelay = time.Second
	f, slept := newTestFetcher(cfg)
	res := f.Fetch(context.Background(), server.URL)

	require.False(t, res.OK())
	require.Len(t, *slept, 4)
	for i := 1; i < len(*slept); i++ {
		assert.Greater(t, (*slept)[i], (*slept)[i-1], "delay %d should exceed delay %d", i, i-1)
	}
	assert.Equal(t, 10*time.Millisecond, (*slept)[0])
	assert.Equal(t, 80*time.Millisecond, (*slept)[3])
}

func TestFetcher_Backoff(t *testing.T) {
	cfg := &config.AppConfig{InitialRetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}
	f := NewFetcher(testClient(), nil, cfg, testLogger())

	assert.Equal(t, time.Duration(0), f.Backoff(0))
	assert.Equal(t, 1*time.Second, f.Backoff(1))
	assert.Equal(t, 2*time.Second, f.Backoff(2))
	assert.Equal(t, 4*time.Second, f.Backoff(3))
	assert.Equal(t, 5*time.Second, f.Backoff(4), "capped by max_retry_delay")
	assert.Equal(t, 5*time.Second, f.Backoff(40))
}

func TestFetch_EmptyBodyRetried(t *testing.T) {
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = io.WriteString(w, "<p>second time lucky</p>")
	}))
	t.Cleanup(server.Close)

	f, _ := newTestFetcher(testConfig(2))
	res := f.Fetch(context.Background(), server.URL)

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "<p>second time lucky</p>", string(res.Body))
}

func TestFetch_NoRetriesConfigured(t *testing.T) {
	server, attempts := mockServer(t, []int{502})

	f, slept := newTestFetcher(testConfig(0))
	res := f.Fetch(context.Background(), server.URL)

	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, utils.ErrRetryFailed)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Empty(t, *slept)
}

func TestFetch_ContextCancelledNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	f, slept := newTestFetcher(testConfig(3))
	res := f.Fetch(ctx, server.URL)

	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NotErrorIs(t, res.Err, utils.ErrRetryFailed)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, *slept)
}

func TestFetch_MaxPageSizeTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789abcdef")
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(0)
	cfg.MaxPageSizeBytes = 10
	f, _ := newTestFetcher(cfg)
	res := f.Fetch(context.Background(), server.URL)

	require.True(t, res.OK())
	assert.Equal(t, "0123456789", string(res.Body))
}

func TestFetch_InvalidURL(t *testing.T) {
	f, _ := newTestFetcher(testConfig(2))
	res := f.Fetch(context.Background(), "http://[::1")

	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, utils.ErrRequestCreation)
	assert.Equal(t, 0, res.Attempts)
}

func TestFetch_PolitenessDelayBeforeEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "<p>ok</p>")
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(1)
	cfg.InitialRetryDelay = 50 * time.Millisecond
	f := NewFetcher(testClient(), NewPolitenessLimiter(50*time.Millisecond, testLogger()), cfg, testLogger())

	start := time.Now()
	res := f.Fetch(context.Background(), server.URL)

	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hits, 2)
	assert.GreaterOrEqual(t, hits[0].Sub(start), 45*time.Millisecond, "first attempt waits the politeness delay")
	// The backoff sleep does not count towards the politeness delay
	assert.GreaterOrEqual(t, hits[1].Sub(hits[0]), 95*time.Millisecond)
}
