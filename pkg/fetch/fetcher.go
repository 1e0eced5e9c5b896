package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

// FetchResult is the outcome of fetching one URL. Err is nil on success.
type FetchResult struct {
	URL        string // URL as requested
	FinalURL   string // URL after redirects
	Body       []byte
	StatusCode int // Status of the last attempt, 0 if no response was received
	Attempts   int
	Err        error
}

// OK reports whether the fetch produced markup.
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetcher retrieves page markup with a politeness wait before every attempt
// and exponential backoff between attempts. It does not track visitation.
type Fetcher struct {
	client  *http.Client
	limiter *PolitenessLimiter
	cfg     *config.AppConfig // Retry settings, user agent and page size cap
	log     *logrus.Entry
	sleep   sleepFunc
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, limiter *PolitenessLimiter, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		limiter: limiter,
		cfg:     cfg,
		log:     log,
		sleep:   sleepContext,
	}
}

// Backoff returns the delay before retry number retry (1-based):
// initial_retry_delay * 2^(retry-1), capped by max_retry_delay.
func (f *Fetcher) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	delay := f.cfg.InitialRetryDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if f.cfg.MaxRetryDelay > 0 && delay >= f.cfg.MaxRetryDelay {
			return f.cfg.MaxRetryDelay
		}
	}
	if f.cfg.MaxRetryDelay > 0 && delay > f.cfg.MaxRetryDelay {
		return f.cfg.MaxRetryDelay
	}
	return delay
}

// CloseIdleConnections releases the keep-alive connections of the underlying client.
func (f *Fetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}

// Fetch retrieves rawURL. Transport errors, body read errors, empty bodies and
// non-2xx statuses are retried up to MaxRetries times; context cancellation is not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	result := FetchResult{URL: rawURL}
	reqLog := f.log.WithField("url", rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		result.Err = fmt.Errorf("%w: invalid URL %q: %v", utils.ErrRequestCreation, rawURL, err)
		return result
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.Backoff(attempt)
			reqLog.WithFields(logrus.Fields{
				"attempt":     attempt,
				"max_retries": f.cfg.MaxRetries,
				"delay":       delay,
				"error":       lastErr,
			}).Warn("Retrying request...")
			if err := f.sleep(ctx, delay); err != nil {
				result.Err = fmt.Errorf("context done during retry delay after error (%v): %w", lastErr, err)
				return result
			}
		}

		if err := f.limiter.Wait(ctx, u.Host); err != nil {
			result.Err = fmt.Errorf("politeness wait: %w", err)
			return result
		}

		result.Attempts++
		body, status, finalURL, err := f.attempt(ctx, rawURL)
		result.StatusCode = status
		if err == nil {
			result.Body = body
			result.FinalURL = finalURL
			reqLog.WithFields(logrus.Fields{"status_code": status, "attempt": attempt, "bytes": len(body)}).Debug("Successfully fetched")
			return result
		}

		// Cancellation or global timeout: stop immediately, never retry
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Err = ctxErr
			return result
		}
		if errors.Is(err, utils.ErrRequestCreation) {
			result.Err = err
			return result
		}

		lastErr = err
		reqLog.WithFields(logrus.Fields{"attempt": attempt, "status_code": status}).Debugf("Fetch attempt failed: %v", err)
	}

	reqLog.WithField("error_type", utils.CategorizeError(lastErr)).Errorf("All %d fetch attempts failed. Last error: %v", result.Attempts, lastErr)
	result.Err = fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	return result
}

// attempt performs one GET and returns the body of a 2xx response.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (body []byte, status int, finalURL string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	finalURL = resp.Request.URL.String()

	if status < 200 || status >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, status, finalURL, statusError(status)
	}

	var reader io.Reader = resp.Body
	if f.cfg.MaxPageSizeBytes > 0 {
		reader = io.LimitReader(resp.Body, f.cfg.MaxPageSizeBytes)
	}
	body, err = io.ReadAll(reader)
	if err != nil {
		return nil, status, finalURL, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if len(body) == 0 {
		return nil, status, finalURL, utils.ErrEmptyBody
	}
	return body, status, finalURL, nil
}

func statusError(status int) error {
	switch {
	case status >= 500:
		return fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, status)
	case status >= 400:
		return fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, status)
	default:
		return fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, status)
	}
}
