package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// maxRobotsBytes bounds how much of a robots.txt file is read.
const maxRobotsBytes = 512 << 10

// RobotsHandler fetches, parses and caches robots.txt per host.
// A host whose robots.txt cannot be fetched is treated as allowing everything.
type RobotsHandler struct {
	client    *http.Client
	limiter   *PolitenessLimiter
	userAgent string
	log       *logrus.Entry

	mu    sync.Mutex
	cache map[string]*robotsEntry // scheme://host -> entry
}

type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData // nil = allow all
}

// NewRobotsHandler creates a RobotsHandler that identifies itself with userAgent.
func NewRobotsHandler(client *http.Client, limiter *PolitenessLimiter, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		log:       log,
		cache:     make(map[string]*robotsEntry),
	}
}

// Allowed reports whether the configured user agent may fetch target.
func (rh *RobotsHandler) Allowed(ctx context.Context, target *url.URL) bool {
	data := rh.robotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rh.userAgent)
}

// robotsData returns the cached rules for target's host, fetching them once.
func (rh *RobotsHandler) robotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := target.Scheme + "://" + target.Host

	rh.mu.Lock()
	entry, ok := rh.cache[key]
	if !ok {
		entry = &robotsEntry{}
		rh.cache[key] = entry
	}
	rh.mu.Unlock()

	entry.once.Do(func() {
		entry.data = rh.fetch(ctx, target)
	})
	return entry.data
}

func (rh *RobotsHandler) fetch(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}
	robotsLog := rh.log.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	if err := rh.limiter.Wait(ctx, target.Host); err != nil {
		robotsLog.Warnf("Politeness wait for robots.txt aborted: %v", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		robotsLog.Errorf("Error creating request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rh.userAgent)

	resp, err := rh.client.Do(req)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, allowing all: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		robotsLog.Warnf("Reading robots.txt failed, allowing all: %v", err)
		return nil
	}

	// 4xx allows everything, 5xx disallows everything
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		robotsLog.Warnf("Parsing robots.txt failed, allowing all: %v", err)
		return nil
	}
	robotsLog.WithField("status_code", resp.StatusCode).Info("Loaded robots.txt")
	return data
}
