package fetch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PolitenessLimiter holds every request to a host for at least the configured
// delay, and spaces concurrent requests to the same host by the same amount.
type PolitenessLimiter struct {
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	log      *logrus.Entry
}

// NewPolitenessLimiter creates a limiter; a non-positive delay disables waiting.
func NewPolitenessLimiter(delay time.Duration, log *logrus.Entry) *PolitenessLimiter {
	return &PolitenessLimiter{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
		log:      log,
	}
}

// Wait blocks until ctx is done or for at least the full delay. Concurrent
// callers for the same host are released one delay apart.
func (p *PolitenessLimiter) Wait(ctx context.Context, host string) error {
	if p == nil || p.delay <= 0 || host == "" {
		return nil
	}
	// The reservation orders requests to host; the full delay follows it.
	r := p.limiterFor(strings.ToLower(host)).Reserve()
	wait := r.Delay() + p.delay

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
	p.log.WithFields(logrus.Fields{"host": host, "waited": wait}).Trace("Politeness delay applied")
	return nil
}

func (p *PolitenessLimiter) limiterFor(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.delay), 1)
		p.limiters[host] = limiter
	}
	return limiter
}
