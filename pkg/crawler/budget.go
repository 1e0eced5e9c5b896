package crawler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Budget limits how many pages a run crawls. A worker reserves a unit before
// popping work and either commits it (page crawled) or releases it (page
// discarded or failed). Committed units are never returned to the semaphore,
// so reservations never exceed the remaining budget and committed pages never
// exceed the maximum.
type Budget struct {
	sem       *semaphore.Weighted
	max       int64
	committed atomic.Int64
	ctx       context.Context // Cancelled once the budget is spent or stopped
	cancel    context.CancelFunc
}

// NewBudget creates a Budget of max pages.
func NewBudget(max int) *Budget {
	b := &Budget{max: int64(max)}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	if max <= 0 {
		b.cancel()
		max = 0
	}
	b.sem = semaphore.NewWeighted(int64(max))
	return b
}

// Acquire reserves one unit. It blocks while in-flight reservations could
// exhaust the budget, and returns false once the budget is spent or ctx is done.
func (b *Budget) Acquire(ctx context.Context) bool {
	stop := context.AfterFunc(ctx, b.Stop)
	defer stop()

	if b.ctx.Err() != nil {
		return false
	}
	if err := b.sem.Acquire(b.ctx, 1); err != nil {
		return false
	}
	// Spent or stopped while the acquire raced the cancel
	if b.ctx.Err() != nil {
		b.sem.Release(1)
		return false
	}
	return true
}

// Release returns a reservation. commit counts it as a crawled page.
func (b *Budget) Release(commit bool) {
	if !commit {
		b.sem.Release(1)
		return
	}
	if b.committed.Add(1) >= b.max {
		b.cancel()
	}
}

// Stop wakes every waiter; later calls to Acquire return false.
func (b *Budget) Stop() {
	b.cancel()
}

// Committed returns the number of crawled pages.
func (b *Budget) Committed() int {
	return int(b.committed.Load())
}

// Exhausted reports whether every unit has been committed.
func (b *Budget) Exhausted() bool {
	return b.committed.Load() >= b.max
}
