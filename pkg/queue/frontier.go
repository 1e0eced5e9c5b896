package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
)

// frontierItem is a heap entry ordered by (tier, seq).
type frontierItem struct {
	item  models.WorkItem
	seq   uint64 // Insertion order, FIFO within a tier
	index int    // The index of the item in the heap (required by heap interface)
}

type tierHeap []*frontierItem

func (h tierHeap) Len() int { return len(h) }

func (h tierHeap) Less(i, j int) bool {
	if h[i].item.Tier != h[j].item.Tier {
		return h[i].item.Tier < h[j].item.Tier
	}
	return h[i].seq < h[j].seq
}

func (h tierHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *tierHeap) Push(x any) {
	it := x.(*frontierItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *tierHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	*h = old[:n-1]
	return it
}

// Frontier is the crawl's pending-URL queue. Revision pages pop before
// content pages, content before other; ties pop in insertion order.
// Every URL ever pushed is remembered, so a URL is queued at most once per run.
type Frontier struct {
	h      tierHeap
	seen   map[string]struct{}
	seq    uint64
	mu     sync.Mutex
	cond   *sync.Cond // Signalled on push and close
	closed bool
	log    *logrus.Entry
}

// NewFrontier creates an empty, open Frontier.
func NewFrontier(log *logrus.Entry) *Frontier {
	f := &Frontier{
		seen: make(map[string]struct{}),
		log:  log,
	}
	f.cond = sync.NewCond(&f.mu)
	heap.Init(&f.h)
	return f
}

// Push enqueues item unless its URL was pushed before or the frontier is closed.
// Returns true if the item was queued. The check and insert are atomic.
func (f *Frontier) Push(item models.WorkItem) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.log.WithField("url", item.URL).Debug("Frontier closed, dropping URL")
		return false
	}
	if _, dup := f.seen[item.URL]; dup {
		return false
	}
	f.seen[item.URL] = struct{}{}

	f.seq++
	heap.Push(&f.h, &frontierItem{item: item, seq: f.seq})
	f.cond.Signal()
	return true
}

// Pop removes the highest priority item, blocking while the frontier is empty
// and open. Returns false once the frontier is closed.
func (f *Frontier) Pop() (models.WorkItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.h) == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return models.WorkItem{}, false
	}
	it := heap.Pop(&f.h).(*frontierItem)
	return it.item, true
}

// Close stops the frontier, wakes every blocked Pop and discards the items
// still queued. It returns how many were discarded; later calls return 0.
func (f *Frontier) Close() (abandoned int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0
	}
	f.closed = true
	abandoned = len(f.h)
	f.h = nil
	f.cond.Broadcast()
	if abandoned > 0 {
		f.log.WithField("abandoned", abandoned).Debug("Frontier closed with items still queued")
	}
	return abandoned
}

// Len returns the number of queued items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.h)
}

// Seen reports whether url was ever pushed.
func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[url]
	return ok
}

// SeenCount returns the number of distinct URLs ever pushed.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
