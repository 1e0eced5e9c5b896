package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
)

// VisitedStore is the set of URLs the crawl has finished with, successfully or not.
// It only grows during a run and is discarded with it.
type VisitedStore interface {
	// MarkVisited records url with entry. The check and insert are atomic.
	// Returns true if url was newly added, false if it was already visited (entry is then ignored)
	MarkVisited(url string, entry models.VisitEntry) (bool, error)

	// IsVisited reports whether url has been marked visited
	IsVisited(url string) (bool, error)

	// CheckPageStatus retrieves the status and entry of url
	// Returns PageStatusNotFound with a nil entry when url was never marked
	CheckPageStatus(url string) (models.PageStatus, *models.VisitEntry, error)

	// VisitedCount returns the number of visited URLs
	VisitedCount() (int, error)

	// WriteVisitedLog writes every visited URL and its status, sorted by URL, to filePath
	WriteVisitedLog(filePath string) error

	// Close releases the store's resources
	Close() error
}

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// New opens the visited store backend named by kind ("memory" or "badger").
func New(kind string, log *logrus.Entry) (VisitedStore, error) {
	switch kind {
	case "", BackendMemory:
		return NewMemoryStore(log), nil
	case BackendBadger:
		return NewBadgerStore(log)
	default:
		return nil, fmt.Errorf("unknown visited store backend %q", kind)
	}
}
