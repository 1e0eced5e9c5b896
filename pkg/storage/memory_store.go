package storage

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
)

// MemoryStore is a map-backed VisitedStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.VisitEntry
	log     *logrus.Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(log *logrus.Entry) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]models.VisitEntry),
		log:     log,
	}
}

func (s *MemoryStore) MarkVisited(url string, entry models.VisitEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[url]; exists {
		return false, nil
	}
	s.entries[url] = entry
	return true, nil
}

func (s *MemoryStore) IsVisited(url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[url]
	return ok && entry.Status.IsVisited(), nil
}

func (s *MemoryStore) CheckPageStatus(url string) (models.PageStatus, *models.VisitEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[url]
	if !ok {
		return models.PageStatusNotFound, nil, nil
	}
	return entry.Status, &entry, nil
}

func (s *MemoryStore) VisitedCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) WriteVisitedLog(filePath string) error {
	s.mu.RLock()
	records := make([]visitRecord, 0, len(s.entries))
	for url, entry := range s.entries {
		records = append(records, visitRecord{url: url, entry: entry})
	}
	s.mu.RUnlock()

	return writeVisitedLog(filePath, records, s.log)
}

func (s *MemoryStore) Close() error {
	return nil
}
