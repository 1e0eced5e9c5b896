package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bitesize-scraper/pkg/log"
	"github.com/Sriram-PR/bitesize-scraper/pkg/models"
	"github.com/Sriram-PR/bitesize-scraper/pkg/utils"
)

const visitedKeyPrefix = "visited:"

// BadgerStore implements VisitedStore on an in-memory BadgerDB instance.
// Nothing is written to disk, so no crawl state outlives the process.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) VisitedCount
}

// NewBadgerStore opens an in-memory BadgerDB.
func NewBadgerStore(logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open in-memory badger: %w", utils.ErrDatabase, err)
	}
	logger.Debug("In-memory visited store opened")
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on the same key can return badger.ErrConflict;
// re-running the transaction observes the winner's write.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func visitedKey(url string) []byte {
	return []byte(visitedKeyPrefix + url)
}

func (s *BadgerStore) MarkVisited(url string, entry models.VisitEntry) (bool, error) {
	key := visitedKey(url)
	value, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("%w: marshal visit entry for '%s': %w", utils.ErrParsing, url, err)
	}

	added := false
	err = s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		_, errGet := txn.Get(key)
		if errGet == nil {
			return nil // Already visited
		}
		if !errors.Is(errGet, badger.ErrKeyNotFound) {
			return errGet
		}
		if errSet := txn.Set(key, value); errSet != nil {
			return errSet
		}
		added = true
		return nil
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkVisited: %v", err)
		return false, fmt.Errorf("%w: marking '%s': %w", utils.ErrDatabase, url, err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

func (s *BadgerStore) IsVisited(url string) (bool, error) {
	status, _, err := s.CheckPageStatus(url)
	if err != nil {
		return false, err
	}
	return status.IsVisited(), nil
}

func (s *BadgerStore) CheckPageStatus(url string) (models.PageStatus, *models.VisitEntry, error) {
	key := visitedKey(url)
	status := models.PageStatusNotFound
	var entry *models.VisitEntry

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return errGet
		}
		return item.Value(func(val []byte) error {
			var decoded models.VisitEntry
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("%w: decode visit entry: %w", utils.ErrParsing, err)
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in CheckPageStatus for key '%s': %v", string(key), errView)
		return models.PageStatusDBError, nil, fmt.Errorf("%w: reading '%s': %w", utils.ErrDatabase, url, errView)
	}
	return status, entry, nil
}

func (s *BadgerStore) VisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	var records []visitRecord
	prefix := []byte(visitedKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			url := string(item.Key()[len(prefix):])
			var entry models.VisitEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				s.log.Warnf("Skipping undecodable visit entry for '%s': %v", url, err)
				continue
			}
			records = append(records, visitRecord{url: url, entry: entry})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: iterate visited store: %w", utils.ErrDatabase, err)
	}
	return writeVisitedLog(filePath, records, s.log)
}

func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", utils.ErrDatabase, err)
	}
	return nil
}
