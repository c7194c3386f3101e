package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const BucketSessions = "sessions"

// Summary is the compact per-run record kept in history.
type Summary struct {
	TotalBytes int64   `json:"total_bytes"`
	MeanBps    float64 `json:"mean_bps"`
	PeakBps    float64 `json:"peak_bps"`
	Workers    int     `json:"workers"`
	Completed  int     `json:"completed"`
	TimedOut   int     `json:"timed_out"`
	Failed     int     `json:"failed"`
}

// HistoryItem is one finished session or probe.
type HistoryItem struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Mode        string    `json:"mode"` // "download" or "probe"
	URL         string    `json:"url"`
	IP          string    `json:"ip"`
	Concurrency int       `json:"concurrency"`
	Seconds     float64   `json:"seconds"`
	Summary     Summary   `json:"summary"`
}

type Store struct {
	db *bbolt.DB
}

// NewStore opens the history database under ~/.dlspeed.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(home, ".dlspeed")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return Open(filepath.Join(dir, "history.db"))
}

// Open opens (or creates) a history database at an explicit path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketSessions))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save assigns the item an ID that sorts chronologically and persists it.
func (s *Store) Save(item HistoryItem) (string, error) {
	if item.ID == "" {
		item.ID = fmt.Sprintf("%d_%s", item.Timestamp.UnixNano(), uuid.New().String()[:8])
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketSessions))
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put([]byte(item.ID), data)
	})
	return item.ID, err
}

// List returns history newest first.
func (s *Store) List() []HistoryItem {
	var items []HistoryItem

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketSessions))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err == nil {
				items = append(items, item)
			}
		}
		return nil
	})

	return items
}

func (s *Store) Get(id string) (*HistoryItem, error) {
	var item HistoryItem
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketSessions))
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("item not found")
		}
		return json.Unmarshal(v, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
