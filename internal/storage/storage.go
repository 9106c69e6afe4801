// Package storage keeps drift baselines in a BoltDB file so a restarted
// service compares live traffic against the same reference window.
//
// Baselines are stored per model version under "model_capturedAt" keys;
// the newest one for a model wins on load.
package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

const baselinesBucket = "drift_baselines"

// Store provides persistent storage for drift baselines using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database file at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(baselinesBucket)); err != nil {
			return fmt.Errorf("create baselines bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutBaseline stores an encoded baseline captured at the given time.
func (s *Store) PutBaseline(model string, at time.Time, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(baselinesBucket))
		return b.Put(baselineKey(model, at), data)
	})
}

// LatestBaseline returns the newest baseline for model. A model without
// baselines yields nil data and a zero time.
func (s *Store) LatestBaseline(model string) ([]byte, time.Time, error) {
	var (
		data []byte
		at   time.Time
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(baselinesBucket)).Cursor()
		prefix := modelPrefix(model)

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			ts, err := keyTime(k, prefix)
			if err != nil {
				continue // Skip malformed keys
			}
			at = ts
			// v is only valid inside the transaction
			data = append(data[:0], v...)
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, at, nil
}

// Baselines lists the capture times stored for model, oldest first.
func (s *Store) Baselines(model string) ([]time.Time, error) {
	var times []time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(baselinesBucket)).Cursor()
		prefix := modelPrefix(model)

		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if ts, err := keyTime(k, prefix); err == nil {
				times = append(times, ts)
			}
		}
		return nil
	})
	return times, err
}

// ForModel binds the store to one model version.
func (s *Store) ForModel(model string) *ModelBaselines {
	return &ModelBaselines{store: s, model: model}
}

// ModelBaselines reads and writes the baselines of a single model version.
type ModelBaselines struct {
	store *Store
	model string
}

// SaveBaseline stores data as the model's newest baseline.
func (m *ModelBaselines) SaveBaseline(data []byte) error {
	return m.store.PutBaseline(m.model, time.Now(), data)
}

// LoadBaseline returns the model's newest baseline, or nil when none exists.
func (m *ModelBaselines) LoadBaseline() ([]byte, error) {
	data, _, err := m.store.LatestBaseline(m.model)
	return data, err
}

func modelPrefix(model string) []byte {
	return []byte(model + "_")
}

// Fixed-width timestamps keep keys in chronological order.
func baselineKey(model string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%020d", model, at.UnixNano()))
}

func keyTime(key, prefix []byte) (time.Time, error) {
	ns, err := strconv.ParseInt(string(key[len(prefix):]), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ns), nil
}
