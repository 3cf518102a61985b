package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/buntdb"
)

// BuntStore implements KV on top of an embedded BuntDB database. BuntDB
// gives native per-key TTL and serializable write transactions, which is
// what the quota counter relies on for its increment-or-reset.
type BuntStore struct {
	db *buntdb.DB
}

// OpenBunt opens a file-backed store; pass ":memory:" for an ephemeral one.
func OpenBunt(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb: %w", err)
	}
	return &BuntStore{db: db}, nil
}

func buntOpts(ttl time.Duration) *buntdb.SetOptions {
	if ttl <= 0 {
		return nil
	}
	return &buntdb.SetOptions{Expires: true, TTL: ttl}
}

// Get returns the value stored at key.
func (s *BuntStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var value string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("buntdb get %q: %w", key, err)
	}
	return value, nil
}

// Set writes value with an optional TTL.
func (s *BuntStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, buntOpts(ttl))
		return err
	})
	if err != nil {
		return fmt.Errorf("buntdb set %q: %w", key, err)
	}
	return nil
}

// Update applies fn to the current value inside a single write transaction.
// Concurrent updates of the same key serialize on the transaction, so the
// read-modify-write is atomic.
func (s *BuntStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var next string
	err := s.db.Update(func(tx *buntdb.Tx) error {
		current, err := tx.Get(key)
		found := true
		if errors.Is(err, buntdb.ErrNotFound) {
			current, found = "", false
		} else if err != nil {
			return err
		}
		next, err = fn(current, found)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(key, next, buntOpts(ttl))
		return err
	})
	if errors.Is(err, ErrSkipUpdate) {
		return "", ErrSkipUpdate
	}
	if err != nil {
		return "", fmt.Errorf("buntdb update %q: %w", key, err)
	}
	return next, nil
}

// Scan lists keys with the given prefix.
func (s *BuntStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("buntdb scan %q: %w", prefix, err)
	}
	return keys, nil
}

// Delete removes a key; deleting an absent key is not an error.
func (s *BuntStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("buntdb delete %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *BuntStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ KV = (*BuntStore)(nil)
