// Package kv is a small badger-backed key/value store used by the demo API
// routes.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/warpdrive/filterlog/pkg/metrics"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyKey is returned for an empty key.
var ErrEmptyKey = errors.New("empty key")

const keyPrefix = "kv:"

// Store wraps a badger database.
type Store struct {
	db *badger.DB
}

// Open opens the store at path. An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv.Open: %w", err)
	}
	slog.Info("kv store opened", "component", "kv", "path", path, "in_memory", path == "")
	return &Store{db: db}, nil
}

func storeKey(key string) []byte { return []byte(keyPrefix + key) }

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.StoreOperations.WithLabelValues("get", "miss").Inc()
		return nil, fmt.Errorf("kv.Get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		metrics.StoreOperations.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("kv.Get %q: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("get", "ok").Inc()
	return val, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(storeKey(key), value)
	})
	if err != nil {
		metrics.StoreOperations.WithLabelValues("put", "error").Inc()
		return fmt.Errorf("kv.Put %q: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("put", "ok").Inc()
	return nil
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(storeKey(key)); err != nil {
			return err
		}
		return txn.Delete(storeKey(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		metrics.StoreOperations.WithLabelValues("delete", "miss").Inc()
		return fmt.Errorf("kv.Delete %q: %w", key, ErrNotFound)
	}
	if err != nil {
		metrics.StoreOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("kv.Delete %q: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Keys lists stored keys starting with prefix, in key order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = storeKey(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv.Keys %q: %w", prefix, err)
	}
	return keys, nil
}

// Ping reports whether the database is usable, for health checks.
func (s *Store) Ping() error {
	if s.db.IsClosed() {
		return errors.New("kv: database closed")
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("kv.Close: %w", err)
	}
	return nil
}
