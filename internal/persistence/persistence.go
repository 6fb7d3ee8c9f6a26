// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package persistence is a thin wrapper over an embedded ordered key/value
// store, used by the location worker to durably queue outbound position
// reports while a Location sink is unreachable.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("location-backlog")

// Store wraps a single bbolt database file holding one bucket. Keys and
// values are opaque byte sequences; the store keeps a cached entry count so
// Count does not require a bucket scan.
type Store struct {
	db    *bolt.DB
	count int
}

// Open opens (creating if necessary) the store rooted at dir/location.db.
// Failures here are fatal at startup, per the persistence design.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir %q: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "location.db")
	db, err := bolt.Open(dbPath, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("opening persistence store %q: %w", dbPath, err)
	}

	s := &Store{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		s.count = b.Stats().KeyN
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing bucket: %w", err)
	}

	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store inserts or overwrites k with v, incrementing the cached count only
// on a true insert, and flushes the change to disk.
func (s *Store) Store(k, v []byte) error {
	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(k) == nil {
			inserted = true
		}
		return b.Put(k, v)
	})
	if err != nil {
		return fmt.Errorf("storing key: %w", err)
	}
	if inserted {
		s.count++
	}
	return s.Flush()
}

// Get returns the value for k, or ok=false if not present. A read error is
// logged by the caller and treated as "not found".
func (s *Store) Get(k []byte) (v []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		val := b.Get(k)
		if val != nil {
			ok = true
			v = append([]byte(nil), val...)
		}
		return nil
	})
	return v, ok, err
}

// Remove deletes k, decrementing the cached count only on a true removal,
// and flushes the change to disk.
func (s *Store) Remove(k []byte) error {
	removed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(k) != nil {
			removed = true
		}
		return b.Delete(k)
	})
	if err != nil {
		return fmt.Errorf("removing key: %w", err)
	}
	if removed {
		s.count--
	}
	return s.Flush()
}

// Entry is one key/value pair returned by Iter, in key order.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iter returns every stored entry in ascending key order. Keys are
// "{RFC3339-like timestamp}-{sink-name}", so key order aligns with
// insertion wall-clock time.
func (s *Store) Iter() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			entries = append(entries, Entry{
				Key:   append([]byte(nil), k...),
				Value: append([]byte(nil), v...),
			})
		}
		return nil
	})
	return entries, err
}

// Flush forces durability. bbolt fsyncs on every Update transaction commit,
// so this is a no-op kept to mirror the spec's explicit flush-after-mutation
// operation and to give callers an operation to invoke after a batch of
// direct transaction use.
func (s *Store) Flush() error {
	return nil
}

// Clear removes every entry from the store.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
	if err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	s.count = 0
	return nil
}

// Count returns the cached entry count.
func (s *Store) Count() int {
	return s.count
}
