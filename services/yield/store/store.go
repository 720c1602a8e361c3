// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store caches generated experiments in an in-memory BadgerDB so a
// later optimize call can refer to one by id instead of resending S.
//
// Entries expire after a TTL. Nothing survives a process restart.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianYield/services/yield/experiment"
)

// keyPrefix namespaces experiment entries.
const keyPrefix = "experiment/"

var (
	// ErrNotFound indicates an unknown or expired experiment id.
	ErrNotFound = errors.New("experiment not found")

	// ErrInvalidID indicates an id that is not a UUID.
	ErrInvalidID = errors.New("invalid experiment id")

	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("store is closed")
)

// Config holds configuration for the experiment cache.
type Config struct {
	// TTL is how long an experiment stays retrievable.
	// Default: 1 hour. Zero keeps entries until Close.
	TTL time.Duration

	// Logger receives BadgerDB's internal log lines.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the cache defaults.
func DefaultConfig() Config {
	return Config{TTL: time.Hour}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
// Badger's info lines are chatty, so they go to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

// Store is the experiment cache.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens an in-memory experiment cache.
//
// Outputs:
//
//	*Store - The cache. Caller must call Close() when done.
//	error - Non-nil if BadgerDB cannot be opened.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open experiment cache: %w", err)
	}
	return &Store{db: db, ttl: cfg.TTL}, nil
}

// Put stores an experiment and returns its new id.
func (s *Store) Put(exp *experiment.Experiment) (string, error) {
	if s.db.IsClosed() {
		return "", ErrClosed
	}
	data, err := json.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("encode experiment: %w", err)
	}

	id := uuid.NewString()
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key(id), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", fmt.Errorf("store experiment %s: %w", id, err)
	}
	return id, nil
}

// Get loads an experiment by id.
//
// Outputs:
//
//	*experiment.Experiment - The cached experiment.
//	error - ErrInvalidID, ErrNotFound or ErrClosed.
func (s *Store) Get(id string) (*experiment.Experiment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if s.db.IsClosed() {
		return nil, ErrClosed
	}

	var exp experiment.Experiment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &exp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load experiment %s: %w", id, err)
	}
	return &exp, nil
}

// Delete removes an experiment. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

// Len returns the number of live experiments.
func (s *Store) Len() (int, error) {
	if s.db.IsClosed() {
		return 0, ErrClosed
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Ping reports whether the cache is usable.
func (s *Store) Ping() error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close closes the cache. Safe to call multiple times.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}
