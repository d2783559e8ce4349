// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps a BadgerDB instance with context-aware transaction
// helpers. It is the persistence layer for service-global caches that must
// survive restarts (for example, query embedding vectors).
//
// Thread Safety:
//
//	DB is safe for concurrent use. Each transaction is confined to the
//	goroutine that runs the callback.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned by transaction helpers after Close.
var ErrClosed = errors.New("badger: database is closed")

// Config controls how OpenDB opens the database.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool

	// SyncWrites forces an fsync after every write.
	SyncWrites bool
}

// DefaultConfig returns a disk-backed configuration. The caller must set Path.
func DefaultConfig() Config {
	return Config{SyncWrites: false}
}

// InMemoryConfig returns a configuration for an ephemeral in-memory database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is a thin wrapper around *badger.DB.
type DB struct {
	mu     sync.RWMutex
	db     *dgbadger.DB
	closed bool
}

// OpenDB opens (or creates) a BadgerDB with the given configuration.
//
// # Inputs
//
//   - cfg: Database configuration. Path must be non-empty unless InMemory.
//
// # Outputs
//
//   - *DB: The opened database. Caller owns it and must call Close.
//   - error: Non-nil if the directory cannot be opened or is locked.
func OpenDB(cfg Config) (*DB, error) {
	var opts dgbadger.Options
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger: path is required for on-disk database")
		}
		opts = dgbadger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil).WithSyncWrites(cfg.SyncWrites)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return &DB{db: db}, nil
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.View(fn)
}

// WithTxn runs fn inside a read-write transaction and commits it if fn
// returns nil.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Update(fn)
}

// Close flushes and closes the database. Safe to call more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
