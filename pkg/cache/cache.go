// Copyright (C) 2025 JyotiFlow AI (engineering@jyotiflow.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides an embedded BadgerDB cache for upstream API
// responses.
//
// Astrology chart computation is billed per call by the upstream provider,
// so identical lookups (same birth details, same endpoint) are served from
// this cache inside the configured TTL instead of re-billing the API.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Config holds configuration for a cache instance.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// DefaultTTL applies to Set calls with a zero ttl.
	DefaultTTL time.Duration

	// Logger for BadgerDB internals. Nil disables Badger's own logging.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		DefaultTTL:     24 * time.Hour,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		DefaultTTL: time.Hour,
		GCInterval: 0, // disabled
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Cache is a thin TTL key/value layer over BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB handles its own locking.
type Cache struct {
	db         *badger.DB
	defaultTTL time.Duration

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open creates and opens a cache with the given configuration.
// Caller must call Close() when done.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &Cache{db: db, defaultTTL: ttl}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.gcStop = make(chan struct{})
		c.gcDone = make(chan struct{})
		go c.runGC(cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return c, nil
}

// Get returns the value stored under key, or ErrMiss if absent/expired.
func (c *Cache) Get(key string) ([]byte, error) {
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %q: %w", key, err)
	}
	return out, nil
}

// Set stores value under key. A zero ttl uses the configured default.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}

// Close stops the GC loop and closes the underlying database.
func (c *Cache) Close() error {
	if c.gcStop != nil {
		close(c.gcStop)
		<-c.gcDone
		c.gcStop = nil
	}
	return c.db.Close()
}

func (c *Cache) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(c.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there was
			// nothing worth collecting; that is not a failure.
			err := c.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC failed", "error", err)
			}
		}
	}
}
