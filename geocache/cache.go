// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocache implements a durable geocoding cache shared by cooperating
// processes. The whole store is a single JSON document that is read in full
// and replaced in full on every access, under a cross-process file lock.
package geocache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLockTimeout bounds how long an operation waits for the lock.
	DefaultLockTimeout = 30 * time.Second
	// DefaultLockRetryDelay is the polling interval while waiting for the lock.
	DefaultLockRetryDelay = 10 * time.Millisecond

	lockSuffix = ".lock"
	filePerm   = 0o644
)

// Options configures a FileCache.
type Options struct {
	// Maximum time to wait for the shared or exclusive lock
	LockTimeout time.Duration

	// How often a blocked operation retries the lock
	LockRetryDelay time.Duration
}

// FileCache is a geocoding cache backed by one JSON file. It never keeps the
// file open between calls: every operation opens, locks, reads or writes,
// unlocks and closes on its own.
//
// The lock is taken on a sidecar "<path>.lock" file because writes replace
// the data file through a rename, which would orphan a lock held on it.
type FileCache struct {
	path    string
	options Options
}

// New creates a cache stored at path. The file doesn't need to exist yet.
func New(path string, options Options) *FileCache {
	if options.LockTimeout <= 0 {
		options.LockTimeout = DefaultLockTimeout
	}

	if options.LockRetryDelay <= 0 {
		options.LockRetryDelay = DefaultLockRetryDelay
	}

	return &FileCache{
		path:    filepath.Clean(path),
		options: options,
	}
}

// Path returns the location of the backing file.
func (c *FileCache) Path() string {
	return c.path
}

func (c *FileCache) lockPath() string {
	return c.path + lockSuffix
}

// withLock runs fn while holding the shared or exclusive lock.
func (c *FileCache) withLock(ctx context.Context, exclusive bool, fn func() error) (err error) {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("setting up cache directory: %w", err)
	}

	lock := flock.New(c.lockPath())

	lockCtx, cancel := context.WithTimeout(ctx, c.options.LockTimeout)
	defer cancel()

	var locked bool
	if exclusive {
		locked, err = lock.TryLockContext(lockCtx, c.options.LockRetryDelay)
	} else {
		locked, err = lock.TryRLockContext(lockCtx, c.options.LockRetryDelay)
	}

	if !locked {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return &LockTimeoutError{Path: c.path, Exclusive: exclusive, Wait: c.options.LockTimeout}
		}

		return fmt.Errorf("locking %s: %w", c.lockPath(), err)
	}

	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("unlocking %s: %w", c.lockPath(), uerr))
		}
	}()

	return fn()
}

// load reads and parses the whole store. A missing or blank file is an empty
// store; anything else that doesn't parse is a *CorruptError.
func (c *FileCache) load() (map[string]Entry, error) {
	store := make(map[string]Entry)

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}

		return nil, fmt.Errorf("reading geocode cache: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return store, nil
	}

	if data[0] != '{' {
		return nil, &CorruptError{Path: c.path, Err: errors.New("top level value is not an object")}
	}

	if err := json.Unmarshal(data, &store); err != nil {
		return nil, &CorruptError{Path: c.path, Err: err}
	}

	return store, nil
}

// save replaces the backing file with the serialized store.
func (c *FileCache) save(store map[string]Entry) error {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(store); err != nil {
		return fmt.Errorf("marshaling geocode cache: %w", err)
	}

	if err := renameio.WriteFile(c.path, buf.Bytes(), filePerm, renameio.WithTempDir(filepath.Dir(c.path))); err != nil {
		return fmt.Errorf("writing geocode cache: %w", err)
	}

	return nil
}

// Lookup returns the entry stored for key and whether it was present.
func (c *FileCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := c.withLock(ctx, false, func() error {
		store, err := c.load()
		if err != nil {
			return err
		}

		entry, found = store[key]

		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}

	return entry, found, nil
}

// Store sets the entry for key. The current document is re-read under the
// exclusive lock so writes made by other processes are kept; a concurrent
// write to the same key is overwritten (last writer wins).
func (c *FileCache) Store(ctx context.Context, key string, entry Entry) error {
	if entry.Point != nil && !entry.Point.IsFinite() {
		return fmt.Errorf("refusing to cache non-finite point %s for %q", entry.Point, key)
	}

	return c.withLock(ctx, true, func() error {
		store, err := c.load()
		if err != nil {
			return err
		}

		store[key] = entry

		if err := c.save(store); err != nil {
			return err
		}

		log.Debug().Str("key", key).Stringer("entry", entry).Int("entries", len(store)).Msg("geocode cache updated")

		return nil
	})
}

// Entries returns a snapshot of the whole store.
func (c *FileCache) Entries(ctx context.Context) (map[string]Entry, error) {
	var store map[string]Entry

	err := c.withLock(ctx, false, func() error {
		var err error

		store, err = c.load()

		return err
	})
	if err != nil {
		return nil, err
	}

	return store, nil
}

// Init writes an empty store if the backing file doesn't exist. It reports
// whether the file was created.
func (c *FileCache) Init(ctx context.Context) (bool, error) {
	var created bool

	err := c.withLock(ctx, true, func() error {
		if _, err := os.Stat(c.path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking geocode cache: %w", err)
		}

		if err := c.save(map[string]Entry{}); err != nil {
			return err
		}

		created = true

		return nil
	})

	return created, err
}
