// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/ordermap/ordermap/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *FileCache {
	t.Helper()

	return New(filepath.Join(t.TempDir(), "data", "geolocate_cache.json"), Options{})
}

func readRaw(t *testing.T, path string) map[string]json.RawMessage {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw), "cache file must always be valid JSON")

	return raw
}

func TestFileCache_LookupMissingFile(t *testing.T) {
	c := newTestCache(t)

	_, found, err := c.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileCache_LookupEmptyFile(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0o700))
	require.NoError(t, os.WriteFile(c.Path(), nil, 0o600))

	_, found, err := c.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileCache_StoreAndLookup(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	key := "123 Main St, NYC, NY, 10001, USA"
	require.NoError(t, c.Store(ctx, key, Found(spatial.Point{Lng: -73.99, Lat: 40.75})))
	require.NoError(t, c.Store(ctx, "Nowhere", NotFound))

	entry, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, entry.Point)
	assert.Equal(t, -73.99, entry.Point.Lng)
	assert.Equal(t, 40.75, entry.Point.Lat)

	entry, found, err = c.Lookup(ctx, "Nowhere")
	require.NoError(t, err)
	assert.True(t, found, "a negative entry is a hit")
	assert.True(t, entry.IsNotFound())

	raw := readRaw(t, c.Path())
	assert.JSONEq(t, `[-73.99, 40.75]`, string(raw[key]))
	assert.JSONEq(t, `null`, string(raw["Nowhere"]))
}

func TestFileCache_StoreOverwrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Store(ctx, "k", NotFound))
	require.NoError(t, c.Store(ctx, "k", Found(spatial.Point{Lng: 1, Lat: 2})))

	entries, err := c.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, &spatial.Point{Lng: 1, Lat: 2}, entries["k"].Point)
}

func TestFileCache_StoreKeepsForeignWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Store(ctx, "mine", NotFound))

	// Another process rewrote the file in between.
	require.NoError(t, os.WriteFile(c.Path(), []byte(`{"mine": null, "theirs": [3, 4]}`), 0o600))

	require.NoError(t, c.Store(ctx, "later", Found(spatial.Point{Lng: 5, Lat: 6})))

	raw := readRaw(t, c.Path())
	assert.Len(t, raw, 3)
	assert.Contains(t, raw, "theirs")
}

func TestFileCache_StoreRejectsNonFinite(t *testing.T) {
	c := newTestCache(t)

	err := c.Store(context.Background(), "k", Found(spatial.Point{Lng: 0, Lat: math.NaN()}))
	require.Error(t, err)

	_, statErr := os.Stat(c.Path())
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "nothing must be written")
}

func TestFileCache_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "invalid json"},
		{"truncated", `{"a": [1, 2`},
		{"array at top level", `[1, 2]`},
		{"bad entry", `{"a": "somewhere"}`},
		{"short pair", `{"a": [1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCache(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0o700))
			require.NoError(t, os.WriteFile(c.Path(), []byte(tt.content), 0o600))

			_, found, err := c.Lookup(ctx, "a")
			require.Error(t, err)
			assert.False(t, found)
			assert.True(t, IsCorrupt(err), "got %v", err)

			err = c.Store(ctx, "b", NotFound)
			assert.True(t, IsCorrupt(err), "got %v", err)

			// The corrupt file is left untouched for inspection.
			data, err := os.ReadFile(c.Path())
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestFileCache_Init(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	created, err := c.Init(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))

	require.NoError(t, c.Store(ctx, "k", NotFound))

	created, err = c.Init(ctx)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, readRaw(t, c.Path()), 1, "init must not truncate an existing store")
}

func TestFileCache_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "geolocate_cache.json")

	const n = 24

	var wg sync.WaitGroup

	errs := make(chan error, n)

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			// Each writer has its own handle, like separate processes would.
			c := New(path, Options{LockRetryDelay: time.Millisecond})

			key := fmt.Sprintf("%d Main St", i)
			errs <- c.Store(ctx, key, Found(spatial.Point{Lng: float64(i), Lat: float64(-i)}))
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	raw := readRaw(t, path)
	require.Len(t, raw, n)

	entries, err := New(path, Options{}).Entries(ctx)
	require.NoError(t, err)

	for i := range n {
		entry, ok := entries[fmt.Sprintf("%d Main St", i)]
		require.True(t, ok)
		assert.Equal(t, float64(i), entry.Point.Lng)
	}
}

const (
	writerPathEnv = "ORDERMAP_TEST_CACHE_WRITER_PATH"
	writerIDEnv   = "ORDERMAP_TEST_CACHE_WRITER_ID"
	keysPerWriter = 5
)

// TestFileCache_WriterProcess is the body of the child processes started by
// TestFileCache_ConcurrentWriterProcesses; it does nothing when run directly.
func TestFileCache_WriterProcess(t *testing.T) {
	path := os.Getenv(writerPathEnv)
	if path == "" {
		t.Skip("only runs as a child process")
	}

	id := os.Getenv(writerIDEnv)
	c := New(path, Options{LockRetryDelay: time.Millisecond})

	for j := range keysPerWriter {
		key := fmt.Sprintf("%s-%d Main St", id, j)
		require.NoError(t, c.Store(context.Background(), key, Found(spatial.Point{Lng: float64(j), Lat: 1})))
	}
}

func TestFileCache_ConcurrentWriterProcesses(t *testing.T) {
	if testing.Short() {
		t.Skip("starts child processes")
	}

	path := filepath.Join(t.TempDir(), "geolocate_cache.json")

	const n = 8

	cmds := make([]*exec.Cmd, 0, n)

	for i := range n {
		cmd := exec.Command(os.Args[0], "-test.run=^TestFileCache_WriterProcess$", "-test.count=1")
		cmd.Env = append(os.Environ(),
			writerPathEnv+"="+path,
			fmt.Sprintf("%s=%d", writerIDEnv, i),
		)
		require.NoError(t, cmd.Start())

		cmds = append(cmds, cmd)
	}

	for _, cmd := range cmds {
		require.NoError(t, cmd.Wait())
	}

	raw := readRaw(t, path)
	require.Len(t, raw, n*keysPerWriter)

	entries, err := New(path, Options{}).Entries(context.Background())
	require.NoError(t, err)

	for i := range n {
		for j := range keysPerWriter {
			entry, ok := entries[fmt.Sprintf("%d-%d Main St", i, j)]
			require.True(t, ok)
			assert.Equal(t, float64(j), entry.Point.Lng)
		}
	}
}

func TestFileCache_ReadersNeverSeePartialWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Store(ctx, "before", Found(spatial.Point{Lng: 1, Lat: 1})))

	// Simulate a writer that holds the exclusive lock and dies halfway
	// through producing the new document.
	writer := flock.New(c.lockPath())
	require.NoError(t, writer.Lock())

	partial := filepath.Join(filepath.Dir(c.Path()), ".geolocate_cache.json.partial")
	require.NoError(t, os.WriteFile(partial, []byte(`{"before": [1, 1], "after": [2,`), 0o600))

	type result struct {
		entries map[string]Entry
		err     error
	}

	done := make(chan result, 1)

	go func() {
		entries, err := c.Entries(ctx)
		done <- result{entries, err}
	}()

	select {
	case <-done:
		t.Fatal("reader must block while the exclusive lock is held")
	case <-time.After(100 * time.Millisecond):
	}

	// Readers that ignore the lock still see a whole document.
	assert.Len(t, readRaw(t, c.Path()), 1)

	require.NoError(t, writer.Unlock())

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Len(t, r.entries, 1)
		assert.Contains(t, r.entries, "before")
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not resume after the lock was released")
	}
}

func TestFileCache_LockTimeout(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0o700))

	holder := flock.New(c.lockPath())
	require.NoError(t, holder.Lock())

	defer func() { _ = holder.Unlock() }()

	c = New(c.Path(), Options{LockTimeout: 50 * time.Millisecond, LockRetryDelay: 5 * time.Millisecond})

	_, _, err := c.Lookup(ctx, "k")
	require.Error(t, err)

	var timeout *LockTimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.False(t, timeout.Exclusive)

	err = c.Store(ctx, "k", NotFound)
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.True(t, timeout.Exclusive)
}

func TestFileCache_CanceledContext(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.Path()), 0o700))

	holder := flock.New(c.lockPath())
	require.NoError(t, holder.Lock())

	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Lookup(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsLockTimeout(err))
}
