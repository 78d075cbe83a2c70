// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ordermap/ordermap/geocache"
	"github.com/ordermap/ordermap/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nyc = Address{
	AddressLine1: "123 Main St",
	City:         "NYC",
	State:        "NY",
	PostalCode:   "10001",
	Country:      "USA",
}

const nycKey = "123 Main St, NYC, NY, 10001, USA"

// fakeGeocoder answers from a table and records every query.
type fakeGeocoder struct {
	mu      sync.Mutex
	answers map[string]*GeocodingResult
	errs    map[string]error
	calls   []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, address string) (*GeocodingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, address)

	if err, ok := f.errs[address]; ok {
		return nil, err
	}

	if res, ok := f.answers[address]; ok {
		return res, nil
	}

	return NoMatch("fake"), nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waits = append(s.waits, d)

	return ctx.Err()
}

func newTestResolver(t *testing.T, g Geocoder) (*Resolver, *geocache.FileCache, *sleepRecorder) {
	t.Helper()

	cache := geocache.New(filepath.Join(t.TempDir(), "geolocate_cache.json"), geocache.Options{
		LockTimeout: time.Second,
	})

	rec := &sleepRecorder{}
	r := NewResolver(cache, g, Options{Interval: time.Second})
	r.sleep = rec.sleep

	return r, cache, rec
}

func TestResolverEndToEnd(t *testing.T) {
	g := &fakeGeocoder{answers: map[string]*GeocodingResult{
		nycKey: {Status: StatusFound, Point: spatial.Point{Lat: 40.75, Lng: -73.99}, Provider: "fake"},
	}}

	r, cache, rec := newTestResolver(t, g)

	p, err := r.Resolve(context.Background(), nyc)
	require.NoError(t, err)
	require.NotNil(t, p)

	if diff := cmp.Diff(spatial.Point{Lat: 40.75, Lng: -73.99}, *p); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(cache.Path())
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `[-73.99, 40.75]`, string(raw[nycKey]))

	assert.Equal(t, []string{nycKey}, g.calls)
	assert.Equal(t, []time.Duration{time.Second}, rec.waits)
}

func TestResolverIsIdempotent(t *testing.T) {
	g := &fakeGeocoder{answers: map[string]*GeocodingResult{
		nycKey: {Status: StatusFound, Point: spatial.Point{Lat: 40.75, Lng: -73.99}},
	}}

	r, _, rec := newTestResolver(t, g)

	first, err := r.Resolve(context.Background(), nyc)
	require.NoError(t, err)

	second, err := r.Resolve(context.Background(), nyc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, g.calls, 1)
	assert.Len(t, rec.waits, 1, "cache hits must not wait")

	assert.Equal(t, Metrics{CacheHits: 1, Misses: 1, ProviderCalls: 1}, r.Metrics())
}

func TestResolverCachesNoMatch(t *testing.T) {
	g := &fakeGeocoder{}
	r, cache, _ := newTestResolver(t, g)

	for range 3 {
		p, err := r.Resolve(context.Background(), nyc)
		require.NoError(t, err)
		assert.Nil(t, p)
	}

	assert.Len(t, g.calls, 1)

	entry, found, err := cache.Lookup(context.Background(), nycKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, entry.IsNotFound())

	assert.Equal(t, 2, r.Metrics().NegativeHits)
}

func TestResolverDefinitiveFailureIsCached(t *testing.T) {
	g := &fakeGeocoder{errs: map[string]error{
		nycKey: &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "invalid request"},
	}}

	r, cache, rec := newTestResolver(t, g)

	p, err := r.Resolve(context.Background(), nyc)
	require.NoError(t, err)
	assert.Nil(t, p)

	entry, found, err := cache.Lookup(context.Background(), nycKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, entry.IsNotFound())

	assert.Len(t, rec.waits, 1, "failed calls still wait")
	assert.Equal(t, 1, r.Metrics().ProviderErrors)
}

func TestResolverTransientFailureIsNotCached(t *testing.T) {
	g := &fakeGeocoder{errs: map[string]error{
		nycKey: &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate limit reached"},
	}}

	r, cache, rec := newTestResolver(t, g)

	p, err := r.Resolve(context.Background(), nyc)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, IsTransient(err))
	assert.True(t, IsRateLimitError(err))

	_, found, err := cache.Lookup(context.Background(), nycKey)
	require.NoError(t, err)
	assert.False(t, found)

	// The next run asks again.
	_, _ = r.Resolve(context.Background(), nyc)
	assert.Len(t, g.calls, 2)
	assert.Len(t, rec.waits, 2)
	assert.Equal(t, 2, r.Metrics().TransientFailures)
}

func TestResolverSendsOneRequestPerMiss(t *testing.T) {
	var requests atomic.Int32

	g := newTestMapbox(t, func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	r, cache, rec := newTestResolver(t, g)

	p, err := r.Resolve(context.Background(), nyc)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, IsTransient(err))

	assert.Equal(t, int32(1), requests.Load())
	assert.Len(t, rec.waits, 1)

	_, found, err := cache.Lookup(context.Background(), nycKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolverEmptyAddress(t *testing.T) {
	g := &fakeGeocoder{}
	r, cache, _ := newTestResolver(t, g)

	p, err := r.Resolve(context.Background(), Address{City: "  "})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, g.calls)

	_, err = os.Stat(cache.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist), "empty address must not touch the cache")
}

func TestResolverCorruptCache(t *testing.T) {
	g := &fakeGeocoder{}
	r, cache, _ := newTestResolver(t, g)

	require.NoError(t, os.WriteFile(cache.Path(), []byte(`[1, 2]`), 0o644))

	_, err := r.Resolve(context.Background(), nyc)
	require.Error(t, err)
	assert.True(t, geocache.IsCorrupt(err))
	assert.Empty(t, g.calls)
}

func TestResolverCanceledWhileWaiting(t *testing.T) {
	g := &fakeGeocoder{answers: map[string]*GeocodingResult{
		nycKey: {Status: StatusFound, Point: spatial.Point{Lat: 1, Lng: 2}},
	}}

	r, cache, _ := newTestResolver(t, g)

	ctx, cancel := context.WithCancel(context.Background())
	r.sleep = func(context.Context, time.Duration) error {
		cancel()

		return ctx.Err()
	}

	_, err := r.Resolve(ctx, nyc)
	require.ErrorIs(t, err, context.Canceled)

	_, found, err := cache.Lookup(context.Background(), nycKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolverRejectsNonFiniteResult(t *testing.T) {
	g := &fakeGeocoder{answers: map[string]*GeocodingResult{
		nycKey: {Status: StatusFound, Point: spatial.Point{Lat: 0, Lng: math.Inf(1)}},
	}}

	r, _, _ := newTestResolver(t, g)

	p, err := r.Resolve(context.Background(), nyc)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewResolverClampsInterval(t *testing.T) {
	r := NewResolver(nil, nil, Options{Interval: 10 * time.Millisecond})
	assert.Equal(t, MinInterval, r.interval)

	r = NewResolver(nil, nil, Options{Interval: 3 * time.Second})
	assert.Equal(t, 3*time.Second, r.interval)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepContext(ctx, time.Hour)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestLazyBuildsOnce(t *testing.T) {
	builds := 0
	g := Lazy(func() (Geocoder, error) {
		builds++

		return &fakeGeocoder{}, nil
	})

	assert.Equal(t, 0, builds)

	for range 3 {
		_, err := g.Geocode(context.Background(), "x")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, builds)
}

func TestLazyFactoryErrorIsTransient(t *testing.T) {
	g := Lazy(func() (Geocoder, error) {
		return nil, errors.New("mapbox access token is required (MAPBOX_KEY)")
	})

	_, err := g.Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeUnauthorized, TypeOf(err))
	assert.True(t, IsTransient(err))
}

func TestResolverNeverBuildsGeocoderOnHits(t *testing.T) {
	built := false
	g := Lazy(func() (Geocoder, error) {
		built = true

		return &fakeGeocoder{}, nil
	})

	r, cache, _ := newTestResolver(t, g)
	require.NoError(t, cache.Store(context.Background(), nycKey, geocache.Found(spatial.Point{Lat: 1, Lng: 2})))

	p, err := r.Resolve(context.Background(), nyc)
	require.NoError(t, err)
	assert.Equal(t, &spatial.Point{Lat: 1, Lng: 2}, p)
	assert.False(t, built)
}

func TestMetricsMerge(t *testing.T) {
	m := &Metrics{CacheHits: 1, Misses: 2}
	m.Merge(&Metrics{CacheHits: 3, ProviderCalls: 2, TransientFailures: 1}).Merge(nil)

	assert.Equal(t, &Metrics{CacheHits: 4, Misses: 2, ProviderCalls: 2, TransientFailures: 1}, m)
}
