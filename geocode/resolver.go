// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ordermap/ordermap/geocache"
	"github.com/ordermap/ordermap/spatial"
	"github.com/rs/zerolog/log"
)

// MinInterval is the shortest pause allowed between two provider calls.
const MinInterval = time.Second

// Cache is the storage the Resolver reads through. *geocache.FileCache
// implements it.
type Cache interface {
	Lookup(ctx context.Context, key string) (geocache.Entry, bool, error)
	Store(ctx context.Context, key string, entry geocache.Entry) error
}

// Options configures a Resolver.
type Options struct {
	// Pause after every provider call, successful or not. Values below
	// MinInterval are raised to it.
	Interval time.Duration
}

// Metrics counts what the Resolver did.
type Metrics struct {
	CacheHits         int
	NegativeHits      int
	Misses            int
	ProviderCalls     int
	ProviderErrors    int
	TransientFailures int
}

// Merge adds the counters of other to m.
func (m *Metrics) Merge(other *Metrics) *Metrics {
	if other == nil {
		return m
	}

	m.CacheHits += other.CacheHits
	m.NegativeHits += other.NegativeHits
	m.Misses += other.Misses
	m.ProviderCalls += other.ProviderCalls
	m.ProviderErrors += other.ProviderErrors
	m.TransientFailures += other.TransientFailures

	return m
}

// Resolver resolves addresses to points through the cache, calling the
// geocoder only on a miss and pacing those calls.
type Resolver struct {
	cache    Cache
	geocoder Geocoder
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	metrics Metrics
}

// NewResolver creates a resolver. Wrap the geocoder with Lazy to defer its
// construction to the first miss.
func NewResolver(cache Cache, geocoder Geocoder, options Options) *Resolver {
	return &Resolver{
		cache:    cache,
		geocoder: geocoder,
		interval: max(options.Interval, MinInterval),
		sleep:    sleepContext,
	}
}

// Resolve returns the point for addr, or nil when the address is unknown.
//
// A cached entry, positive or negative, is returned without calling the
// provider, so an address that failed once is never queried again. On a
// miss the provider is called once and the outcome is cached, except for
// transient provider failures (see IsTransient): those are returned as an
// error, and nothing is cached so a later run can try again.
//
// Cache failures (*geocache.CorruptError, *geocache.LockTimeoutError) and
// context errors are returned as well.
func (r *Resolver) Resolve(ctx context.Context, addr Address) (*spatial.Point, error) {
	key := addr.Key()
	if key == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, found, err := r.cache.Lookup(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", key, err)
	}

	if found {
		r.metrics.CacheHits++
		if entry.IsNotFound() {
			r.metrics.NegativeHits++
		}

		return entry.Point, nil
	}

	r.metrics.Misses++

	entry, err = r.query(ctx, key)

	if serr := r.sleep(ctx, r.interval); serr != nil {
		return nil, serr
	}

	if err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", key, err)
	}

	if err := r.cache.Store(ctx, key, entry); err != nil {
		return nil, fmt.Errorf("caching %q: %w", key, err)
	}

	return entry.Point, nil
}

// query calls the geocoder and turns its outcome into a cache entry. It only
// returns an error for outcomes that must not be cached.
func (r *Resolver) query(ctx context.Context, key string) (geocache.Entry, error) {
	r.metrics.ProviderCalls++

	result, err := r.geocoder.Geocode(ctx, key)

	switch {
	case err != nil && ctx.Err() != nil:
		return geocache.Entry{}, ctx.Err()

	case err != nil && IsTransient(err):
		r.metrics.ProviderErrors++
		r.metrics.TransientFailures++

		log.Warn().Err(err).Str("address", key).Stringer("error_type", TypeOf(err)).
			Msg("geocoding failed, leaving address uncached")

		return geocache.Entry{}, err

	case err != nil:
		r.metrics.ProviderErrors++

		log.Warn().Err(err).Str("address", key).Stringer("error_type", TypeOf(err)).
			Msg("geocoding failed, caching address as not found")

		return geocache.NotFound, nil

	case result == nil || result.Status == StatusNoMatch:
		log.Info().Str("address", key).Msg("no geocoding match, caching address as not found")

		return geocache.NotFound, nil

	case !result.Point.IsFinite():
		r.metrics.ProviderErrors++

		log.Warn().Str("address", key).Str("provider", result.Provider).
			Msg("geocoder returned non-finite coordinates, caching address as not found")

		return geocache.NotFound, nil

	default:
		log.Debug().Str("address", key).Str("provider", result.Provider).
			Str("confidence", result.Confidence).Stringer("point", result.Point).Msg("geocoded")

		return geocache.Found(result.Point), nil
	}
}

// Metrics returns a copy of the counters.
func (r *Resolver) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.metrics
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
