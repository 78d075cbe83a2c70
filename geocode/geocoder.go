// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"sync"

	"github.com/ordermap/ordermap/spatial"
)

// Status tells a match apart from a definitive "no match" answer.
type Status int

const (
	// StatusFound means the provider resolved the address.
	StatusFound Status = iota
	// StatusNoMatch means the provider answered but found nothing.
	StatusNoMatch
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

// GeocodingResult represents a geocoding result from any provider.
type GeocodingResult struct {
	Status      Status
	Point       spatial.Point
	Confidence  string // high, medium, low
	Provider    string
	DisplayName string
}

// NoMatch returns the result for an address the provider could not find.
func NoMatch(provider string) *GeocodingResult {
	return &GeocodingResult{Status: StatusNoMatch, Provider: provider}
}

// Geocoder interface for different geocoding providers.
//
// Geocode returns a result with StatusNoMatch when the provider answered but
// found nothing, and an error (preferably a *GeocodingError) when the
// request itself failed.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodingResult, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, address string) (*GeocodingResult, error)

// Geocode calls f.
func (f GeocoderFunc) Geocode(ctx context.Context, address string) (*GeocodingResult, error) {
	return f(ctx, address)
}

// Lazy returns a Geocoder that builds the real one on first use and reuses it
// afterwards. Runs that are fully served by the cache never build a client,
// nor need its credentials.
func Lazy(factory func() (Geocoder, error)) Geocoder {
	build := sync.OnceValues(factory)

	return GeocoderFunc(func(ctx context.Context, address string) (*GeocodingResult, error) {
		g, err := build()
		if err != nil {
			return nil, &GeocodingError{
				Type:    ErrorTypeUnauthorized,
				Message: "initializing geocoder",
				Err:     err,
			}
		}

		return g.Geocode(ctx, address)
	})
}
