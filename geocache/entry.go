// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ordermap/ordermap/spatial"
)

// Entry is a cached geocoding outcome: a resolved point, or the not-found
// marker when Point is nil. The not-found marker is distinct from a key
// that was never looked up, which is simply absent from the store.
//
// On disk an entry is `[longitude, latitude]` or `null`.
type Entry struct {
	Point *spatial.Point
}

// NotFound is the negative entry stored for addresses the provider could
// not resolve.
var NotFound = Entry{}

// Found returns an entry for a resolved point.
func Found(p spatial.Point) Entry {
	return Entry{Point: &p}
}

// IsNotFound reports whether e is the not-found marker.
func (e Entry) IsNotFound() bool {
	return e.Point == nil
}

func (e Entry) String() string {
	if e.Point == nil {
		return "not found"
	}

	return e.Point.String()
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Point == nil {
		return []byte("null"), nil
	}

	return json.Marshal([2]float64{e.Point.Lng, e.Point.Lat})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		e.Point = nil

		return nil
	}

	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("entry must be null or [longitude, latitude]: %w", err)
	}

	if len(pair) != 2 {
		return fmt.Errorf("entry must be [longitude, latitude], got %d values", len(pair))
	}

	e.Point = &spatial.Point{Lng: pair[0], Lat: pair[1]}

	return nil
}
