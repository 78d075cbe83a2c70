// Copyright 2026 The OrderMap Authors
//
// SPDX-License-Identifier: Apache-2.0
package spatial

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"
)

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// IsFinite reports whether both coordinates are finite real numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// Cell returns the H3 cell containing the point at the given resolution.
func (p Point) Cell(res int) (h3.Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("spatial: converting %s to h3 cell at res %d: %w", p, res, err)
	}

	return cell, nil
}

// CellCenter returns the center of an H3 cell as a Point.
func CellCenter(cell h3.Cell) (Point, error) {
	latLng, err := h3.CellToLatLng(cell)
	if err != nil {
		return Point{}, fmt.Errorf("spatial: center of h3 cell %s: %w", cell, err)
	}

	return Point{Lat: latLng.Lat, Lng: latLng.Lng}, nil
}
