// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import "strings"

const keySeparator = ", "

// Address is a structured postal address as it appears in an order row.
// Every field is optional.
type Address struct {
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
}

// Key returns the canonical cache key for the address: its non-empty
// components joined by ", " from the most to the least specific one
// (line 2, line 1, city, state, postal code, country). Absent and blank
// components are skipped, so they produce the same key.
func (a Address) Key() string {
	parts := make([]string, 0, 6)

	for _, part := range []string{
		a.AddressLine2,
		a.AddressLine1,
		a.City,
		a.State,
		a.PostalCode,
		a.Country,
	} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, keySeparator)
}

func (a Address) String() string {
	return a.Key()
}
