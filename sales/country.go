// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package sales

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/biter777/countries"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ordermap/ordermap/utils/textutils"
)

const (
	defaultCountryMemoSize = 256
	minSubstringQuery      = 3
)

// ErrUnknownCountry is returned when a name matches no ISO 3166 country.
var ErrUnknownCountry = errors.New("unknown country")

// Country is an ISO 3166 country.
type Country struct {
	Name   string `json:"name"`
	Alpha2 string `json:"alpha2"`
	Alpha3 string `json:"alpha3"`
}

type countryCandidate struct {
	key  string
	code countries.CountryCode
}

type countryResult struct {
	country Country
	ok      bool
}

// CountryResolver maps free-form country names to ISO 3166 countries. It is
// safe for concurrent use.
type CountryResolver struct {
	candidates []countryCandidate
	memo       *lru.Cache[string, countryResult]
}

// NewCountryResolver creates a resolver that remembers up to memoSize names
// (a default size when memoSize <= 0).
func NewCountryResolver(memoSize int) (*CountryResolver, error) {
	if memoSize <= 0 {
		memoSize = defaultCountryMemoSize
	}

	memo, err := lru.New[string, countryResult](memoSize)
	if err != nil {
		return nil, fmt.Errorf("creating country memo: %w", err)
	}

	all := countries.All()
	candidates := make([]countryCandidate, 0, len(all))

	for _, code := range all {
		if !code.IsValid() {
			continue
		}

		candidates = append(candidates, countryCandidate{key: textutils.MatchKey(code.String()), code: code})
	}

	return &CountryResolver{candidates: candidates, memo: memo}, nil
}

// Resolve returns the country named name. It tries, in order, the ISO names
// and common aliases ("USA", "UK"), a country whose name contains name, and
// the country with the closest name within a small edit distance.
func (r *CountryResolver) Resolve(name string) (Country, error) {
	key := textutils.MatchKey(name)
	if key == "" {
		return Country{}, fmt.Errorf("%w: empty name", ErrUnknownCountry)
	}

	if res, ok := r.memo.Get(key); ok {
		return res.result(name)
	}

	code := r.lookup(name, key)
	res := countryResult{ok: code != countries.Unknown}

	if res.ok {
		res.country = Country{Name: code.String(), Alpha2: code.Alpha2(), Alpha3: code.Alpha3()}
	}

	r.memo.Add(key, res)

	return res.result(name)
}

func (res countryResult) result(name string) (Country, error) {
	if !res.ok {
		return Country{}, fmt.Errorf("%w: %q", ErrUnknownCountry, name)
	}

	return res.country, nil
}

func (r *CountryResolver) lookup(name, key string) countries.CountryCode {
	if code := countries.ByName(name); code.IsValid() {
		return code
	}

	if code := r.bySubstring(key); code != countries.Unknown {
		return code
	}

	return r.byDistance(key)
}

// bySubstring returns the country with the shortest name containing key.
func (r *CountryResolver) bySubstring(key string) countries.CountryCode {
	if len(key) < minSubstringQuery {
		return countries.Unknown
	}

	best, bestLen := countries.Unknown, 0

	for _, c := range r.candidates {
		if !strings.Contains(c.key, key) {
			continue
		}

		if best == countries.Unknown || len(c.key) < bestLen {
			best, bestLen = c.code, len(c.key)
		}
	}

	return best
}

// byDistance returns the country whose name is the fewest edits away from
// key, if that is at most a third of its length.
func (r *CountryResolver) byDistance(key string) countries.CountryCode {
	maxDistance := len(key) / 3
	best, bestDistance := countries.Unknown, maxDistance+1

	for _, c := range r.candidates {
		if d := levenshtein.ComputeDistance(key, c.key); d < bestDistance {
			best, bestDistance = c.code, d
		}
	}

	return best
}
