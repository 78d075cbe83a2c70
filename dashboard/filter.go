// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Range is an inclusive numeric interval. A nil bound is open.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

func (r Range) validate(name string) error {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%s: min %g is greater than max %g", name, *r.Min, *r.Max)
	}

	return nil
}

// OrderFilter selects orders. Zero values match everything.
type OrderFilter struct {
	// Inclusive date range
	From time.Time
	To   time.Time

	DealSize    string
	ProductLine string
	Status      string
	// Territory acronym (APAC, NA, EMEA, Japan)
	Territory string
	Country   string

	Sales     Range
	PriceEach Range
	MSRP      Range

	// Maximum number of orders returned by Repository.Orders, 0 for all
	Limit int
}

// Validate reports inconsistent bounds.
func (f *OrderFilter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("date range: from %s is after to %s",
			f.From.Format(time.DateOnly), f.To.Format(time.DateOnly))
	}

	if f.Limit < 0 {
		return errors.New("limit must not be negative")
	}

	return errors.Join(
		f.Sales.validate("sales"),
		f.PriceEach.validate("price each"),
		f.MSRP.validate("msrp"),
	)
}

// where returns the SQL condition for the filter and its arguments. The
// condition is never empty so it can be combined with AND.
func (f *OrderFilter) where() (string, []any) {
	conds := []string{"TRUE"}

	var args []any

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f == nil {
		return conds[0], nil
	}

	if !f.From.IsZero() {
		add("order_date >= ?", f.From)
	}

	if !f.To.IsZero() {
		add("order_date <= ?", f.To)
	}

	for _, eq := range []struct {
		column, value string
	}{
		{"deal_size", f.DealSize},
		{"product_line", f.ProductLine},
		{"status", f.Status},
		{"territory", f.Territory},
		{"country", f.Country},
	} {
		if eq.value != "" {
			add(eq.column+" = ?", eq.value)
		}
	}

	for _, rng := range []struct {
		column string
		r      Range
	}{
		{"sales", f.Sales},
		{"price_each", f.PriceEach},
		{"msrp", f.MSRP},
	} {
		if rng.r.Min != nil {
			add(rng.column+" >= ?", *rng.r.Min)
		}

		if rng.r.Max != nil {
			add(rng.column+" <= ?", *rng.r.Max)
		}
	}

	return strings.Join(conds, " AND "), args
}
