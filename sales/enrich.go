// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package sales

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/ordermap/ordermap/geocache"
	"github.com/ordermap/ordermap/geocode"
	"github.com/ordermap/ordermap/spatial"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// AddressResolver resolves an address to a point, nil when unknown.
// *geocode.Resolver implements it.
type AddressResolver interface {
	Resolve(ctx context.Context, addr geocode.Address) (*spatial.Point, error)
}

// EnrichMetrics counts the outcome of an enrichment run.
type EnrichMetrics struct {
	Orders           int
	Located          int
	Unlocated        int
	GeocodeErrors    int
	UnknownCountries int
}

// Merge adds the counters of other to m.
func (m *EnrichMetrics) Merge(other *EnrichMetrics) *EnrichMetrics {
	if other == nil {
		return m
	}

	m.Orders += other.Orders
	m.Located += other.Located
	m.Unlocated += other.Unlocated
	m.GeocodeErrors += other.GeocodeErrors
	m.UnknownCountries += other.UnknownCountries

	return m
}

// Enricher fills the coordinates and country codes of orders.
type Enricher struct {
	resolver  AddressResolver
	countries *CountryResolver

	// ShowProgress draws a progress bar on stderr; it defaults to whether
	// stderr is a terminal.
	ShowProgress bool
}

// NewEnricher creates an enricher.
func NewEnricher(resolver AddressResolver, countries *CountryResolver) *Enricher {
	return &Enricher{
		resolver:     resolver,
		countries:    countries,
		ShowProgress: isatty.IsTerminal(os.Stderr.Fd()),
	}
}

// Enrich sets LAT, LONG, ALPHA2 and ALPHA3 on every order, in order.
//
// A row whose address cannot be resolved right now (a transient provider
// failure, a lock timeout) keeps absent coordinates and the run goes on. A
// corrupt cache file or the end of ctx stops the run; the returned metrics
// cover the rows done so far.
func (e *Enricher) Enrich(ctx context.Context, orders []*Order) (EnrichMetrics, error) {
	var metrics EnrichMetrics

	var bar *progressbar.ProgressBar
	if e.ShowProgress {
		bar = progressbar.NewOptions(len(orders),
			progressbar.OptionSetDescription("Geocoding orders"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	for _, order := range orders {
		metrics.Orders++

		point, err := e.resolver.Resolve(ctx, order.Address())
		if err != nil {
			if ctx.Err() != nil || geocache.IsCorrupt(err) {
				return metrics, fmt.Errorf("order %d (line %d): %w", order.OrderNumber, order.line, err)
			}

			metrics.GeocodeErrors++

			log.Warn().Err(err).Uint32("order", order.OrderNumber).Int("line", order.line).
				Msg("could not geocode order, leaving it without coordinates")
		}

		order.SetLocation(point)

		if point != nil {
			metrics.Located++
		} else {
			metrics.Unlocated++
		}

		e.setCountry(order, &metrics)

		if bar != nil {
			if err := bar.Add(1); err != nil {
				log.Debug().Err(err).Msg("updating progress bar")
			}
		}
	}

	log.Info().
		Int("orders", metrics.Orders).
		Int("located", metrics.Located).
		Int("unlocated", metrics.Unlocated).
		Int("geocode_errors", metrics.GeocodeErrors).
		Int("unknown_countries", metrics.UnknownCountries).
		Msg("enrichment complete")

	return metrics, nil
}

func (e *Enricher) setCountry(order *Order, metrics *EnrichMetrics) {
	order.Alpha2, order.Alpha3 = "", ""

	if e.countries == nil || order.Country == "" {
		return
	}

	country, err := e.countries.Resolve(order.Country)
	if err != nil {
		metrics.UnknownCountries++

		log.Debug().Err(err).Str("country", order.Country).Msg("no ISO code for country")

		return
	}

	order.Alpha2, order.Alpha3 = country.Alpha2, country.Alpha3
}
