// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ordermap/ordermap/sales"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultH3Resolution is the heatmap resolution when none is requested.
	DefaultH3Resolution = 4

	shutdownTimeout = 5 * time.Second
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Heatmap resolution used when the request doesn't set one
	H3Resolution int
}

// Server serves the dashboard API.
type Server struct {
	repo    Repository
	options ServerOptions
}

// NewServer creates a server on repo.
func NewServer(repo Repository, options ServerOptions) *Server {
	if options.H3Resolution == 0 {
		options.H3Resolution = DefaultH3Resolution
	}

	return &Server{repo: repo, options: options}
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	overview := r.Group("/api/overview")
	overview.GET("/monthly", s.monthlySales)
	overview.GET("/countries", s.countrySales)
	overview.GET("/territories", s.territorySales)
	overview.GET("/quarters", s.quarterlySales)

	orders := r.Group("/api/orders")
	orders.GET("", s.listOrders)
	orders.GET("/by-country", s.countryMonthlySales)
	orders.GET("/heatmap", s.heatmap)

	r.GET("/api/filters", s.filterOptions)

	return r
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", addr).Msg("serving dashboard")

		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		log.Debug().
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func internalError(ctx *gin.Context, err error) {
	log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("request failed")
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) monthlySales(ctx *gin.Context) {
	result, err := s.repo.MonthlySales()
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, orEmpty(result))
}

func (s *Server) countrySales(ctx *gin.Context) {
	result, err := s.repo.CountrySales()
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, orEmpty(result))
}

func (s *Server) territorySales(ctx *gin.Context) {
	result, err := s.repo.TerritorySales()
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, orEmpty(result))
}

func (s *Server) quarterlySales(ctx *gin.Context) {
	result, err := s.repo.QuarterlySales()
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, orEmpty(result))
}

// filterQuery is the query string of the advanced filter endpoints.
type filterQuery struct {
	From        time.Time `form:"from" time_format:"2006-01-02" time_utc:"1"`
	To          time.Time `form:"to" time_format:"2006-01-02" time_utc:"1"`
	DealSize    string    `form:"deal_size"`
	ProductLine string    `form:"product_line"`
	Status      string    `form:"status"`
	Territory   string    `form:"territory"`
	Country     string    `form:"country"`

	MinSales     *float64 `form:"min_sales"`
	MaxSales     *float64 `form:"max_sales"`
	MinPriceEach *float64 `form:"min_price_each"`
	MaxPriceEach *float64 `form:"max_price_each"`
	MinMSRP      *float64 `form:"min_msrp"`
	MaxMSRP      *float64 `form:"max_msrp"`

	Limit int `form:"limit"`
}

// bindFilter parses the filter of the request, answering 400 when it is
// invalid.
func bindFilter(ctx *gin.Context) (*OrderFilter, bool) {
	var q filterQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return nil, false
	}

	filter := &OrderFilter{
		From:        q.From,
		To:          q.To,
		DealSize:    q.DealSize,
		ProductLine: q.ProductLine,
		Status:      q.Status,
		Country:     q.Country,
		Sales:       Range{Min: q.MinSales, Max: q.MaxSales},
		PriceEach:   Range{Min: q.MinPriceEach, Max: q.MaxPriceEach},
		MSRP:        Range{Min: q.MinMSRP, Max: q.MaxMSRP},
		Limit:       q.Limit,
	}

	if q.Territory != "" {
		acronym, ok := sales.TerritoryAcronym(q.Territory)
		if !ok {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown territory %q", q.Territory)})

			return nil, false
		}

		filter.Territory = acronym
	}

	if err := filter.Validate(); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return nil, false
	}

	return filter, true
}

func (s *Server) listOrders(ctx *gin.Context) {
	filter, ok := bindFilter(ctx)
	if !ok {
		return
	}

	result, err := s.repo.Orders(filter)
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, orEmpty(result))
}

func (s *Server) countryMonthlySales(ctx *gin.Context) {
	filter, ok := bindFilter(ctx)
	if !ok {
		return
	}

	result, err := s.repo.CountryMonthlySales(filter)
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, orEmpty(result))
}

func (s *Server) heatmap(ctx *gin.Context) {
	filter, ok := bindFilter(ctx)
	if !ok {
		return
	}

	var q struct {
		Resolution *int `form:"res"`
	}

	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	resolution := s.options.H3Resolution
	if q.Resolution != nil {
		resolution = *q.Resolution
	}

	if resolution < MinH3Resolution || resolution > MaxH3Resolution {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("res must be between %d and %d", MinH3Resolution, MaxH3Resolution),
		})

		return
	}

	result, err := s.repo.Heatmap(filter, resolution)
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"resolution": resolution, "cells": orEmpty(result)})
}

func (s *Server) filterOptions(ctx *gin.Context) {
	result, err := s.repo.FilterOptions()
	if err != nil {
		internalError(ctx, err)

		return
	}

	ctx.JSON(http.StatusOK, result)
}

// orEmpty makes nil slices encode as [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
