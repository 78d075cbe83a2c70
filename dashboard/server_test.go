// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package dashboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServerTest(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	return NewServer(setupTestRepository(t), ServerOptions{}).Router()
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())

	return v
}

func TestServer_Health(t *testing.T) {
	router := setupServerTest(t)

	w := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_Overview(t *testing.T) {
	router := setupServerTest(t)

	w := get(t, router, "/api/overview/monthly")
	require.Equal(t, http.StatusOK, w.Code)
	monthly := decode[[]PeriodSales](t, w)
	assert.Len(t, monthly, 4)
	assert.Equal(t, "2003-02", monthly[0].Period)

	w = get(t, router, "/api/overview/countries")
	require.Equal(t, http.StatusOK, w.Code)
	countries := decode[[]CountrySales](t, w)
	assert.Equal(t, "Spain", countries[0].Country)

	w = get(t, router, "/api/overview/territories")
	require.Equal(t, http.StatusOK, w.Code)
	territories := decode[[]TerritorySales](t, w)
	assert.Equal(t, "EMEA", territories[0].Territory)

	w = get(t, router, "/api/overview/quarters")
	require.Equal(t, http.StatusOK, w.Code)
	quarters := decode[[]QuarterSales](t, w)
	assert.Equal(t, "2003-Q2", quarters[0].Quarter)
}

func TestServer_Orders(t *testing.T) {
	router := setupServerTest(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "all", query: "", want: 4},
		{name: "territory display name", query: "?territory=North%20America", want: 2},
		{name: "territory acronym", query: "?territory=emea", want: 2},
		{name: "date range", query: "?from=2003-01-01&to=2003-12-31", want: 2},
		{name: "sales range", query: "?min_sales=4000", want: 2},
		{name: "deal size", query: "?deal_size=Large", want: 1},
		{name: "limit", query: "?limit=3", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, "/api/orders"+tt.query)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			orders := decode[[]map[string]any](t, w)
			assert.Len(t, orders, tt.want)
		})
	}
}

func TestServer_OrdersEmptyIsArray(t *testing.T) {
	router := setupServerTest(t)

	w := get(t, router, "/api/orders?country=Atlantis")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_BadRequests(t *testing.T) {
	router := setupServerTest(t)

	for _, target := range []string{
		"/api/orders?from=24/02/2003",
		"/api/orders?min_sales=lots",
		"/api/orders?territory=LATAM",
		"/api/orders?from=2005-01-01&to=2003-01-01",
		"/api/orders?min_msrp=200&max_msrp=100",
		"/api/orders?limit=-1",
		"/api/orders/by-country?max_price_each=abc",
		"/api/orders/heatmap?res=12",
		"/api/orders/heatmap?res=x",
	} {
		t.Run(target, func(t *testing.T) {
			w := get(t, router, target)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			body := decode[map[string]string](t, w)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestServer_ByCountry(t *testing.T) {
	router := setupServerTest(t)

	w := get(t, router, "/api/orders/by-country?territory=NA")
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[[]CountryMonthSales](t, w)
	require.Len(t, got, 2)
	assert.Equal(t, "2004-11", got[0].Month)
}

func TestServer_Heatmap(t *testing.T) {
	router := setupServerTest(t)

	w := get(t, router, "/api/orders/heatmap")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Resolution int            `json:"resolution"`
		Cells      []*HeatmapCell `json:"cells"`
	}

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, DefaultH3Resolution, body.Resolution)
	assert.Len(t, body.Cells, 2)

	w = get(t, router, "/api/orders/heatmap?res=7&country=USA")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 7, body.Resolution)
	assert.Len(t, body.Cells, 1)
}

func TestServer_Filters(t *testing.T) {
	router := setupServerTest(t)

	w := get(t, router, "/api/filters")
	require.Equal(t, http.StatusOK, w.Code)

	opts := decode[FilterOptions](t, w)
	assert.Equal(t, []string{"France", "Spain", "USA"}, opts.Countries)
	assert.Len(t, opts.Territories, 2)
}

func TestServer_RunStopsWithContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	server := NewServer(setupTestRepository(t), ServerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, addr)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
