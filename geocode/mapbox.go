// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ordermap/ordermap/spatial"
	"github.com/tidwall/gjson"
)

const (
	mapboxProvider = "mapbox"
	mapboxBaseURL  = "https://api.mapbox.com/geocoding/v5/mapbox.places/"
	maxBodySize    = 1 << 20
)

// MapboxGeocoder uses the Mapbox Geocoding API.
type MapboxGeocoder struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// NewMapboxGeocoder creates a new Mapbox geocoder. A nil httpClient gets the
// default client from NewHTTPClient.
func NewMapboxGeocoder(accessToken string, httpClient *http.Client) (*MapboxGeocoder, error) {
	if accessToken == "" {
		return nil, errors.New("mapbox access token is required (MAPBOX_KEY)")
	}

	if httpClient == nil {
		httpClient = NewHTTPClient(HTTPOptions{})
	}

	return &MapboxGeocoder{
		accessToken: accessToken,
		baseURL:     mapboxBaseURL,
		httpClient:  httpClient,
	}, nil
}

// Geocode implements Geocoder.
func (g *MapboxGeocoder) Geocode(ctx context.Context, address string) (*GeocodingResult, error) {
	params := url.Values{}
	params.Set("access_token", g.accessToken)
	params.Set("limit", "1")

	reqURL := g.baseURL + url.PathEscape(address) + ".json?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: unwrapURLError(err)}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, gjson.GetBytes(body, "message").String())
	}

	if !gjson.ValidBytes(body) {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding mapbox response: invalid JSON"}
	}

	feature := gjson.GetBytes(body, "features.0")
	if !feature.Exists() {
		return NoMatch(mapboxProvider), nil
	}

	center := feature.Get("center").Array()
	if len(center) != 2 {
		return nil, &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("mapbox feature has no usable center: %s", feature.Get("center").Raw),
		}
	}

	point := spatial.Point{Lng: center[0].Float(), Lat: center[1].Float()}
	if !point.IsFinite() {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "mapbox returned non-finite coordinates"}
	}

	return &GeocodingResult{
		Status:      StatusFound,
		Point:       point,
		Confidence:  relevanceConfidence(feature.Get("relevance").Float()),
		Provider:    mapboxProvider,
		DisplayName: feature.Get("place_name").String(),
	}, nil
}

// relevanceConfidence maps the Mapbox relevance score (0..1) to a
// confidence level.
func relevanceConfidence(relevance float64) string {
	switch {
	case relevance >= 0.9:
		return "high"
	case relevance >= 0.6:
		return "medium"
	default:
		return "low"
	}
}
