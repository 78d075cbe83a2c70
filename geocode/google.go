// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/ordermap/ordermap/spatial"
)

const (
	googleProvider = "google_maps"
	googleBaseURL  = "https://maps.googleapis.com/maps/api/geocode/json"
)

// GoogleMapsGeocoder uses Google Maps Geocoding API.
type GoogleMapsGeocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleMapsGeocoder creates a new Google Maps geocoder. A nil httpClient
// gets the default client from NewHTTPClient.
func NewGoogleMapsGeocoder(apiKey string, httpClient *http.Client) (*GoogleMapsGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("google maps api key is required (GOOGLE_MAPS_API_KEY)")
	}

	if httpClient == nil {
		httpClient = NewHTTPClient(HTTPOptions{})
	}

	return &GoogleMapsGeocoder{
		apiKey:     apiKey,
		baseURL:    googleBaseURL,
		httpClient: httpClient,
	}, nil
}

type googleMapsResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

// Geocode implements Geocoder.
func (g *GoogleMapsGeocoder) Geocode(ctx context.Context, address string) (*GeocodingResult, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: unwrapURLError(err)}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, "")
	}

	var gmResp googleMapsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&gmResp); err != nil {
		return nil, &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding google maps response", Err: err}
	}

	switch gmResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return NoMatch(googleProvider), nil
	default:
		return nil, classifyGoogleStatus(gmResp.Status, gmResp.ErrorMessage)
	}

	if len(gmResp.Results) == 0 {
		return NoMatch(googleProvider), nil
	}

	result := gmResp.Results[0]

	// Determine confidence based on location_type
	confidence := "low"

	switch result.Geometry.LocationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		confidence = "high"
	case "GEOMETRIC_CENTER":
		confidence = "medium"
	}

	return &GeocodingResult{
		Status: StatusFound,
		Point: spatial.Point{
			Lat: result.Geometry.Location.Lat,
			Lng: result.Geometry.Location.Lng,
		},
		Confidence:  confidence,
		Provider:    googleProvider,
		DisplayName: result.FormattedAddress,
	}, nil
}

// classifyGoogleStatus maps a non-OK API status to a geocoding error.
func classifyGoogleStatus(status, message string) *GeocodingError {
	geoErr := &GeocodingError{Message: "google maps status: " + status}
	if message != "" {
		geoErr.Message += ": " + message
	}

	switch status {
	case "OVER_QUERY_LIMIT":
		geoErr.Type = ErrorTypeQuotaExceeded
	case "OVER_DAILY_LIMIT", "REQUEST_DENIED":
		geoErr.Type = ErrorTypeUnauthorized
	case "INVALID_REQUEST":
		geoErr.Type = ErrorTypeInvalidRequest
	case "UNKNOWN_ERROR":
		geoErr.Type = ErrorTypeNetworkError
	default:
		geoErr.Type = ErrorTypeUnknown
	}

	return geoErr
}
