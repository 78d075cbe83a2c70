// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// GeocodingError represents a failed request to a geocoding provider.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies geocoding errors.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit means the provider throttled the request.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded means the account ran out of quota.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout means the request didn't complete in time.
	ErrorTypeTimeout
	// ErrorTypeNotFound means the provider doesn't know the location.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest means the provider rejected the query.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError means the provider couldn't be reached.
	ErrorTypeNetworkError
	// ErrorTypeUnauthorized means the credential is missing or invalid.
	ErrorTypeUnauthorized
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeUnknown:        "unknown",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeQuotaExceeded:  "quota_exceeded",
	ErrorTypeTimeout:        "timeout",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeInvalidRequest: "invalid_request",
	ErrorTypeNetworkError:   "network_error",
	ErrorTypeUnauthorized:   "unauthorized",
}

func (t ErrorType) String() string {
	if s, ok := errorTypeNames[t]; ok {
		return s
	}

	return fmt.Sprintf("ErrorType(%d)", int(t))
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type
	}

	return ErrorTypeUnknown
}

// IsRateLimitError reports whether err was caused by throttling.
func IsRateLimitError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsQuotaExceededError reports whether err was caused by an exhausted quota.
func IsQuotaExceededError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeQuotaExceeded
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "over_query_limit") ||
		strings.Contains(errStr, "quota exceeded")
}

// IsTimeoutError reports whether err was caused by a timeout.
func IsTimeoutError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsTransient reports whether err says nothing about the address itself:
// the provider was unreachable, throttled, out of quota or not authorized.
// Such failures must not be cached as "not found".
func IsTransient(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeRateLimit,
		ErrorTypeQuotaExceeded,
		ErrorTypeTimeout,
		ErrorTypeNetworkError,
		ErrorTypeUnauthorized:
		return true
	case ErrorTypeUnknown, ErrorTypeNotFound, ErrorTypeInvalidRequest:
		return false
	}

	return false
}

// ClassifyHTTPError maps an HTTP status code to a geocoding error.
func ClassifyHTTPError(statusCode int, message string) *GeocodingError {
	geoErr := classifyStatus(statusCode)
	if message != "" {
		geoErr.Message = fmt.Sprintf("%s: %s", geoErr.Message, message)
	}

	return geoErr
}

func classifyStatus(statusCode int) *GeocodingError {
	switch statusCode {
	case http.StatusTooManyRequests: // 429
		return &GeocodingError{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit reached",
		}
	case http.StatusUnauthorized: // 401
		return &GeocodingError{
			Type:    ErrorTypeUnauthorized,
			Message: "invalid or missing access token",
		}
	case http.StatusForbidden: // 403
		return &GeocodingError{
			Type:    ErrorTypeQuotaExceeded,
			Message: "quota exceeded or access denied",
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity: // 400, 422
		return &GeocodingError{
			Type:    ErrorTypeInvalidRequest,
			Message: "invalid request",
		}
	case http.StatusNotFound: // 404
		return &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: "location not found",
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusInternalServerError:
		return &GeocodingError{
			Type:    ErrorTypeNetworkError,
			Message: fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("HTTP error %d", statusCode),
		}
	}
}

// classifyTransportError wraps an error returned by http.Client.Do. The
// *url.Error layers are dropped because their messages carry the request
// URL, and with it the access token.
func classifyTransportError(err error) *GeocodingError {
	err = unwrapURLError(err)

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &GeocodingError{Type: ErrorTypeTimeout, Message: "geocoding request timed out", Err: err}
	}

	return &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
}
