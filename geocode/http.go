// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ordermap/ordermap/utils/httputils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "ordermap/unknown"
	minRetryWait     = time.Second
	maxRetryWait     = 10 * time.Second
)

// HTTPOptions configures the client shared by the HTTP providers.
type HTTPOptions struct {
	// UserAgent is the User-Agent header to use in HTTP requests
	UserAgent string

	// Timeout bounds every single attempt
	Timeout time.Duration

	// Retries is how many times a throttled (429) or failed (5xx) request
	// is re-sent before giving up
	Retries int

	// Enables light tracing of HTTP requests and responses
	TraceWriter io.Writer

	// Enables full HTTP body tracing
	TraceBody bool
}

// NewHTTPClient creates the client used by the providers: bounded retries
// with back-off on top of a traced transport.
func NewHTTPClient(options HTTPOptions) *http.Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	userAgent := defaultUserAgent
	if options.UserAgent != "" {
		userAgent = options.UserAgent
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	loggingTransport := &httputils.LoggingRoundTripper{
		Writer:    options.TraceWriter,
		DumpBody:  options.TraceBody,
		Transport: transport,
	}

	headerTransport := &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		Transport: loggingTransport,
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: headerTransport,
	}
	client.RetryMax = max(options.Retries, 0)
	client.RetryWaitMin = minRetryWait
	client.RetryWaitMax = maxRetryWait
	client.Logger = retryLogger{}
	// Hand the last response back so providers can classify its status.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return client.StandardClient()
}

// unwrapURLError strips every *url.Error layer; their messages carry the
// request URL and with it the credential.
func unwrapURLError(err error) error {
	for {
		var urlErr *url.Error
		if !errors.As(err, &urlErr) {
			return err
		}

		err = urlErr.Err
	}
}

// retryLogger routes go-retryablehttp logging to zerolog.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...any) {
	withFields(log.Error(), keysAndValues).Msg(msg)
}

func (retryLogger) Warn(msg string, keysAndValues ...any) {
	withFields(log.Warn(), keysAndValues).Msg(msg)
}

func (retryLogger) Info(msg string, keysAndValues ...any) {
	withFields(log.Debug(), keysAndValues).Msg(msg)
}

func (retryLogger) Debug(msg string, keysAndValues ...any) {
	withFields(log.Trace(), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, keysAndValues []any) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		value := keysAndValues[i+1]

		switch v := value.(type) {
		case *url.URL:
			value = httputils.RedactURL(v)
		case string:
			// "request" values are "METHOD URL (status: N)".
			value = httputils.RedactString(v)
		case error:
			value = httputils.RedactString(unwrapURLError(v).Error())
		case fmt.Stringer:
			value = httputils.RedactString(v.String())
		}

		e = e.Interface(key, value)
	}

	return e
}
