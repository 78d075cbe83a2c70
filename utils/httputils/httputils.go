// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputils provides utility functions for working with HTTP.
package httputils

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Query parameters and headers whose values never reach a trace.
var (
	SecretParams  = []string{"access_token", "key"}
	secretHeaders = []string{"Authorization"}
)

const redacted = "REDACTED"

/////////////////////////////////////////
/// RoundTrippers

// LoggingRoundTripper adds a very primitive logging to a http transaction.
type LoggingRoundTripper struct {
	Transport http.RoundTripper
	Writer    io.Writer
	DumpBody  bool
}

// reduce the content of the lines.
func abbreviate(lines []string, prefix rune) []string {
	const maxLines, maxChars = 2048, 512

	for i, line := range lines {
		if i >= maxLines {
			break
		}

		lines[i] = fmt.Sprintf("%c %s", prefix, line)
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines = append(lines, "…")
	}

	for i, line := range lines {
		if len(line) > maxChars {
			lines[i] = line[0:maxChars] + "…"
		}
	}

	return lines
}

// RedactURL returns u as a string with the values of SecretParams replaced.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	clean := *u
	query := clean.Query()

	for _, param := range SecretParams {
		if query.Has(param) {
			query.Set(param, redacted)
		}
	}

	clean.RawQuery = query.Encode()

	return clean.String()
}

// RedactString replaces the values of SecretParams found as "name=value"
// anywhere in s, such as a URL embedded in a log message.
func RedactString(s string) string {
	names := make([]string, len(SecretParams))
	for i, param := range SecretParams {
		names[i] = regexp.QuoteMeta(param)
	}

	re := regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)=[^&\s"']*`)

	return re.ReplaceAllString(s, "${1}="+redacted)
}

// redactedRequest returns a shallow copy of req that is safe to dump.
func redactedRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())

	if u, err := url.Parse(RedactURL(req.URL)); err == nil {
		clone.URL = u
	}

	for _, h := range secretHeaders {
		if clone.Header.Get(h) != "" {
			clone.Header.Set(h, redacted)
		}
	}

	return clone
}

func (t *LoggingRoundTripper) dumpRequest(req *http.Request) error {
	// Requests built by providers have no body; DumpRequestOut would
	// otherwise consume it.
	dump, err := httputil.DumpRequestOut(redactedRequest(req), false)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '>')
	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

func (t *LoggingRoundTripper) dumpResponse(resp *http.Response, duration time.Duration) error {
	dump, err := httputil.DumpResponse(resp, t.DumpBody)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines := abbreviate(strings.Split(string(dump), "\n"), '<')

	_, err = fmt.Fprintf(t.Writer, "< RESPONSE: [%v]\n", duration)
	if err != nil {
		return fmt.Errorf("tracing HTTP request: %w", err)
	}

	lines = append(lines, "")
	_, err = fmt.Fprint(t.Writer, strings.Join(lines, "\n"))

	return err
}

// RoundTrip implements the http.RoundTripper interface.
func (t *LoggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Writer == nil {
		return t.Transport.RoundTrip(req)
	}

	if err := t.dumpRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := t.dumpResponse(resp, time.Since(start)); err != nil {
		return nil, err
	}

	return resp, nil
}

// AppendRequestHeadersRoundTripper adds headers to the request.
type AppendRequestHeadersRoundTripper struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface.
func (t *AppendRequestHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	return t.Transport.RoundTrip(req)
}
