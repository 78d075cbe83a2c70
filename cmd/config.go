// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ordermap/ordermap/geocache"
	"github.com/ordermap/ordermap/geocode"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	providerMapbox = "mapbox"
	providerGoogle = "google"
)

func newCache() *geocache.FileCache {
	return geocache.New(viper.GetString("cache.path"), geocache.Options{
		LockTimeout: viper.GetDuration("cache.lock_timeout"),
	})
}

func newHTTPOptions() geocode.HTTPOptions {
	var trace io.Writer
	if viper.GetBool("http.trace") {
		trace = os.Stderr
	}

	return geocode.HTTPOptions{
		UserAgent:   viper.GetString("geocoder.user_agent"),
		Timeout:     viper.GetDuration("geocoder.timeout"),
		Retries:     viper.GetInt("geocoder.retries"),
		TraceWriter: trace,
		TraceBody:   viper.GetBool("http.trace_body"),
	}
}

// newGeocoder returns the configured provider. It is built on the first cache
// miss, so credentials are only required when the network is needed.
func newGeocoder(ctx context.Context) (geocode.Geocoder, error) {
	provider := strings.ToLower(viper.GetString("geocoder.provider"))

	switch provider {
	case providerMapbox:
		return geocode.Lazy(func() (geocode.Geocoder, error) {
			return geocode.NewMapboxGeocoder(
				viper.GetString("mapbox.key"),
				geocode.NewHTTPClient(newHTTPOptions()),
			)
		}), nil
	case providerGoogle:
		return geocode.Lazy(func() (geocode.Geocoder, error) {
			key := viper.GetString("google.api_key")
			if key == "" {
				name := viper.GetString("geocoder.google_key_name")
				if name == "" {
					name = geocode.DefaultGoogleKeyName
				}

				log.Info().Str("key_name", name).Msg("GOOGLE_MAPS_API_KEY not set, looking up key with default credentials")

				var err error

				key, err = geocode.GoogleAPIKeyFromADC(ctx, name, viper.GetString("geocoder.google_project"))
				if err != nil {
					return nil, err
				}
			}

			return geocode.NewGoogleMapsGeocoder(key, geocode.NewHTTPClient(newHTTPOptions()))
		}), nil
	default:
		return nil, fmt.Errorf("unknown geocoding provider %q (want %s or %s)", provider, providerMapbox, providerGoogle)
	}
}

func newResolver(ctx context.Context) (*geocode.Resolver, error) {
	geocoder, err := newGeocoder(ctx)
	if err != nil {
		return nil, err
	}

	return geocode.NewResolver(newCache(), geocoder, geocode.Options{
		Interval: viper.GetDuration("geocoder.interval"),
	}), nil
}
