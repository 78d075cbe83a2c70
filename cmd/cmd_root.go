// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "ORDERMAP"
	configName = "ordermap"
	dotEnvFile = ".env"
)

var (
	configFile string
	logLevel   string
)

func init() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}).With().Timestamp().Logger()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./ordermap.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("cache", "", "geocode cache file")
	rootCmd.PersistentFlags().String("provider", "", "geocoding provider (mapbox, google)")
	rootCmd.PersistentFlags().Bool("http-trace", false, "trace provider HTTP requests to stderr")
	rootCmd.PersistentFlags().Bool("http-trace-body", false, "include bodies in the HTTP trace")

	mustBindPFlags(rootCmd.PersistentFlags(), map[string]string{
		"cache.path":        "cache",
		"geocoder.provider": "provider",
		"http.trace":        "http-trace",
		"http.trace_body":   "http-trace-body",
	})
}

func setDefaults() {
	viper.SetDefault("cache.path", "data/geolocate_cache.json")
	viper.SetDefault("cache.lock_timeout", 30*time.Second)
	viper.SetDefault("geocoder.provider", providerMapbox)
	viper.SetDefault("geocoder.interval", time.Second)
	viper.SetDefault("geocoder.timeout", 10*time.Second)
	viper.SetDefault("geocoder.retries", 0)
	viper.SetDefault("geocoder.user_agent", "ordermap/"+Version)
	viper.SetDefault("geocoder.google_project", "")
	viper.SetDefault("geocoder.google_key_name", "")
	viper.SetDefault("http.trace", false)
	viper.SetDefault("http.trace_body", false)
	viper.SetDefault("sales.input", "data/sales_data_sample.csv")
	viper.SetDefault("sales.charset", "windows-1252")
	viper.SetDefault("serve.addr", "localhost:8080")
	viper.SetDefault("serve.h3_resolution", 4)
}

func initConfig() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Warn().Str("level", logLevel).Msg("unknown log level, using info")

		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if err := loadDotEnv(dotEnvFile); err != nil {
		log.Warn().Err(err).Str("file", dotEnvFile).Msg("cannot load env file")
	}

	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Provider credentials keep their well-known names.
	_ = viper.BindEnv("mapbox.key", "MAPBOX_KEY")
	_ = viper.BindEnv("google.api_key", "GOOGLE_MAPS_API_KEY")

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("cannot read config file")
		}
	} else {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("using config file")
	}
}

// loadDotEnv exports the variables of path into the process environment,
// overriding the ones already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")

	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for _, key := range env.AllKeys() {
		if err := os.Setenv(strings.ToUpper(key), env.GetString(key)); err != nil {
			return fmt.Errorf("exporting %s: %w", key, err)
		}
	}

	return nil
}

// mustBindPFlags binds each viper key to the flag of the same set.
func mustBindPFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "ordermap",
	Short: "sales orders on a map",
	Long: `
ordermap loads the sales orders CSV, locates every order with a geocoding
provider behind a local file cache, and serves the enriched table to the
dashboard API.
`,
	SilenceUsage: true,
}

var Version = "dev"

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}
