// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/ordermap/ordermap/sales"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const stdout = "-"

var enrichOutput string

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Locate every order of the sales CSV and write them as JSON",
	Args:  cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindSalesFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		orders, err := loadOrders(cmd.Context())
		if err != nil {
			return err
		}

		if enrichOutput == stdout {
			return sales.WriteJSON(cmd.OutOrStdout(), orders)
		}

		f, err := renameio.NewPendingFile(enrichOutput, renameio.WithPermissions(0o644))
		if err != nil {
			return fmt.Errorf("creating %s: %w", enrichOutput, err)
		}
		defer f.Cleanup() //nolint:errcheck

		if err := sales.WriteJSON(f, orders); err != nil {
			return err
		}

		if err := f.CloseAtomicallyReplace(); err != nil {
			return fmt.Errorf("writing %s: %w", enrichOutput, err)
		}

		log.Info().Str("path", enrichOutput).Int("orders", len(orders)).Msg("enriched orders written")

		return nil
	},
}

func addSalesFlags(flags *pflag.FlagSet) {
	flags.String("input", "", "sales orders CSV")
	flags.String("charset", "", "character set of the CSV")
}

// bindSalesFlags binds the sales flags of the running command. Several
// commands define them, so they are bound once the command is known.
func bindSalesFlags(flags *pflag.FlagSet) {
	mustBindPFlags(flags, map[string]string{
		"sales.input":   "input",
		"sales.charset": "charset",
	})
}

// loadOrders reads the configured CSV and enriches its orders.
func loadOrders(ctx context.Context) ([]*sales.Order, error) {
	path := viper.GetString("sales.input")

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sales data: %w", err)
	}
	defer f.Close()

	orders, err := sales.ReadOrders(f, viper.GetString("sales.charset"))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("orders", len(orders)).Msg("sales data loaded")

	resolver, err := newResolver(ctx)
	if err != nil {
		return nil, err
	}

	countries, err := sales.NewCountryResolver(0)
	if err != nil {
		return nil, err
	}

	if _, err := sales.NewEnricher(resolver, countries).Enrich(ctx, orders); err != nil {
		return nil, fmt.Errorf("enriching orders: %w", err)
	}

	m := resolver.Metrics()
	log.Info().
		Int("cache_hits", m.CacheHits).
		Int("negative_hits", m.NegativeHits).
		Int("provider_calls", m.ProviderCalls).
		Int("transient_failures", m.TransientFailures).
		Msg("geocoding done")

	return orders, nil
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	addSalesFlags(enrichCmd.Flags())
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", stdout, `output JSON file ("-" for stdout)`)
}
