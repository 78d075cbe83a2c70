// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/ordermap/ordermap/geocode"
	"github.com/spf13/cobra"
)

var geocodeAddress geocode.Address

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address line 1>",
	Short: "Locate one address through the cache",
	Long: `Locate one address. The cache is consulted first; on a miss the
provider is queried and its answer, a point or "not found", is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := newResolver(cmd.Context())
		if err != nil {
			return err
		}

		addr := geocodeAddress
		addr.AddressLine1 = args[0]

		point, err := resolver.Resolve(cmd.Context(), addr)
		if err != nil {
			return err
		}

		if point == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not found\n", addr.Key())

			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr.Key(), point)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)

	flags := geocodeCmd.Flags()
	flags.StringVar(&geocodeAddress.AddressLine2, "addressline2", "", "second address line")
	flags.StringVar(&geocodeAddress.City, "city", "", "city")
	flags.StringVar(&geocodeAddress.State, "state", "", "state or province")
	flags.StringVar(&geocodeAddress.PostalCode, "postal-code", "", "postal code")
	flags.StringVar(&geocodeAddress.Country, "country", "", "country")
}
