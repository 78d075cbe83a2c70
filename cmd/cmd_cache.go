// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the geocode cache file",
}

var cacheInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty cache file if there is none",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache := newCache()

		created, err := cache.Init(cmd.Context())
		if err != nil {
			return err
		}

		if created {
			log.Info().Str("path", cache.Path()).Msg("created geocode cache")
		} else {
			log.Info().Str("path", cache.Path()).Msg("geocode cache already exists")
		}

		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the entry stored for a key",
	Long: `Print the entry stored for a key. Keys are the address components
joined by ", " (address line 2, address line 1, city, state, postal code,
country).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, found, err := newCache().Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("%q is not cached", args[0])
		}

		fmt.Fprintln(cmd.OutOrStdout(), entry)

		return nil
	},
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every cached key and its entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := newCache().Entries(cmd.Context())
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, entries[k])
		}

		return w.Flush()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the cache file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache := newCache()

		entries, err := cache.Entries(cmd.Context())
		if err != nil {
			return err
		}

		var located int

		for _, e := range entries {
			if !e.IsNotFound() {
				located++
			}
		}

		var size uint64
		if info, err := os.Stat(cache.Path()); err == nil {
			size = uint64(info.Size())
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "path:      %s (%s)\n", cache.Path(), humanize.Bytes(size))
		fmt.Fprintf(out, "entries:   %s\n", humanize.Comma(int64(len(entries))))
		fmt.Fprintf(out, "located:   %s\n", humanize.Comma(int64(located)))
		fmt.Fprintf(out, "not found: %s\n", humanize.Comma(int64(len(entries)-located)))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInitCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
}
