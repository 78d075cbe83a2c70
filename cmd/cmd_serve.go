// Copyright 2026 The OrderMap Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/gin-gonic/gin"
	"github.com/ordermap/ordermap/dashboard"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Enrich the sales orders and serve the dashboard API",
	Long: `Enrich the sales orders and serve the dashboard API. The enriched
table is kept in an in-memory DuckDB database for the life of the process.`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindSalesFlags(cmd.Flags())
		mustBindPFlags(cmd.Flags(), map[string]string{
			"serve.addr":          "addr",
			"serve.h3_resolution": "h3-resolution",
		})
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		res := viper.GetInt("serve.h3_resolution")
		if res < dashboard.MinH3Resolution || res > dashboard.MaxH3Resolution {
			return fmt.Errorf("h3 resolution must be between %d and %d, got %d",
				dashboard.MinH3Resolution, dashboard.MaxH3Resolution, res)
		}

		orders, err := loadOrders(cmd.Context())
		if err != nil {
			return err
		}

		db, err := sql.Open("duckdb", "")
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		repo := dashboard.NewSQLRepository(db)
		if err := repo.CreateSchema(); err != nil {
			return err
		}

		if err := repo.SaveOrders(orders); err != nil {
			return err
		}

		if zerolog.GlobalLevel() > zerolog.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}

		server := dashboard.NewServer(repo, dashboard.ServerOptions{
			H3Resolution: res,
		})

		return server.Run(cmd.Context(), viper.GetString("serve.addr"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addSalesFlags(serveCmd.Flags())
	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().Int("h3-resolution", 0, "default heatmap resolution")
}
