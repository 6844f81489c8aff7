package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the postgres schema (pgvector extension, tables and indexes)",
	Run: func(_ *cobra.Command, _ []string) {
		migrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func migrate() {
	ctx := context.Background()
	logger, config := setup()

	if driver := strings.ToLower(strings.TrimSpace(config.Store.Driver)); driver != driverPostgres && driver != "" {
		logger.Fatal("migrate only applies to the postgres store", zap.String("driver", driver))
	}

	pool, err := connectPostgres(ctx, config.Store)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, config.Embedding.Dimension); err != nil {
		logger.Fatal("migrating the schema", zap.Error(err))
	}

	logger.Info("schema is up to date", zap.Int("dimension", config.Embedding.Dimension))
}
