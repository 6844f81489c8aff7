package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ai/skills"
	"github.com/TomkerDev/Al-Moussaid/internal/alerts"
	"github.com/TomkerDev/Al-Moussaid/internal/ingestion"
	"github.com/TomkerDev/Al-Moussaid/internal/scheduler"
	"github.com/TomkerDev/Al-Moussaid/internal/sources"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scrape the configured sources, store new postings and send alerts",
	Run: func(cmd *cobra.Command, _ []string) {
		ingest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().Bool("schedule", false, "keep running and ingest on the ingestion.schedule cron spec")
	ingestCmd.Flags().String("cron", "", "cron spec overriding ingestion.schedule")
	ingestCmd.Flags().StringSlice("file", nil, "extra JSON file of scraped items (repeatable)")
	ingestCmd.Flags().Bool("no-alerts", false, "store postings without matching subscribers")
}

func ingest(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	srcs, err := ingestionSources(cmd, config, logger)
	if err != nil {
		logger.Fatal("preparing sources", zap.Error(err))
	}
	if len(srcs) == 0 {
		logger.Fatal("no sources configured", zap.String("hint", "add entries under sources or pass --file"))
	}

	d, err := loadDeps(ctx, config, logger, true)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

	opts := []ingestion.Option{ingestion.WithTitleLocker(d.titleLocker())}
	if noAlerts, _ := cmd.Flags().GetBool("no-alerts"); !noAlerts {
		notifier, err := d.notifier()
		if err != nil {
			logger.Fatal("initializing the notifier", zap.Error(err))
		}
		dispatcher, err := alerts.NewDispatcher(notifier, d.ledger, config.Timeouts.Notify, logger)
		if err != nil {
			logger.Fatal("initializing alert dispatch", zap.Error(err))
		}
		opts = append(opts, ingestion.WithAlerts(d.engine, dispatcher))
	}

	pipeline := ingestion.New(
		d.postings,
		skills.NewStructurer(d.generator, d.skillsConfig(), logger),
		d.embedder,
		ingestion.Config{
			Concurrency:       config.Ingestion.Concurrency,
			Delay:             config.Ingestion.Delay,
			ItemTimeout:       config.Ingestion.ItemTimeout,
			StoreTimeout:      config.Timeouts.Store,
			MinAlertThreshold: config.Alerts.MinThreshold,
			LockTTL:           config.Ingestion.ItemTimeout,
		},
		logger,
		opts...,
	)

	job := func(ctx context.Context) {
		report := pipeline.RunSources(ctx, srcs)
		logger.Info("ingestion finished", report.Fields()...)
	}

	if schedule, _ := cmd.Flags().GetBool("schedule"); !schedule {
		job(ctx)
		return
	}

	spec := config.Ingestion.Schedule
	if override, _ := cmd.Flags().GetString("cron"); override != "" {
		spec = override
	}

	s, err := scheduler.New(spec, job, logger)
	if err != nil {
		logger.Fatal("creating the scheduler", zap.Error(err))
	}
	if err := s.Start(ctx); err != nil {
		logger.Fatal("starting the scheduler", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", "signal received"))
	s.Stop()
}

func ingestionSources(cmd *cobra.Command, config *Config, logger *zap.Logger) ([]ingestion.Source, error) {
	cfgs := append([]sources.Config(nil), config.Sources...)

	files, _ := cmd.Flags().GetStringSlice("file")
	for _, f := range files {
		cfgs = append(cfgs, sources.Config{Type: sources.TypeFile, Path: f})
	}

	return sources.Build(cfgs, nil, logger)
}
