package commands

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/logger"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the crawl worker every CRAWL_INTERVAL_SECONDS until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.ForWorker()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sites, err := loadSites(cfg, nil)
		if err != nil {
			return err
		}
		enabled := config.FilterSites(sites)
		if len(enabled) == 0 {
			return fmt.Errorf("no enabled sites in %s", cfg.SitesFile)
		}

		log.WithFields(logger.Fields{
			"environment":    cfg.Environment,
			"crawl_interval": cfg.CrawlInterval.String(),
			"sites":          len(enabled),
		}).Info().Msg("Starting application")

		ctx := cmd.Context()
		svc := initializeServices(ctx, cfg)
		defer svc.Cleanup()

		w := newWorker(cfg, svc, enabled, siteKeys(enabled))

		log.Info().Msg("Starting mall crawl worker")
		err = w.Start(ctx)
		if stderrors.Is(err, context.Canceled) {
			log.Info().Msg("Shutting down gracefully...")
			return nil
		}
		return err
	},
}
