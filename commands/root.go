package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sjsage522/mallcrawler/config"
)

var (
	sitesFile   string
	outputDir   string
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:           "mallcrawler",
	Short:         "mallcrawler scrapes Korean regional malls into JSON snapshots.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sitesFile, "sites", "", "Site configuration file (overrides SITES_FILE).")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "Output directory (overrides OUTPUT_DIR).")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "Malls crawled at once (overrides MAX_CONCURRENT_MALLS).")
}

// loadConfig reads the environment configuration and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg := config.LoadConfig()
	if sitesFile != "" {
		cfg.SitesFile = sitesFile
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
		if os.Getenv("ERROR_LOG_FILE") == "" {
			cfg.ErrorLogFile = filepath.Join(outputDir, "errors.log")
		}
	}
	if concurrency > 0 {
		cfg.MaxConcurrentMalls = concurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSites reads the site list, keeping only keys when any are given
func loadSites(cfg *config.Config, keys []string) ([]config.SiteConfig, error) {
	sites, err := config.LoadSites(cfg.SitesFile, cfg)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return sites, nil
	}

	filtered := config.FilterSites(sites, keys...)
	if len(filtered) != len(keys) {
		known := make(map[string]bool, len(filtered))
		for _, site := range filtered {
			known[site.Key] = true
		}
		for _, key := range keys {
			if !known[key] {
				return nil, fmt.Errorf("unknown site %q", key)
			}
		}
	}
	return filtered, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
