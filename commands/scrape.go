package commands

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/helpers"
	"sjsage522/mallcrawler/services/worker"
)

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [site...]",
	Short: "Scrapes every enabled mall once, or only the given site keys.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		all, err := loadSites(cfg, nil)
		if err != nil {
			return err
		}
		sites, err := loadSites(cfg, args)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			sites = config.FilterSites(sites)
		}
		// naming a disabled site explicitly crawls it anyway
		for i := range sites {
			sites[i].Disabled = false
		}
		if len(sites) == 0 {
			return fmt.Errorf("no enabled sites in %s", cfg.SitesFile)
		}

		ctx := cmd.Context()
		svc := initializeServices(ctx, cfg)
		defer svc.Cleanup()

		w := newWorker(cfg, svc, sites, siteKeys(config.FilterSites(all)))
		report, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}

		printReport(report)
		if failed := report.Failed(); failed > 0 {
			return fmt.Errorf("%d of %d malls failed, see %s", failed, len(report.Results), cfg.ErrorLogFile)
		}
		return nil
	},
}

func printReport(report *worker.Report) {
	t := newTable()
	t.AppendHeader(table.Row{"Site", "Name", "Platform", "Categories", "Products", "Price range", "Published", "Errors"})
	for _, r := range report.Results {
		if r.Summary == nil {
			t.AppendRow(table.Row{r.Site, r.Name, "-", "-", "-", "-", "-", r.Err})
			continue
		}
		s := r.Summary
		priceRange := "-"
		if s.ProductsWithPrice > 0 {
			priceRange = helpers.FormatWon(s.MinPrice) + " ~ " + helpers.FormatWon(s.MaxPrice)
		}
		t.AppendRow(table.Row{
			s.Site, s.Name, s.Platform, s.TotalCategories,
			humanize.Comma(int64(s.TotalProducts)), priceRange, r.Published, s.ErrorCount,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "Catalog", humanize.Comma(int64(report.TotalProducts)), "", "", report.Duration.Round(time.Millisecond)})
	t.Render()
}
