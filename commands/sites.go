package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sitesCmd)
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Lists the configured malls.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sites, err := loadSites(cfg, nil)
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Key", "Name", "Region", "Platform", "Encoding", "URL", "Status"})
		for _, site := range sites {
			platform := site.Platform
			if platform == "" {
				platform = "auto"
			}
			encoding := site.Encoding
			if encoding == "" {
				encoding = "auto"
			}
			status := "enabled"
			if site.Disabled {
				status = "disabled"
			}
			t.AppendRow(table.Row{site.Key, site.Name, site.Region, platform, encoding, site.URL, status})
		}
		t.Render()
		return nil
	},
}
