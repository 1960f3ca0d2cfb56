package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sjsage522/mallcrawler/internal/crawler"
)

var detectEncoding string

func init() {
	detectCmd.Flags().StringVar(&detectEncoding, "encoding", "", "Force the page encoding (euc-kr, cp949, utf-8).")
	rootCmd.AddCommand(detectCmd)
}

var detectCmd = &cobra.Command{
	Use:   "detect <url>",
	Short: "Fetches a page and prints its platform and the selectors that match it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		inspection, err := crawler.Inspect(cmd.Context(), newFetcher(cfg), args[0], detectEncoding)
		if err != nil {
			return err
		}

		fmt.Printf("url:      %s\n", inspection.URL)
		fmt.Printf("title:    %s\n", inspection.Title)
		fmt.Printf("encoding: %s\n", inspection.Encoding)
		fmt.Printf("platform: %s\n\n", inspection.Platform)

		t := newTable()
		t.AppendHeader(table.Row{"Field", "Selector", "Matches"})
		for _, m := range inspection.CategoryLinks {
			t.AppendRow(table.Row{"categoryLinks", m.Selector, m.Matches})
		}
		for _, m := range inspection.ProductLists {
			t.AppendRow(table.Row{"productList", m.Selector, m.Matches})
		}
		t.Render()
		return nil
	},
}
