package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"sjsage522/mallcrawler/services/storage"
)

func init() {
	rootCmd.AddCommand(splitCmd)
}

var splitCmd = &cobra.Command{
	Use:   "split <snapshot.json> <dir>",
	Short: "Writes one JSON file per product of a snapshot under <dir>/<site>/.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := storage.NewStore(args[1]).SplitIndividual(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d product files\n", written)
		return nil
	},
}
