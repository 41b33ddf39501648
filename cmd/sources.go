package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amala-atlas/discovery-cli/internal/catalog"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured source catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := catalog.Load(cfg.Sources.Path)
		if err != nil {
			return err
		}
		for _, s := range sources {
			fmt.Printf("%-24s %s\n", s.Name, s.URL)
		}
		fmt.Printf("%d sources\n", len(sources))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
