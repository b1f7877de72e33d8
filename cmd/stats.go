/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the knowledge base holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(cmd, a.knowledge.Stats(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
