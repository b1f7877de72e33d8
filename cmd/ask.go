/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if topK < 1 {
			topK = a.cfg.TopK
		}
		res, err := a.knowledge.AnswerTopK(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().IntP("top-k", "k", 0, "Number of contexts to retrieve (default from config)")
}
