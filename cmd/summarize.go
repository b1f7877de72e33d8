/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tieubaoca/knowledge-be/types"
)

// summarizeCmd represents the summarize command
var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a document without storing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, _ := cmd.Flags().GetString("file")
		if filePath == "" {
			return errors.New("--file is required")
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.knowledge.SummarizeFile(cmd.Context(), types.UploadedFile{
			FileName: filepath.Base(filePath),
			Content:  content,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
	summarizeCmd.Flags().StringP("file", "f", "", "Path to the file to summarize")
}
