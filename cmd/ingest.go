/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:     "ingest",
	Aliases: []string{"upload-document"},
	Short:   "Ingest one document into the knowledge base",
	Long: `Extracts the text of a pdf, docx, markdown or text file, splits it into
chunks, embeds them and stores them in the configured vector store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, _ := cmd.Flags().GetString("file")
		if filePath == "" {
			return errors.New("--file is required")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.files.UploadPath(cmd.Context(), filePath)
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringP("file", "f", "", "Path to the file to ingest")
}
