/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tieubaoca/knowledge-be/service"
)

type batchResult struct {
	File   string `json:"file"`
	Chunks int    `json:"chunks,omitempty"`
	Error  string `json:"error,omitempty"`
}

// batchIngestCmd represents the batch-ingest command
var batchIngestCmd = &cobra.Command{
	Use:     "batch-ingest",
	Aliases: []string{"batch-upload-document"},
	Short:   "Ingest every supported document in a directory",
	Long: `Walks a directory and ingests each pdf, docx, markdown and text file.
A failing file is reported and does not stop the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		directory, _ := cmd.Flags().GetString("directory")
		if directory == "" {
			return errors.New("--directory is required")
		}
		recursive, _ := cmd.Flags().GetBool("recursive")
		workers, _ := cmd.Flags().GetInt("workers")

		paths, err := collectFiles(directory, recursive)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no supported files in %s", directory)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var (
			mu      sync.Mutex
			results = make([]batchResult, len(paths))
			failed  int
		)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(max(workers, 1))
		for i, path := range paths {
			g.Go(func() error {
				res := batchResult{File: path}
				resp, err := a.files.UploadPath(ctx, path)
				if err != nil {
					a.logger.Error("failed to ingest document", zap.String("file", path), zap.Error(err))
					res.Error = err.Error()
					mu.Lock()
					failed++
					mu.Unlock()
				} else {
					res.Chunks = resp.ChunkCount
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := printJSON(cmd, results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(paths))
		}
		return nil
	},
}

// collectFiles lists the supported files under dir in lexical order.
func collectFiles(dir string, recursive bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := service.SupportedExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	return paths, nil
}

func init() {
	rootCmd.AddCommand(batchIngestCmd)
	batchIngestCmd.Flags().String("directory", "", "Path to the dir to ingest")
	batchIngestCmd.Flags().BoolP("recursive", "r", false, "Descend into subdirectories")
	batchIngestCmd.Flags().IntP("workers", "w", 2, "Files ingested in parallel")
}
