/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/handler"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the knowledge api server",
	Long:    `Starts an http server exposing upload, query, stats, clear and summarize endpoints under /api.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if port, _ := cmd.Flags().GetString("port"); port != "" {
			a.cfg.Port = port
		}
		if a.cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// create the collection up front so the first upload does not pay for it
		if err := a.store.Initialize(ctx); err != nil {
			a.logger.Warn("vector store not ready, will retry on first use", zap.Error(err))
		}

		router := handler.NewRouter(
			handler.NewCorsHandler(a.cfg.AllowedOrigin),
			handler.NewUploadHandler(a.files, a.logger),
			handler.NewKnowledgeHandler(a.knowledge, a.cfg.MaxUploadSize, a.logger),
			handler.NewDocumentHandler(a.cfg.UploadDir),
			a.cfg.MaxUploadSize,
		)
		srv := &http.Server{
			Addr:              ":" + a.cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("starting server", zap.String("port", a.cfg.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "", "port to listen on (overrides port from the config)")
}
