package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/distill/internal/api"
	"github.com/hoanghai1803/distill/internal/config"
	"github.com/hoanghai1803/distill/internal/storage"
)

func newServeCmd(configPath *string, stderr io.Writer) *cobra.Command {
	var (
		port      int
		historyDB string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogger(stderr, verbose)

			var ov config.Overrides
			if cmd.Flags().Changed("port") {
				ov.Port = &port
			}
			if cmd.Flags().Changed("history-db") {
				ov.HistoryDB = &historyDB
			}
			// The server never summarizes; skip the credential warning.
			dryRun := true
			ov.DryRun = &dryRun

			cfg, err := config.Load(*configPath, ov)
			if err != nil {
				fmt.Fprintf(stderr, "configuration error: %v\n", err)
				return
			}
			if cfg.History.DB == "" {
				fmt.Fprintln(stderr, "configuration error: history.db is not set (use --history-db or DISTILL_FEED_HISTORY_DB)")
				return
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, cfg); err != nil {
				fmt.Fprintf(stderr, "server error: %v\n", err)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (localhost only)")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "SQLite file for run history")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose stderr logs")
	return cmd
}

// serve runs the history API until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	store, err := storage.Open(cfg.History.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", "http://"+addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}
