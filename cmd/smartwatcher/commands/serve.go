package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/biodoia/smartwatcher/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ServeCmd rappresenta il comando serve
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SmartWatcher web server",
	Long: `Start the HTTP server with the web page, the JSON API,
the live event stream and the Prometheus metrics endpoint.`,
	Example: `  # Start server with default settings
  smartwatcher serve

  # Start with custom config and debug logging
  smartwatcher serve -c /path/to/config.yaml -l debug`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	svcs, err := bootstrap(cmd, "")
	if err != nil {
		return err
	}
	defer svcs.Close()

	cfg := svcs.cfg
	srv := server.New(cfg, svcs.svc, svcs.metrics, Version)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("model", cfg.LLM.Model).
		Bool("metrics", svcs.metrics != nil).
		Bool("tracing", cfg.Monitoring.Tracing.Enabled).
		Msg("SmartWatcher running, press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	log.Info().Msg("SmartWatcher stopped cleanly")
	return nil
}
