package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/biodoia/smartwatcher/internal/observability"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/internal/stats"
	"github.com/biodoia/smartwatcher/internal/watcher"
	"github.com/biodoia/smartwatcher/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version è impostata da main
var Version = "dev"

// services raccoglie i componenti condivisi dai comandi
type services struct {
	cfg      *config.Config
	metrics  *stats.Metrics
	svc      *watcher.Service
	shutdown observability.ShutdownFunc
}

// loadConfig carica e valida la configurazione indicata da --config
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// bootstrap prepara logger, tracing, metriche e servizio
func bootstrap(cmd *cobra.Command, defaultLevel string) (*services, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = defaultLevel
	}
	setupLogger(os.Stderr, cfg, level)

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:      cfg.Monitoring.Tracing.Enabled,
		ServiceName:  cfg.Monitoring.Tracing.ServiceName,
		Version:      Version,
		Stdout:       cfg.Monitoring.Tracing.Stdout,
		OTLPEndpoint: cfg.Monitoring.Tracing.OTLPEndpoint,
	})
	if err != nil {
		return nil, err
	}

	var metrics *stats.Metrics
	if cfg.Monitoring.Prometheus.Enabled {
		metrics = stats.NewMetrics(cfg.Monitoring.Prometheus.Namespace)
	}

	svc, err := watcher.New(watcher.Options{Config: cfg, Metrics: metrics})
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	return &services{cfg: cfg, metrics: metrics, svc: svc, shutdown: shutdown}, nil
}

// Close rilascia servizio e tracing
func (s *services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.svc.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing watcher service")
	}
	if err := s.shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Error flushing traces")
	}
}

// setupLogger configura il logger globale. level vuoto usa la configurazione.
func setupLogger(out io.Writer, cfg *config.Config, level string) {
	if level == "" {
		level = cfg.Monitoring.Logging.Level
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.Monitoring.Logging.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
		return
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// readInput costruisce il RunInput dai flag comuni a run e critique
func readInput(cfg *config.Config, post, postFile string, agents []string, stdin io.Reader) (pipeline.RunInput, error) {
	switch {
	case postFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return pipeline.RunInput{}, fmt.Errorf("failed to read post from stdin: %w", err)
		}
		post = string(data)
	case postFile != "":
		data, err := os.ReadFile(postFile)
		if err != nil {
			return pipeline.RunInput{}, fmt.Errorf("failed to read post file: %w", err)
		}
		post = string(data)
	case post == "":
		post = cfg.UI.DefaultPost
	}

	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			ids = append(ids, a)
		}
	}

	return pipeline.RunInput{Post: strings.TrimSpace(post), PersonaIDs: ids}, nil
}
