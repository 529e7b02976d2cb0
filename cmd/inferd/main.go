package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/backend"
	"inferd/internal/config"
	"inferd/internal/device"
	"inferd/internal/engine"
	"inferd/internal/health"
	"inferd/internal/httpapi"
	"inferd/internal/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Single-model LLM inference worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (.yaml, .json or .toml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	var checkAddr string
	healthcheck := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running worker's readiness and exit 0/1",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := checkAddr
			if addr == "" {
				cfg, err := resolveConfig(configPath)
				if err != nil {
					return err
				}
				addr = cfg.Addr
			}
			return runHealthcheck(addr)
		},
	}
	healthcheck.Flags().StringVar(&checkAddr, "addr", "", "Worker address to probe (defaults to the configured listen address)")

	root.AddCommand(serve, healthcheck)
	return root
}

// resolveConfig layers file, environment and validation: the file (when
// given) overrides defaults, environment variables override the file.
func resolveConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	config.ApplyEnv(&cfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return cfg, nil
}

func runServe(cfg config.Config) error {
	log := newLogger(cfg)
	log.Info().Fields(cfg.Summary()).Msg("configuration resolved")

	if host := device.HostMemory(); host.Available && host.FreeMB < health.LowMemoryThresholdMB {
		log.Warn().Int64("free_mb", host.FreeMB).Msg("low free host memory at startup")
	}

	acc := metrics.NewAccumulator(0)
	loader := engine.NewLoader(&cfg, backend.NewRuntime(), log)
	pipe := engine.NewPipeline(&cfg, loader, acc, log)
	checker := health.NewChecker(&cfg, loader, acc, device.NewProber())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The load runs in the background so health endpoints answer during the
	// multi-minute warmup window.
	go func() {
		if _, err := loader.Load(ctx); err != nil {
			log.Error().Err(err).Msg("model load failed, serving failed status")
		}
	}()

	if cfg.LogMetrics {
		go logMetricsLoop(ctx, acc, log)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(pipe, checker, &cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model_id", cfg.ModelID).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete")
	}
	return nil
}

// logMetricsLoop periodically emits the counters snapshot so long-running
// workers leave a latency trail in the logs.
func logMetricsLoop(ctx context.Context, acc *metrics.Accumulator, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := acc.Snapshot()
			if s.RequestsTotal == 0 {
				continue
			}
			log.Info().
				Uint64("requests_total", s.RequestsTotal).
				Uint64("failures_total", s.FailuresTotal).
				Uint64("tokens_generated_total", s.TokensGeneratedTotal).
				Dur("avg_latency", s.AvgLatency).
				Dur("p95_latency", s.P95Latency).
				Msg("request counters")
		}
	}
}

// runHealthcheck probes /health, for container HEALTHCHECK directives.
// Ready and degraded workers pass; loading and failed ones exit nonzero.
func runHealthcheck(addr string) error {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return fmt.Errorf("worker unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("worker unhealthy (status %d)", resp.StatusCode)
	}
	fmt.Println("healthy")
	return nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr)
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
