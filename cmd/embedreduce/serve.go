package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sanonone/embedreduce/internal/config"
	"github.com/sanonone/embedreduce/internal/server"
	"github.com/sanonone/embedreduce/pkg/reduce"
	"github.com/spf13/cobra"
)

var (
	serveAddr        string
	serveLogLevel    string
	serveErrorStatus string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP reduction service",
	Long: `Start the HTTP service.

Endpoints:
  POST /pca          reduce {"embeddings": [[...]], "n_components": k}
  GET  /pca/schema   JSON Schema of the request body
  GET  /healthz      liveness and compute info
  GET  /metrics      Prometheus metrics
  /mcp               MCP streamable HTTP endpoint

Flags override the configuration file; the listener address can also come
from EMBEDREDUCE_ADDR or HOST/PORT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (e.g. :8000 or 127.0.0.1:8000)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveErrorStatus, "error-status", "", "Error status policy: strict or lenient")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	if serveLogLevel != "" {
		cfg.Log.Level = serveLogLevel
	}
	if serveErrorStatus != "" {
		cfg.Reduce.ErrorStatus = serveErrorStatus
	}
	if err := cfg.Validate(); err != nil {
		return withCode(ExitConfigError, "invalid configuration: %v", err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return withCode(ExitConfigError, "%v", err)
	}
	slog.SetDefault(logger)

	reducer, err := reduce.NewService(reduce.Options{
		DefaultComponents: cfg.Reduce.DefaultComponents,
		MaxConcurrent:     cfg.Reduce.MaxConcurrent,
	})
	if err != nil {
		return withCode(ExitConfigError, "%v", err)
	}

	srv, err := server.NewServer(cfg, reducer)
	if err != nil {
		return err
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-shutdownChan:
		slog.Info("Shutdown signal received", "signal", sig.String())
	}

	srv.Shutdown()
	return <-errChan
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, withCode(ExitConfigError, "loading config: %v", err)
	}
	return cfg, nil
}
