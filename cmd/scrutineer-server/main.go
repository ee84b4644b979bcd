// Package main provides the scrutineer server binary.
// The server exposes the ballot analysis HTTP API plus health, metrics,
// and stats endpoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrutineering/scrutineer/internal/config"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
	"github.com/scrutineering/scrutineer/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scrutineer-server",
		Short: "Scrutineer Server - ballot analysis HTTP API",
		Long: `Scrutineer Server scores competition scoresheets under four voting
systems and serves the results over HTTP.

The server exposes:
  - POST /v1/analyses  to score a scoresheet under every system
  - GET  /v1/systems   to list the registered systems
  - GET  /v1/stats     for aggregated analysis counters
  - /healthz, /readyz, and /metrics for operations

Examples:
  scrutineer-server                      # Start with defaults
  scrutineer-server --port 9090          # Custom HTTP port
  scrutineer-server --bus kafka          # Publish analysis events to Kafka
  scrutineer-server -c scrutineer.yaml   # Load settings from a config file`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	// Server flags
	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().String("bus", "", "event bus type (memory, kafka)")
	rootCmd.Flags().String("kafka-brokers", "", "comma-separated Kafka brokers (overrides config)")
	rootCmd.Flags().Int64("seed", 0, "seed for random tiebreaks (0 uses a time seed)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scrutineer-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	busType, _ := cmd.Flags().GetString("bus")
	kafkaBrokers, _ := cmd.Flags().GetString("kafka-brokers")
	seed, _ := cmd.Flags().GetInt64("seed")

	// Load config
	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override from flags
	if cmd.Flags().Changed("port") {
		appCfg.Port = port
	}
	if cmd.Flags().Changed("host") {
		appCfg.Host = host
	}
	if busType != "" {
		appCfg.Bus.Type = busType
	}
	if kafkaBrokers != "" {
		appCfg.Bus.KafkaBrokers = kafkaBrokers
	}
	if cmd.Flags().Changed("seed") {
		appCfg.Analysis.RandomSeed = seed
	}

	// Setup logger
	logLevel := appCfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, appCfg.Log.Format)

	log.Info("Starting Scrutineer Server",
		"version", version,
		"addr", appCfg.Address(),
		"bus", appCfg.Bus.Type,
		"metrics", appCfg.Metrics.Enabled,
	)

	srvCfg := server.Config{
		Host:            appCfg.Host,
		Port:            appCfg.Port,
		Version:         version,
		ReadTimeout:     time.Duration(appCfg.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(appCfg.WriteTimeout) * time.Second,
		ShutdownTimeout: time.Duration(appCfg.ShutdownTimeout) * time.Second,
	}

	srv, err := server.New(srvCfg, *appCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("Shutdown signal received", "signal", sig.String())
	}

	if err := srv.Stop(context.Background()); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	if summary := srv.MetricsSummary(); summary != "" {
		log.Info("Final metrics", "summary", summary)
	}

	log.Info("Server stopped")
	return nil
}
