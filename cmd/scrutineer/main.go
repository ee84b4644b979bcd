// Package main provides the scrutineer CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrutineering/scrutineer/internal/analysis"
	"github.com/scrutineering/scrutineer/internal/ballot"
	"github.com/scrutineering/scrutineer/internal/config"
	"github.com/scrutineering/scrutineer/internal/consensus"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
	"github.com/scrutineering/scrutineer/internal/server"
	"github.com/scrutineering/scrutineer/internal/voting"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scrutineer",
		Short: "Scrutineer - competition ballot analysis",
		Long: `Scrutineer ranks competition scoresheets under four voting systems
(Borda Count, Relative Placement, Schulze, Sequential IRV) and reports
where and why the systems disagree.

Run 'scrutineer analyze scoresheet.json' to rank a scoresheet.
Run 'scrutineer serve' to start the HTTP API server.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		analyzeCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <scoresheet>",
		Short: "Rank a scoresheet under every voting system",
		Long: `Analyze reads a scoresheet (.json, .yaml, or .csv), scores it under
every registered voting system, and prints the final rankings with a
cross-system consensus report.

Examples:
  scrutineer analyze final.json
  scrutineer analyze final.csv --format json
  scrutineer analyze final.yaml --system "Relative Placement"
  scrutineer analyze final.json --seed 42`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().Int64("seed", 0, "seed for random tiebreaks (0 uses a time seed)")
	cmd.Flags().String("system", "", "score under a single system by name")
	cmd.Flags().String("format", "text", "output format (text, json)")
	cmd.Flags().Bool("no-consensus", false, "skip the consensus report")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	seed, _ := cmd.Flags().GetInt64("seed")
	systemName, _ := cmd.Flags().GetString("system")
	format, _ := cmd.Flags().GetString("format")
	noConsensus, _ := cmd.Flags().GetBool("no-consensus")

	sheet, err := ballot.DecodeFile(args[0])
	if err != nil {
		return err
	}

	picker := voting.NewTimePicker()
	if seed != 0 {
		picker = voting.NewPicker(seed)
	}
	registry := analysis.NewRegistry(picker)

	out := cmd.OutOrStdout()

	// Single-system mode scores one engine and skips the consensus report.
	if systemName != "" {
		system, err := registry.Get(systemName)
		if err != nil {
			return err
		}
		if err := sheet.Validate(); err != nil {
			return err
		}
		result, err := system.Score(sheet)
		if err != nil {
			return err
		}
		if format == "json" {
			return writeIndented(out, result)
		}
		printRanking(out, *result)
		return nil
	}

	orchestrator := analysis.NewOrchestrator(registry, !noConsensus)
	result, err := orchestrator.Analyze(sheet)
	if err != nil {
		return err
	}

	if format == "json" {
		return writeIndented(out, result)
	}

	printAnalysis(out, sheet, result)
	return nil
}

func writeIndented(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnalysis(w io.Writer, sheet *ballot.Scoresheet, result *analysis.Result) {
	name := result.Scoresheet.CompetitionName
	if name == "" {
		name = "Scoresheet"
	}
	fmt.Fprintf(w, "%s: %d competitors, %d judges (ballot %s)\n",
		name, result.Scoresheet.NumCompetitors, result.Scoresheet.NumJudges, sheet.Fingerprint())

	for _, res := range result.Results {
		fmt.Fprintln(w)
		printRanking(w, res)
	}

	for _, f := range result.Failures {
		fmt.Fprintf(w, "\n%s failed: %s\n", f.System, f.Error)
	}

	if result.Consensus != nil {
		printConsensus(w, result.Consensus)
	}

	fmt.Fprintf(w, "\nCompleted in %dms\n", result.ElapsedMs)
}

func printRanking(w io.Writer, res voting.Result) {
	fmt.Fprintf(w, "%s\n", res.SystemName)
	for _, p := range res.FinalRanking {
		tied := ""
		if p.Tied {
			tied = " (tied)"
		}
		fmt.Fprintf(w, "  %2d. %s%s\n", p.Rank, p.Competitor, tied)
	}
}

func printConsensus(w io.Writer, report *consensus.Report) {
	fmt.Fprintf(w, "\nConsensus\n")
	if report.AllIdentical {
		fmt.Fprintln(w, "  every system produced the same ranking")
		return
	}

	fmt.Fprintf(w, "  mean kendall tau-b: %+.3f\n", report.MeanKendallTau)
	fmt.Fprintf(w, "  mean spearman:      %+.3f\n", report.MeanSpearman)
	for _, c := range report.Competitors {
		if c.Spread > 0 {
			fmt.Fprintf(w, "  %s places %d-%d depending on the system\n", c.Competitor, c.Best, c.Worst)
		}
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scrutineer HTTP server",
		Long: `Start the HTTP API server. Scoresheets are submitted to
POST /v1/analyses; every analysis is published to the configured
event bus and recorded in the metrics registry.`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	cmd.Flags().String("bus", "", "event bus type (memory, kafka)")
	cmd.Flags().Int64("seed", 0, "seed for random tiebreaks (0 uses a time seed)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	busType, _ := cmd.Flags().GetString("bus")
	seed, _ := cmd.Flags().GetInt64("seed")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flag overrides
	if cmd.Flags().Changed("port") {
		appCfg.Port = port
	}
	if cmd.Flags().Changed("host") {
		appCfg.Host = host
	}
	if busType != "" {
		appCfg.Bus.Type = busType
	}
	if cmd.Flags().Changed("seed") {
		appCfg.Analysis.RandomSeed = seed
	}

	logLevel := appCfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, appCfg.Log.Format)

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

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

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

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scrutineer %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
