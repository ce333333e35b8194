package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/mikudb/pkg/config"
	"github.com/cuemby/mikudb/pkg/engine"
	"github.com/cuemby/mikudb/pkg/mlog"
	"github.com/cuemby/mikudb/pkg/mmetrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mikudb-server",
	Short:   "MikuDB embedded document engine process",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mikudb-server version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory holding the storage file and write-ahead log")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (overrides --data-dir if set)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	mlog.Init(mlog.Config{
		Level:      mlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

const defaultMetricsInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the engine, run recovery, and block until terminated",
	RunE:  runServe,
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.Load(configPath)
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cfg := config.Default(dataDir)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer eng.Close()

	stats := eng.RecoveryStats()
	mlog.Info(fmt.Sprintf("recovery replayed %d transactions (%d inserts, %d updates, %d deletes)",
		stats.TransactionsRecovered, stats.InsertsReplayed, stats.UpdatesReplayed, stats.DeletesReplayed))

	collector := mmetrics.NewCollector(eng)
	collector.Start(defaultMetricsInterval)
	defer collector.Stop()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mmetrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				mlog.Errorf("metrics server failed", err)
			}
		}()
		defer srv.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	mlog.Info("shutdown signal received")
	return nil
}
