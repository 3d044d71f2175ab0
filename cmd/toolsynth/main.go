// Command toolsynth synthesizes multi-turn tool-use trajectories from a tool catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/skosovsky/toolsynth/config"
)

var (
	// Global flags
	configPath  string
	catalogPath string
	verbose     bool
	metricsAddr string

	cfg     config.Config
	zlog    *zap.Logger
	logger  *slog.Logger
	metrics *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "toolsynth",
	Short: "Synthesize multi-turn tool-use training data",
	Long: `toolsynth normalizes a tool catalog, builds the dependency graph between its tools,
walks that graph into function signature paths, augments them and executes every path
against simulated tools, writing one trajectory record per path.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "tools.json", "tool catalog (JSON or YAML list of tools)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(graphCmd, walkCmd, synthCmd, inspectCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	zcfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zlog, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = slog.New(zapslog.NewHandler(zlog.Core()))
	slog.SetDefault(logger)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", metricsAddr)
	}
	return nil
}

func teardown() {
	if metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metrics.Shutdown(ctx)
		cancel()
	}
	if zlog != nil {
		_ = zlog.Sync()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
