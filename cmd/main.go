package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harshul/devharness/internal/config"
	"github.com/harshul/devharness/internal/logger"
	"github.com/harshul/devharness/internal/orchestrator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

var (
	configFile string
	rootDir    string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devharness",
	Short: "Start, stop and switch the dev servers behind the e2e browser tests",
	Long: `devharness drives the local development servers used by the end-to-end
browser tests. It detects the active framework mode, starts and stops the
servers, waits for them to answer, reclaims ports held by stray processes
and switches the installed React / Next.js version.

Usage:
  devharness start                     Start the servers of the current mode
  devharness stop                      Stop every harness server
  devharness status                    Show server state
  devharness switch react 19.1.1       Switch versions and restart
  devharness mode set nextjs           Change the framework mode`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (default <root>/devharness.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root (default current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(versionInfoCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(reportCmd)
}

// loadConfig reads configuration and builds the logger for one invocation.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(rootDir, configFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

// withOrchestrator runs fn with a fresh orchestrator and flushes its readiness
// session afterwards.
func withOrchestrator(fn func(o *orchestrator.Orchestrator) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	o := orchestrator.New(cfg, log, orchestrator.Options{Worker: "cli"})
	runErr := fn(o)
	if err := o.Close(); err != nil {
		log.Warn("failed to write readiness handoff", zap.Error(err))
	}
	return runErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
