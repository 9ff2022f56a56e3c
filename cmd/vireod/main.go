package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vireo-social/vireo/internal/config"
	"github.com/vireo-social/vireo/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Handle version flag before subcommand parsing
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-version") {
		fmt.Printf("vireod version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "serve":
		runServe(os.Args[2:])
	case "vacuum":
		runVacuum(os.Args[2:])
	case "version":
		fmt.Printf("vireod version %s (built %s, commit %s)\n", version, buildTime, gitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: vireod <command> [options]

Commands:
  serve      Start the feed maintenance daemon (admin API + vacuum loop)
  vacuum     Run a single vacuum sweep and exit
  version    Print version information

Run 'vireod <command> --help' for more information on a command.`)
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listenAddr := fs.String("listen", "", "Override admin listen address (e.g., :8090)")

	fs.Usage = func() {
		fmt.Println(`Usage: vireod serve [options]

Start the feed maintenance daemon. Serves health, metrics, and vacuum
admin endpoints, and runs the scheduled vacuum sweep loop.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Observability.LogLevel),
		Format: logging.ParseFormat(cfg.Observability.LogFormat),
	})

	daemon, err := NewDaemon(DaemonOptions{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	})
	if err != nil {
		logger.Errorf("failed to create daemon", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- daemon.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Errorf("daemon error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := daemon.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("daemon shutdown complete")
}

func runVacuum(args []string) {
	fs := flag.NewFlagSet("vacuum", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dryRun := fs.Bool("dry-run", false, "Report keys that would be deleted without deleting")
	thresholdMs := fs.Int64("threshold-ms", 0, "Override the inactivity threshold in milliseconds")

	fs.Usage = func() {
		fmt.Println(`Usage: vireod vacuum [options]

Run a single vacuum sweep and print the result as JSON.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Observability.LogLevel),
		Format: logging.ParseFormat(cfg.Observability.LogFormat),
	})

	res, err := runSingleSweep(cfg, logger, *dryRun, *thresholdMs)
	if err != nil {
		logger.Errorf("vacuum sweep failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	data, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(data))
	if len(res.Failures) > 0 {
		fmt.Fprintf(os.Stderr, "sweep completed with %d owner failures\n", len(res.Failures))
		os.Exit(1)
	}
}
