package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/cpusched/internal/config"
	"github.com/me/cpusched/internal/logging"
	"github.com/me/cpusched/internal/metrics"
	"github.com/me/cpusched/internal/server"
	"github.com/me/cpusched/internal/store"
	"github.com/me/cpusched/internal/tracing"
)

const version = "0.1.0"

func main() {
	defaults := config.DefaultServerConfig()

	configFile := flag.String("config", "", "Path to a YAML server config file")
	addr := flag.String("addr", defaults.Addr, "Listen address")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format (text, json)")
	dbPath := flag.String("db", defaults.DBPath, "Database path (default ~/.cpusched/cpusched.db)")
	traceFile := flag.String("trace-file", defaults.TraceFile, "Write OpenTelemetry spans as JSON to this file")
	maxTicks := flag.Int("max-ticks", defaults.Simulation.MaxTicks, "Tick budget per simulation (0 for no limit)")
	tickInterval := flag.Duration("tick-interval", defaults.Simulation.TickInterval, "Wall-clock pause between simulated ticks")
	cpu := flag.Uint("cpu", uint(defaults.Simulation.CPU), "Processor simulated schedulers run on unless a workload names one")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		case "db":
			cfg.DBPath = *dbPath
		case "trace-file":
			cfg.TraceFile = *traceFile
		case "max-ticks":
			cfg.Simulation.MaxTicks = *maxTicks
		case "tick-interval":
			cfg.Simulation.TickInterval = *tickInterval
		case "cpu":
			cfg.Simulation.CPU = uint32(*cpu)
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	if cfg.TraceFile != "" {
		shutdownTracing, err := tracing.Init("cpusched-server", version, cfg.TraceFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init tracing: %v\n", err)
			os.Exit(1)
		}
		defer shutdownTracing(context.Background())
		logger.Info("tracing enabled", "file", cfg.TraceFile)
	}

	// Resolve database path.
	path := cfg.DBPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".cpusched")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		path = filepath.Join(dir, "cpusched.db")
	}

	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", path)

	srv := server.New(cfg, st, logger, server.WithMetrics(metrics.New()))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr,
			"max_ticks", cfg.Simulation.MaxTicks, "cpu", cfg.Simulation.CPU)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
