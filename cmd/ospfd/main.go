// Command ospfd runs a standalone OSPFv2 router process: it loads a YAML
// configuration, brings up the configured interfaces, and serves until an
// internal invariant violation or a termination signal stops it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ospfd/ospfd/internal/config"
	"github.com/ospfd/ospfd/internal/daemon"
	"github.com/ospfd/ospfd/internal/fib"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.String("config", "/etc/ospfd/ospfd.yaml", "path to the daemon's YAML configuration file")
	dryRun := pflag.Bool("dry-run", false, "load and validate configuration, then exit without running")
	cfg := config.Default()
	config.BindFlags(pflag.CommandLine, cfg)
	pflag.Parse()

	fileCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		applyOverride(fileCfg, f)
	})
	cfg = fileCfg

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ospfd: failed to build logger:", err)
		return 1
	}
	defer log.Sync()

	if *dryRun {
		if err := cfg.Validate(); err != nil {
			log.Error("configuration invalid", zap.Error(err))
			return 1
		}
		log.Info("configuration valid")
		return 0
	}

	f := fib.NewNetlinkFIB(cfg.FIBProtocol)

	d, err := daemon.New(cfg, f, log)
	if err != nil {
		log.Error("failed to construct daemon", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(log, cfg.MetricsAddr)
	}

	if err := d.Run(ctx); err != nil {
		log.Fatal("daemon exited", zap.Error(err))
		return 1
	}

	return 0
}

// applyOverride re-applies a flag the operator actually passed on the
// command line onto the config loaded from disk; config.BindFlags already
// bound the flags against the Default() config, so Visit only tells us
// which ones to carry over.
func applyOverride(cfg *config.Config, f *pflag.Flag) {
	switch f.Name {
	case "router-id":
		cfg.RouterID = f.Value.String()
	case "metrics-addr":
		cfg.MetricsAddr = f.Value.String()
	case "log-level":
		cfg.LogLevel = f.Value.String()
	case "fib-protocol-id":
		if v, err := strconv.Atoi(f.Value.String()); err == nil {
			cfg.FIBProtocol = v
		}
	}
}

// newLogger builds a production zap.Logger at the level named by
// levelName (debug, info, warn, error).
func newLogger(levelName string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("unrecognized log level %q: %w", levelName, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// serveMetrics runs the Prometheus scrape endpoint until the process
// exits; a listener failure is logged but is not fatal to the daemon
// itself.
func serveMetrics(log *zap.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics listener stopped", zap.String("addr", addr), zap.Error(err))
	}
}
