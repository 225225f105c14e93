package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zabojeb/TSRNG/api"
	"github.com/zabojeb/TSRNG/log"
	"github.com/zabojeb/TSRNG/metrics"
	"github.com/zabojeb/TSRNG/rangesvc"
	"github.com/zabojeb/TSRNG/round"
	"github.com/zabojeb/TSRNG/store"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cliCfg, configPath, exit, code := parseFlags(args)
	if exit {
		return code
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	ApplyEnvironment(&cfg)
	MergeCLIFlags(&cfg, cliCfg)

	if err := ValidateConfig(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}
	if err := cfg.InitDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize datadir: %v\n", err)
		return 1
	}

	logger := log.New(parseLevel(cfg.LogLevel))
	if cfg.LogFormat == "console" {
		logger = log.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr}, parseLevel(cfg.LogLevel))
	}
	logger.Info("tsrngd " + version + " starting")
	logger.With("store_backend", cfg.StoreBackend).Info("resolved configuration")

	st, err := newStore(cfg)
	if err != nil {
		logger.Error("failed to initialize store", err)
		return 1
	}

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	svc := round.NewService(st, logger.Module("round"), reg)

	var history rangesvc.HistoryWriter
	if cfg.StoreBackend == "file" {
		history = rangesvc.NewFileHistoryWriter(cfg.DataDir)
	} else {
		history = rangesvc.NewMemHistoryWriter()
	}

	srv := api.NewServer(api.Config{
		EnableAuth: cfg.EnableAuth,
		AuthToken:  cfg.AuthToken,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		Defaults: api.Defaults{
			LeafSizeBytes: cfg.LeafSizeBytes,
			VDFT:          cfg.VDFT,
			ModulusBits:   cfg.ModulusBits,
			OutputBits:    cfg.OutputBits,
		},
	}, svc, st, history, reg, logger.Module("api"))

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: srv,
	}
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr(),
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.With("addr", cfg.HTTPAddr()).Info("JSON-RPC API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", err)
		}
	}()
	go func() {
		logger.With("addr", cfg.MetricsAddr()).Info("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.With("signal", sig.String()).Info("received signal, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown error", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", err)
	}

	logger.Info("shutdown complete")
	return 0
}

func newStore(cfg Config) (store.Store, error) {
	if cfg.StoreBackend == "file" {
		return store.NewFileStore(cfg.DataDir)
	}
	return store.NewMemStore(), nil
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// parseFlags parses CLI arguments into an override Config and a config
// file path. Returns the config, whether the caller should exit
// immediately, and the exit code.
func parseFlags(args []string) (Config, string, bool, int) {
	cfg := DefaultConfig()
	var configPath string
	fs := newFlagSet(&cfg, &configPath)

	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, configPath, true, 2
	}

	if *showVersion {
		fmt.Printf("tsrngd %s (commit %s)\n", version, commit)
		return cfg, configPath, true, 0
	}

	return cfg, configPath, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the given
// Config. The FlagSet uses ContinueOnError so callers control the error
// handling behavior.
func newFlagSet(cfg *Config, configPath *string) *flagSet {
	fs := newCustomFlagSet("tsrngd")
	fs.StringVar(configPath, "config", "", "path to a TOML-like config file")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path (file backend only)")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "store backend (memory, file)")
	fs.StringVar(&cfg.HTTPHost, "http.host", cfg.HTTPHost, "JSON-RPC API listen host")
	fs.IntVar(&cfg.HTTPPort, "http.port", cfg.HTTPPort, "JSON-RPC API listen port")
	fs.IntVar(&cfg.MetricsPort, "metrics.port", cfg.MetricsPort, "metrics listen port")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "logformat", cfg.LogFormat, "log format (json, console)")
	fs.IntVar(&cfg.LeafSizeBytes, "leaf-size-bytes", cfg.LeafSizeBytes, "default leaf size in bytes")
	fs.Uint64Var(&cfg.VDFT, "vdf-t", cfg.VDFT, "default VDF sequential-squaring count")
	fs.IntVar(&cfg.ModulusBits, "modulus-bits", cfg.ModulusBits, "default VDF modulus bit length")
	fs.IntVar(&cfg.OutputBits, "output-bits", cfg.OutputBits, "default extractor output bit length")
	fs.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "bearer token required on every request (enables auth)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "max requests per second per client IP (0 = unlimited)")
	return fs
}
