package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alovak/fakepay/internal/tracing"
	"github.com/alovak/fakepay/payments"
	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

var (
	flagHTTPAddr    = flag.String("http", "", "HTTP listen address (overrides HTTP_ADDR)")
	flagISO8583Addr = flag.String("iso8583", "", "ISO 8583 listen address (overrides ISO8583_ADDR)")
	flagBackend     = flag.String("backend", "", "ledger backend: mem|pg|redis (overrides REPO_BACKEND)")
	flagJSON        = flag.Bool("json", false, "log as JSON")
	flagEnvFile     = flag.String("env-file", ".env", "dotenv file loaded before reading the environment, if present")
)

func main() {
	flag.Parse()

	var logger *slog.Logger
	if *flagJSON {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	slog.SetDefault(logger)

	if *flagEnvFile != "" {
		if err := godotenv.Load(*flagEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fail(fmt.Errorf("loading %s: %w", *flagEnvFile, err))
		}
	}

	cfg, err := payments.ConfigFromEnv()
	if err != nil {
		fail(err)
	}
	if *flagHTTPAddr != "" {
		cfg.HTTPAddr = *flagHTTPAddr
	}
	if *flagISO8583Addr != "" {
		cfg.ISO8583Addr = *flagISO8583Addr
	}
	if *flagBackend != "" {
		cfg.Backend = *flagBackend
	}

	shutdownTracing, err := tracing.Init(context.Background(), "fakepay")
	if err != nil {
		logger.Error("initializing tracing", "err", err)
	}

	app := payments.NewApp(logger, cfg)
	if err := app.Start(); err != nil {
		fail(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	app.Shutdown()

	if shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("shutting down tracing", "err", err)
		}
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "fakepay:", err)
	os.Exit(1)
}
