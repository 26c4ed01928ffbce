// Command cyclebot is the entry point for the cycle arbitrage bot. It loads
// configuration, validates it, sets up logging and signal handling, and
// starts the application in the configured mode.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/cyclebot/internal/app"
	"github.com/alanyoungcy/cyclebot/internal/config"
	"github.com/alanyoungcy/cyclebot/internal/crypto"
	"github.com/alanyoungcy/cyclebot/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	sealTo := flag.String("seal-secret", "", "read an API secret from stdin, seal it with $CYCLEBOT_SECRET_PASSWORD and write it to this path, then exit")
	flag.Parse()

	if *sealTo != "" {
		if err := sealSecret(*sealTo); err != nil {
			fmt.Fprintf(os.Stderr, "seal-secret: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Bootstrap logger until the config says otherwise.
	logger, _ := logging.New(os.Stdout, logging.Options{Level: "info"})
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger, closeLog := logging.New(os.Stdout, logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("cyclebot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error",
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		closeLog()
		os.Exit(1)
	}

	logger.Info("cyclebot stopped")
}

func sealSecret(path string) error {
	password := os.Getenv("CYCLEBOT_SECRET_PASSWORD")
	if password == "" {
		return errors.New("CYCLEBOT_SECRET_PASSWORD is not set")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read secret: %w", err)
	}
	sealed, err := crypto.SealSecret(strings.TrimSpace(line), password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}
