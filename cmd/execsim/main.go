// Command execsim runs the execution simulator. It loads configuration,
// validates it, sets up signal handling and runs a session in the configured
// mode. The -sessions, -session and -order flags inspect stored sessions
// instead of running one; -book prints a cached live order book.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/execsim/internal/app"
	"github.com/alanyoungcy/execsim/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	reportPath := flag.String("report", "", "write the session report as JSON to this file (\"-\" for stdout)")
	listSessions := flag.Int("sessions", 0, "print the N most recent stored session reports and exit")
	showSession := flag.String("session", "", "print a stored session (from Postgres, else the S3 archive) and exit")
	showOrder := flag.String("order", "", "print a stored order and exit")
	showBook := flag.String("book", "", "print the cached order book for a symbol and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *listSessions > 0:
		exitOn(logger, application, application.ListSessions(ctx, *listSessions, os.Stdout))
		return
	case *showSession != "":
		exitOn(logger, application, application.ShowSession(ctx, *showSession, os.Stdout))
		return
	case *showOrder != "":
		exitOn(logger, application, application.ShowOrder(ctx, *showOrder, os.Stdout))
		return
	case *showBook != "":
		exitOn(logger, application, application.ShowBook(ctx, *showBook, os.Stdout))
		return
	}

	logger.Info("execsim starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("config_values", config.RedactedConfig(cfg)),
	)

	runErr := application.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		logger.Info("application shut down gracefully")
		runErr = nil
	}

	if *reportPath != "" {
		if err := writeReport(application, *reportPath); err != nil {
			logger.Error("failed to write report",
				slog.String("path", *reportPath),
				slog.String("error", err.Error()),
			)
		}
	}

	exitOn(logger, application, runErr)
	logger.Info("execsim stopped")
}

func writeReport(a *app.App, path string) error {
	if path == "-" {
		return a.WriteReport(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.WriteReport(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exitOn closes the application and exits non-zero when err is set;
// os.Exit skips deferred calls.
func exitOn(logger *slog.Logger, a *app.App, err error) {
	if err == nil {
		return
	}
	a.Close()
	logger.Error("application exited with error", slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(1)
}
