// Package cli provides the initialization steps shared by cmd/finboard and
// cmd/finboard-events.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"finboard/internal/config"
	"finboard/internal/log"
	"finboard/internal/storage"
)

// SetupLogger creates the process logger at the given LOG_LEVEL and makes
// it the slog default.
func SetupLogger(level string, out io.Writer) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: log.ComponentApp,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// OpenLogFile opens path for appending, creating its directory. The TUI
// owns the terminal, so the interactive binary logs here instead.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// LoadEnvFile loads .env files for local development. Missing files are
// ignored and variables already set win.
func LoadEnvFile(files ...string) {
	_ = godotenv.Load(files...)
}

// LoadAndValidateConfig loads configuration and exits the process when it
// is invalid.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenPrefs opens the preference store described by cfg: in memory for
// ":memory:", sqlite otherwise, age-encrypted when a passphrase is set.
// The returned close function is never nil.
func OpenPrefs(cfg *config.Config) (storage.Prefs, func() error, error) {
	var (
		prefs   storage.Prefs
		closeFn = func() error { return nil }
	)
	if cfg.PrefsDBPath == ":memory:" {
		prefs = storage.NewMemoryPrefs()
	} else {
		repo, err := storage.NewSQLitePrefs(cfg.PrefsDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open prefs %s: %w", cfg.PrefsDBPath, err)
		}
		prefs, closeFn = repo, repo.Close
	}

	if cfg.PrefsPassphrase == "" {
		return prefs, closeFn, nil
	}
	enc, err := storage.NewEncrypted(prefs, cfg.PrefsPassphrase, 0)
	if err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("encrypt prefs: %w", err)
	}
	return enc, closeFn, nil
}

// InitPrefs is OpenPrefs that exits the process on failure.
func InitPrefs(logger *log.Logger, cfg *config.Config) (storage.Prefs, func() error) {
	prefs, closeFn, err := OpenPrefs(cfg)
	if err != nil {
		logger.Error("Failed to initialize preferences", "error", err, "path", cfg.PrefsDBPath)
		os.Exit(1)
	}
	logger.Info("Preferences ready",
		"path", cfg.PrefsDBPath,
		"encrypted", cfg.PrefsPassphrase != "")
	return prefs, closeFn
}

// ErrNotTerminal is returned when a password prompt has no terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

// ReadPassword prompts on w and reads a line from stdin without echo.
func ReadPassword(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotTerminal
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// TerminalWidth returns the width of stdout, or fallback when stdout is not
// a terminal.
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// GracefulShutdown returns a context cancelled on SIGINT, SIGTERM or when
// parent ends, after cleanup ran, and a channel closed once shutdown is
// complete.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-parent.Done():
			logger.Info("Shutting down")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until shutdown completed.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
