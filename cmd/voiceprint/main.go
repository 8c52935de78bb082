// Command voiceprint resolves anonymous diarized speakers to enrolled
// identities by voice-embedding similarity.
//
// The primary mode is `voiceprint run`: one JSON request on stdin, one JSON
// response on stdout, non-zero exit status on failure. Convenience
// subcommands (check, enroll, identify, list, delete) build the same request
// from flags and produce identical output.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/voiceprint/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp()
	if err := app.RunContext(ctx, os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "voiceprint: %v\n", err)
		}
		return 1
	}
	return 0
}

// newLogger builds the default slog logger for the configured level.
// Logs go to stderr so stdout stays reserved for the JSON response.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
