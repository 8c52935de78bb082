package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/MrWong99/voiceprint/internal/config"
	"github.com/MrWong99/voiceprint/internal/observe"
	"github.com/MrWong99/voiceprint/internal/protocol"
	"github.com/MrWong99/voiceprint/internal/server"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed"
	"github.com/MrWong99/voiceprint/pkg/provider/voiceembed/pyannote"
	"github.com/MrWong99/voiceprint/pkg/types"
)

// DefaultConfigPath is consulted when --config is not given. A missing file
// falls back to built-in defaults.
const DefaultConfigPath = "voiceprint.yaml"

// newApp creates the CLI application with all commands.
func newApp() *cli.App {
	app := &cli.App{
		Name:    "voiceprint",
		Usage:   "Speaker resolution against enrolled voice profiles",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: DefaultConfigPath, Usage: "path to the YAML configuration file"},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level (debug|info|warn|error)"},
		},
		Commands: []*cli.Command{
			runCmd(),
			checkCmd(),
			enrollCmd(),
			identifyCmd(),
			listCmd(),
			deleteCmd(),
		},
	}
	return app
}

// setup loads the configuration, installs the default logger, seeds the
// credential from the environment, and builds the request server. The
// returned shutdown function flushes the metrics exporter when enabled.
func setup(c *cli.Context) (*server.Server, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		if !config.LogLevel(lvl).IsValid() {
			return nil, nil, fmt.Errorf("invalid log level %q", lvl)
		}
		cfg.Server.LogLevel = config.LogLevel(lvl)
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// Resolve the ambient credential once, here at the edge. Everything
	// below this point sees the token only as explicit configuration.
	if cfg.Provider.HuggingFaceToken == "" {
		cfg.Provider.HuggingFaceToken = os.Getenv("HUGGINGFACE_TOKEN")
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	shutdown := func() {}
	var opts []server.Option
	if cfg.Metrics.Enabled {
		stop, err := observe.InitProvider(c.Context, observe.ProviderConfig{
			ServiceVersion: cfg.Metrics.ServiceVersion,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init metrics: %w", err)
		}
		shutdown = func() {
			if err := stop(c.Context); err != nil {
				slog.Warn("metrics shutdown failed", "err", err)
			}
		}
		opts = append(opts, server.WithMetrics(observe.DefaultMetrics()))
	}

	return server.New(cfg, reg, opts...), shutdown, nil
}

// registerBuiltinProviders wires every embedding provider implementation
// shipped with the binary into the registry.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterEmbedding("pyannote", func(entry config.ProviderEntry, token string) (voiceembed.Provider, error) {
		var opts []pyannote.Option
		if entry.TimeoutSeconds > 0 {
			opts = append(opts, pyannote.WithTimeout(time.Duration(entry.TimeoutSeconds*float64(time.Second))))
		}
		if entry.Dimensions > 0 {
			opts = append(opts, pyannote.WithDimensions(entry.Dimensions))
		}
		if entry.Model != "" {
			opts = append(opts, pyannote.WithModelID(entry.Model))
		}
		return pyannote.New(entry.BaseURL, token, opts...)
	})
}

// execute runs one request through the server and translates the protocol
// exit status into a CLI error.
func execute(c *cli.Context, req protocol.Request) error {
	srv, shutdown, err := setup(c)
	if err != nil {
		return err
	}
	defer shutdown()

	if code := srv.Execute(c.Context, req, os.Stdout); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Read one JSON request from stdin and write the JSON response to stdout",
		Action: func(c *cli.Context) error {
			srv, shutdown, err := setup(c)
			if err != nil {
				return err
			}
			defer shutdown()

			if code := srv.Run(c.Context, os.Stdin, os.Stdout); code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}

// storeFlags are shared by every command that touches the profile store.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "profiles-dir", Usage: "profile store directory (default ~/.voiceprint/profiles)"},
	}
}

// tokenFlag is shared by commands that reach the embedding backend.
func tokenFlag() cli.Flag {
	return &cli.StringFlag{Name: "token", Usage: "HuggingFace token (falls back to config, then HUGGINGFACE_TOKEN)"}
}

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify the embedding backend is reachable and a credential is present",
		Flags: []cli.Flag{tokenFlag()},
		Action: func(c *cli.Context) error {
			return execute(c, protocol.Request{
				Action:           protocol.ActionCheck,
				HuggingFaceToken: c.String("token"),
			})
		},
	}
}

func enrollCmd() *cli.Command {
	return &cli.Command{
		Name:  "enroll",
		Usage: "Create a voice profile from an audio sample",
		Flags: append(storeFlags(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "identity name to enroll"},
			&cli.StringFlag{Name: "audio", Aliases: []string{"a"}, Required: true, Usage: "path to the enrollment audio sample"},
			tokenFlag(),
		),
		Action: func(c *cli.Context) error {
			return execute(c, protocol.Request{
				Action:           protocol.ActionEnroll,
				Name:             c.String("name"),
				AudioPath:        c.String("audio"),
				ProfilesDir:      c.String("profiles-dir"),
				HuggingFaceToken: c.String("token"),
			})
		},
	}
}

func identifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "identify",
		Usage: "Match diarized speakers in a transcript against enrolled profiles",
		Flags: append(storeFlags(),
			&cli.StringFlag{Name: "audio", Aliases: []string{"a"}, Required: true, Usage: "path to the recording the segments refer to"},
			&cli.StringFlag{Name: "segments-file", Aliases: []string{"s"}, Required: true, Usage: "JSON file holding the diarized segment array"},
			&cli.Float64Flag{Name: "threshold", Usage: "similarity acceptance threshold (default 0.70)"},
			tokenFlag(),
		),
		Action: func(c *cli.Context) error {
			segments, err := readSegments(c.String("segments-file"))
			if err != nil {
				return err
			}
			req := protocol.Request{
				Action:           protocol.ActionIdentify,
				AudioPath:        c.String("audio"),
				Segments:         segments,
				ProfilesDir:      c.String("profiles-dir"),
				HuggingFaceToken: c.String("token"),
			}
			if c.IsSet("threshold") {
				t := c.Float64("threshold")
				req.Threshold = &t
			}
			return execute(c, req)
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List enrolled speaker profiles",
		Flags: storeFlags(),
		Action: func(c *cli.Context) error {
			return execute(c, protocol.Request{
				Action:      protocol.ActionList,
				ProfilesDir: c.String("profiles-dir"),
			})
		},
	}
}

func deleteCmd() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a speaker profile by name",
		Flags: append(storeFlags(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "identity name to delete"},
		),
		Action: func(c *cli.Context) error {
			return execute(c, protocol.Request{
				Action:      protocol.ActionDelete,
				Name:        c.String("name"),
				ProfilesDir: c.String("profiles-dir"),
			})
		},
	}
}

// readSegments parses a JSON segment array from path.
func readSegments(path string) ([]types.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segments file: %w", err)
	}
	var segments []types.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("parse segments file %q: %w", path, err)
	}
	return segments, nil
}
