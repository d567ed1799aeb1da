package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/valetd/valet/pkg/valet/assistant"
	"github.com/valetd/valet/pkg/valet/store"
	"github.com/valetd/valet/pkg/valet/worker"
)

// runtime bundles everything a command needs to serve or chat.
type runtime struct {
	cfg       *assistant.Config
	logger    *slog.Logger
	db        *store.DB
	worker    *worker.Worker
	assistant *assistant.Assistant
}

func (r *runtime) close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

// resolveConfig loads config from the --config flag, auto-discovery, or
// defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*assistant.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := assistant.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := assistant.FindConfigFile(); found != "" {
		cfg, err := assistant.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		return cfg, nil
	}

	// No config file is fine for first runs; env vars can carry the key.
	return assistant.DefaultConfig(), nil
}

// buildLogger creates the slog logger per config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *assistant.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	logLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// openRuntime wires the full stack: secrets, database, worker, assistant.
func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cmd, cfg)

	// Audit BEFORE resolving — checks the raw config values for hardcoded keys.
	assistant.AuditSecrets(cfg, logger)
	// Resolve from vault → keyring → env → config.
	assistant.ResolveAPIKey(cfg, logger)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	llm := assistant.NewLLMClient(cfg, logger)

	w := worker.New(db, llm, worker.Config{
		Concurrency:   cfg.Worker.Concurrency,
		QueueSize:     cfg.Worker.QueueSize,
		Timeout:       time.Duration(cfg.Worker.TimeoutSeconds) * time.Second,
		StaleAfter:    time.Duration(cfg.Worker.StaleAfterMinutes) * time.Minute,
		SweepSchedule: cfg.Worker.SweepSchedule,
	}, logger)

	a, err := assistant.New(cfg, db, llm, w, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating assistant: %w", err)
	}

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		worker:    w,
		assistant: a,
	}, nil
}
