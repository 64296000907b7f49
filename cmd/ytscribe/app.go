package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jo-hoe/ytscribe/internal/acquire"
	"github.com/jo-hoe/ytscribe/internal/command"
	"github.com/jo-hoe/ytscribe/internal/common"
	appcfg "github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/engine"
	"github.com/jo-hoe/ytscribe/internal/engine/mock"
	"github.com/jo-hoe/ytscribe/internal/engine/openai"
	"github.com/jo-hoe/ytscribe/internal/engine/whispercpp"
	"github.com/jo-hoe/ytscribe/internal/jobs"
	"github.com/jo-hoe/ytscribe/internal/logging"
	"github.com/jo-hoe/ytscribe/internal/metrics"
	"github.com/jo-hoe/ytscribe/internal/processor"
)

// app holds the components shared by every subcommand.
type app struct {
	log      *slog.Logger
	cfg      *appcfg.Config
	store    jobs.Store
	tools    *acquire.Tools
	provider *engine.Provider
	orch     *processor.Orchestrator
	closers  []io.Closer
}

// newApp loads configuration and wires logging, history, acquisition and the engine.
func newApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := appcfg.Load(path)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Output:     logOut,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	a := &app{log: logger, cfg: cfg, closers: []io.Closer{logCloser}}

	if cfg.History.IsEnabled() {
		store, err := jobs.NewSQLiteStore(cfg.Server.DatabasePath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		a.store = store
	} else {
		a.store = jobs.NewMemoryStore(common.MemoryHistoryLimit)
	}
	a.closers = append([]io.Closer{a.store}, a.closers...)

	a.tools = acquire.New(logger, cfg.Acquisition)
	a.provider = engine.NewProvider(cfg.Engine.Provider, engineLoader(logger, cfg))
	a.orch = processor.New(logger, cfg, a.tools, a.provider, a.store)
	return a, nil
}

// Close releases the history store and the log file.
func (a *app) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// engineLoader returns the lazy constructor for the configured provider.
func engineLoader(log *slog.Logger, cfg *appcfg.Config) engine.Loader {
	audio := cfg.Audio
	return func(ctx context.Context) (engine.Engine, error) {
		var (
			eng engine.Engine
			err error
		)
		switch cfg.Engine.Provider {
		case "mock":
			eng = mock.New(cfg.Engine.Mock, audio.SampleRate, audio.ChunkLength)
		case "openai":
			eng, err = openai.Load(ctx, cfg.Engine.OpenAI, audio.SampleRate, audio.ChunkLength)
		case "whispercpp":
			var w *whispercpp.Engine
			w, err = whispercpp.Load(cfg.Engine.WhisperCPP, audio.SampleRate, audio.ChunkLength, cfg.Acquisition.WorkDir, command.ExecRunner{})
			if err == nil {
				log.Info("whisper.cpp model resolved", "model", w.Model())
				eng = w
			}
		default:
			err = fmt.Errorf("%w: unsupported provider %q", engine.ErrNotConfigured, cfg.Engine.Provider)
		}
		if err != nil {
			metrics.SetEngineLoaded(false)
			return nil, err
		}
		log.Info("transcription engine loaded", "engine", eng.Name())
		return eng, nil
	}
}
