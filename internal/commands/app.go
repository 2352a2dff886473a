package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"nexus/internal/assistant"
	"nexus/internal/chat"
	"nexus/internal/config"
	"nexus/internal/crosstab"
	"nexus/internal/directory"
	"nexus/internal/metrics"
	"nexus/internal/nexusdb"
	"nexus/internal/storage"
	"nexus/internal/ws"
)

// app is one tab's worth of wiring: a storage view of the origin, the
// reactive store on top of it and the services that act on the store.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metrics.Metrics
	hub       *ws.Hub
	store     *nexusdb.Store
	directory *directory.Service
	assistant *assistant.Bridge
	engine    *chat.Engine

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []io.Closer
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// openApp loads the configuration and attaches a tab to the origin: a
// local one over the configured storage, or a remote one when an origin
// URL is configured.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	var (
		kv     storage.Store
		events <-chan storage.Event
	)
	if cfg.OriginURL != "" {
		remote, err := ws.Dial(ctx, cfg.OriginURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, remote)
		kv, events = remote, remote.Events()
	} else {
		base, err := storage.Open(cfg.StorageBackend, cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		a.hub = ws.NewHub(base, log, a.metrics)
		tab := a.hub.Open()
		a.closers = append(a.closers, a.hub, tab)
		kv, events = tab, tab.Events()
	}

	a.store = nexusdb.New(kv, nexusdb.WithLogger(log), nexusdb.WithMetrics(a.metrics))
	a.directory = directory.New(a.store, directory.WithLogger(log), directory.WithCost(cfg.BcryptCost))
	if _, err := a.directory.Seed(cfg.SeedSecret); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed directory: %w", err)
	}

	ctx, a.cancel = context.WithCancel(ctx)

	gemini := assistant.NewGemini(assistant.GeminiConfig{
		APIKey:   cfg.CompletionAPIKey,
		Model:    cfg.CompletionModel,
		Endpoint: cfg.CompletionEndpoint,
		Timeout:  cfg.CompletionTimeout,
		Rate:     cfg.CompletionRate,
		Burst:    cfg.CompletionBurst,
	}, nil, log)
	a.assistant = assistant.NewBridge(ctx, a.store, gemini,
		assistant.WithLogger(log),
		assistant.WithMetrics(a.metrics),
		assistant.WithWindow(cfg.HistoryWindow),
	)
	a.engine = chat.New(chat.Config{
		Store:     a.store,
		Assistant: a.assistant,
		Log:       log,
		Metrics:   a.metrics,
	})

	bridge := crosstab.New(events, a.currentUserID, a.store.Notify, log)
	a.wg.Go(func() { _ = bridge.Run(ctx) })

	return a, nil
}

func (a *app) currentUserID() string {
	me, _ := a.store.CurrentUser()
	return me.ID
}

// Close waits for outstanding assistant replies, then detaches from the origin.
func (a *app) Close() {
	if a.engine != nil {
		a.engine.Wait()
	}
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.wg.Wait()
}
