// Package app wires the Earshot subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface and the transcription worker until
// the context ends, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithBackend, WithTranscriber, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/earshot-dev/earshot/internal/bridge"
	"github.com/earshot-dev/earshot/internal/config"
	"github.com/earshot-dev/earshot/internal/diag"
	"github.com/earshot-dev/earshot/internal/engine"
	"github.com/earshot-dev/earshot/internal/observe"
	"github.com/earshot-dev/earshot/internal/store"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
	malgobackend "github.com/earshot-dev/earshot/pkg/audio/capture/malgo"
	"github.com/earshot-dev/earshot/pkg/provider/stt"
	"github.com/earshot-dev/earshot/pkg/provider/stt/whisper"
)

// shutdownTimeout bounds the HTTP server's graceful drain after the run
// context ends.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes for the Earshot capture service.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Subsystems — initialised in New, torn down in Shutdown.
	backend     capture.Backend
	manager     *engine.Manager
	hub         *bridge.Hub
	diag        *diag.Logger
	store       store.Store
	transcriber stt.Transcriber
	worker      *worker
	metrics     *observe.Metrics

	// settingsPath is where mutable device settings are persisted.
	settingsPath string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackend injects a capture backend instead of initialising miniaudio.
func WithBackend(b capture.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithTranscriber injects a transcriber instead of loading a whisper model.
func WithTranscriber(t stt.Transcriber) Option {
	return func(a *App) { a.transcriber = t }
}

// WithStore injects a transcript store instead of opening the sqlite file.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithDiagnostics injects a diagnostics logger instead of opening the
// configured trace file.
func WithDiagnostics(l *diag.Logger) Option {
	return func(a *App) { a.diag = l }
}

// WithSettingsPath overrides the device settings file location.
func WithSettingsPath(path string) Option {
	return func(a *App) { a.settingsPath = path }
}

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: the audio backend, transcript store, whisper model, and
// diagnostics sink are all opened here so failures surface before Run.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		cfg: cfg,
		log: log,
	}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.settingsPath == "" {
		path, err := config.SettingsPath()
		if err != nil {
			return nil, fmt.Errorf("app: resolve settings path: %w", err)
		}
		a.settingsPath = path
	}

	if err := a.initDiagnostics(); err != nil {
		return nil, fmt.Errorf("app: init diagnostics: %w", err)
	}
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}
	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initTranscriber(); err != nil {
		return nil, fmt.Errorf("app: init transcriber: %w", err)
	}

	a.hub = bridge.NewHub(log)

	// The engine emits to the websocket hub and, when transcription is
	// configured, to the in-process worker too.
	emitters := bridge.Multi{a.hub}
	if a.transcriber != nil {
		a.worker = newWorker(workerConfig{
			Transcriber: a.transcriber,
			Store:       a.store,
			Emitter:     a.hub,
			Diagnostics: a.diag,
			Metrics:     a.metrics,
			Log:         log,
		})
		emitters = append(emitters, a.worker)
	}

	a.manager = engine.NewManager(engine.ManagerConfig{
		Backend:     a.backend,
		Emitter:     emitters,
		Capture:     cfg.Capture,
		Diagnostics: a.diag,
		Metrics:     a.metrics,
	})

	return a, nil
}

// initDiagnostics opens the configured trace file unless a logger was
// injected. No path configured means no trace; the nil logger is a no-op.
func (a *App) initDiagnostics() error {
	if a.diag != nil || a.cfg.Diagnostics.LogPath == "" {
		return nil
	}
	l, closeFn, err := diag.Open(a.cfg.Diagnostics.LogPath)
	if err != nil {
		return err
	}
	a.diag = l
	a.closers = append(a.closers, closeFn)
	return nil
}

// initBackend initialises the miniaudio context unless a backend was injected.
func (a *App) initBackend() error {
	if a.backend != nil {
		return nil
	}
	b, err := malgobackend.New(malgobackend.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.backend = b
	a.closers = append(a.closers, b.Close)
	return nil
}

// initStore opens the sqlite transcript store when a path is configured.
func (a *App) initStore() error {
	if a.store != nil || a.cfg.Storage.SQLitePath == "" {
		return nil
	}
	s, err := store.OpenSQLite(a.cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return nil
}

// initTranscriber loads the whisper model when one is configured.
func (a *App) initTranscriber() error {
	if a.transcriber != nil || a.cfg.STT.ModelPath == "" {
		return nil
	}
	t, err := whisper.New(a.cfg.STT.ModelPath, whisper.WithLanguage(a.cfg.STT.Language))
	if err != nil {
		return err
	}
	a.transcriber = t
	a.closers = append(a.closers, t.Close)
	return nil
}

// Run serves the HTTP surface and the transcription worker until ctx is
// cancelled, then stops the capture session and drains the server.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        a.cfg.Server.ListenAddr,
		Handler:     a.Routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	if a.worker != nil {
		g.Go(func() error {
			a.worker.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		if err := a.manager.Stop(); err != nil {
			a.log.Warn("stop capture on shutdown", "err", err)
		}

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in reverse-init order. Safe to call more
// than once.
func (a *App) Shutdown() error {
	var errs []error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.manager.Stop(); err != nil {
			errs = append(errs, err)
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("app: shutdown: %w", errs[0])
	}
	return nil
}

// Manager exposes the capture session manager.
func (a *App) Manager() *engine.Manager { return a.manager }

// Hub exposes the websocket event hub.
func (a *App) Hub() *bridge.Hub { return a.hub }
