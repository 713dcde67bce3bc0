// Package app wires the FUNtastic subsystems into a running server.
//
// The App owns the full lifecycle: New builds the buddy controller, the
// content service and the HTTP control API, Run serves until its context is
// cancelled, and Shutdown tears everything down in order.
//
// Providers and audio devices are built by the caller (see cmd/buddy) and
// handed in through [Providers], which keeps the app testable with mocks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ramadascd1-rgb/FUNtastic/internal/buddy"
	"github.com/ramadascd1-rgb/FUNtastic/internal/config"
	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
	"github.com/ramadascd1-rgb/FUNtastic/internal/observe"
	"github.com/ramadascd1-rgb/FUNtastic/internal/resilience"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/audio/playback"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
)

const (
	// shutdownTimeout bounds the graceful HTTP drain once Run's context ends.
	shutdownTimeout = 10 * time.Second

	// connectTimeout bounds Start's dial when triggered over HTTP.
	connectTimeout = 30 * time.Second
)

// Providers holds the externally constructed dependencies. The buddy
// controller is only built when Live, Microphone and Sink are all set;
// otherwise the buddy endpoints answer 503.
type Providers struct {
	Live live.Provider

	// Content is the media backend, usually a [resilience.ContentFallback].
	Content content.Backend

	// ContentName labels content metrics and spans.
	ContentName string

	// ContentStatus reports the failover breakers for /readyz and
	// GET /v1/content/backends. Optional.
	ContentStatus func() []resilience.EntryStatus

	Microphone audio.Microphone
	Sink       playback.Sink

	// Clock is the playback clock. Defaults to a [playback.SystemClock] when
	// the sink does not provide one.
	Clock playback.Clock
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	scheduler *playback.Scheduler
	buddy     *buddy.Controller
	content   *content.Service
	events    *hub

	metricsHandler http.Handler
	handler        http.Handler
	server         *http.Server

	// closing is closed when the server starts draining so that streaming
	// handlers return.
	closing     chan struct{}
	closingOnce sync.Once

	// closers are called in order during Shutdown, followed by
	// callerClosers.
	closers       []func() error
	callerClosers []func() error
	stopOnce      sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithCloser registers fn to run during Shutdown after the app's own
// subsystems are stopped. Used for devices opened by the caller.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.callerClosers = append(a.callerClosers, fn) }
}

// New wires the subsystems together. It performs no I/O.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil || providers == nil {
		return nil, errors.New("app: config and providers are required")
	}
	if providers.Content == nil {
		return nil, errors.New("app: content backend is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		events:    newHub(),
		closing:   make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Content ───────────────────────────────────────────────────────
	name := providers.ContentName
	if name == "" {
		name = cfg.Content.Primary.Name
	}
	a.content = content.NewService(providers.Content, name, content.WithMetrics(a.metrics))

	// ── 2. Buddy ─────────────────────────────────────────────────────────
	if err := a.initBuddy(); err != nil {
		return nil, fmt.Errorf("app: init buddy: %w", err)
	}

	// ── 3. HTTP ──────────────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.closers = append(a.closers, a.callerClosers...)
	return a, nil
}

func (a *App) initBuddy() error {
	p := a.providers
	if p.Live == nil || p.Microphone == nil || p.Sink == nil {
		slog.Info("buddy disabled; live provider or audio devices not configured",
			"live", p.Live != nil, "microphone", p.Microphone != nil, "speaker", p.Sink != nil)
		return nil
	}
	clock := p.Clock
	if clock == nil {
		if c, ok := p.Sink.(playback.Clock); ok {
			clock = c
		} else {
			clock = playback.NewSystemClock()
		}
	}
	a.scheduler = playback.New(p.Sink, clock)

	ctrl, err := buddy.New(buddy.Config{
		Microphone: p.Microphone,
		Provider:   p.Live,
		Scheduler:  a.scheduler,
		Live: live.Config{
			Model:        a.cfg.Live.Provider.Model,
			Voice:        a.cfg.Live.Voice,
			Instructions: a.cfg.Live.Instructions,
			Transcribe:   !a.cfg.Live.DisableTranscripts,
		},
		TranscriptLines: a.cfg.Audio.TranscriptLines,
		SendQueue:       a.cfg.Audio.SendQueue,
		Metrics:         a.metrics,
	})
	if err != nil {
		return err
	}
	ctrl.OnChange(a.events.publish)
	a.buddy = ctrl
	a.closers = append(a.closers, ctrl.Stop, a.scheduler.Close)
	return nil
}

// Handler returns the instrumented HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Buddy returns the session controller, or nil when it is disabled.
func (a *App) Buddy() *buddy.Controller { return a.buddy }

// Run serves the HTTP API until ctx is cancelled, then drains the server.
// It returns ctx.Err() after a clean drain, or the first serve error.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.closingOnce.Do(func() { close(a.closing) })
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: drain http: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown stops the buddy session and runs the closers in order. If ctx
// expires first, the remaining closers are skipped and ctx.Err() is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.closingOnce.Do(func() { close(a.closing) })

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		a.events.close()
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
