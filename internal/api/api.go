// Package api provides the HTTP surface of Soul Buddy.
//
// It exposes a streaming chat endpoint, a synchronous variant, conversation
// history, and a health check, and owns the bootstrap wiring of store,
// generation backends, policy resolver, and turn scheduler.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shrutib31/soul-buddy/internal/engine"
	"github.com/shrutib31/soul-buddy/internal/flow"
	"github.com/shrutib31/soul-buddy/internal/genai"
	"github.com/shrutib31/soul-buddy/internal/risk"
	"github.com/shrutib31/soul-buddy/internal/scheduler"
	"github.com/shrutib31/soul-buddy/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	PreferredBackend string
	CleanupSpec      string
	IncognitoTTL     time.Duration
	TurnTimeout      time.Duration
	Threshold        int
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPreferredBackend names the generation backend whose result is preferred
// when more than one succeeds.
func WithPreferredBackend(name string) Option {
	return func(o *Opts) { o.PreferredBackend = name }
}

// WithCleanupSpec overrides the cron expression of the incognito purge job.
func WithCleanupSpec(spec string) Option {
	return func(o *Opts) { o.CleanupSpec = spec }
}

// WithIncognitoTTL overrides the incognito conversation retention window.
func WithIncognitoTTL(d time.Duration) Option {
	return func(o *Opts) { o.IncognitoTTL = d }
}

// WithTurnTimeout overrides the whole-turn circuit breaker budget.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TurnTimeout = d }
}

// WithReadinessThreshold overrides the flow advancement threshold.
func WithReadinessThreshold(n int) Option {
	return func(o *Opts) { o.Threshold = n }
}

// Server handles HTTP requests and runs turns against the engine.
type Server struct {
	sched *engine.Scheduler
	st    store.Store
	cron  *scheduler.Scheduler
	addr  string
	http  *http.Server
}

// NewServer creates a server over already-wired collaborators. Most callers
// should use Run, which performs the full bootstrap.
func NewServer(sched *engine.Scheduler, st store.Store, cron *scheduler.Scheduler, addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{sched: sched, st: st, cron: cron, addr: addr}
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/chat/sync", s.chatSyncHandler)
	mux.HandleFunc("/conversations/", s.historyHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start runs the HTTP server until the context is canceled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: listening", "addr", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Start: shutdown failed", "error", err)
		}
		if s.cron != nil {
			s.cron.Stop()
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}
}

// Run performs the full bootstrap: store selection from the DSN, generation
// backends, policy resolver and step machine over the default catalog, the
// engine registry and scheduler, the incognito cleanup job, and finally the
// HTTP server. It blocks until ctx is canceled.
func Run(ctx context.Context, storeOpts []store.Option, genaiOpts []genai.Option, ollamaOpts []genai.OllamaOption, apiOpts ...Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.PreferredBackend == "" {
		cfg.PreferredBackend = "openai"
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = scheduler.DefaultCleanupSpec
	}

	st, err := openStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	backends, classifier, err := buildBackends(genaiOpts, ollamaOpts)
	if err != nil {
		return fmt.Errorf("failed to build generation backends: %w", err)
	}
	responder := genai.NewMultiGenerator(backends, genai.FirstPreferring(cfg.PreferredBackend),
		"Thank you for sharing that with me. I'm here and listening.")

	resolver, err := flow.NewResolver(flow.DefaultCatalog())
	if err != nil {
		return fmt.Errorf("failed to build policy resolver: %w", err)
	}

	registry, err := flow.BuildRegistry(flow.Deps{
		Store:      st,
		Classifier: classifier,
		Responder:  responder,
		Resolver:   resolver,
		FSM:        flow.NewStepFSM(st, cfg.Threshold),
		Screener:   risk.NewScreener(),
	})
	if err != nil {
		return fmt.Errorf("failed to build step registry: %w", err)
	}

	var schedOpts []engine.Option
	if cfg.TurnTimeout > 0 {
		schedOpts = append(schedOpts, engine.WithTurnTimeout(cfg.TurnTimeout))
	}
	sched := engine.NewScheduler(registry, schedOpts...)

	cron := scheduler.NewScheduler()
	if err := cron.AddIncognitoCleanup(cfg.CleanupSpec, st, cfg.IncognitoTTL); err != nil {
		return fmt.Errorf("failed to schedule incognito cleanup: %w", err)
	}

	srv := NewServer(sched, st, cron, cfg.Addr)
	return srv.Start(ctx)
}

func openStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("api.openStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	switch store.DetectDSNType(cfg.DSN) {
	case "postgres":
		return store.NewPostgresStore(opts...)
	default:
		return store.NewSQLiteStore(opts...)
	}
}

// buildBackends assembles the dual-backend responder and picks the classifier.
// OpenAI is optional when Ollama is reachable; at least one backend must
// configure successfully.
func buildBackends(genaiOpts []genai.Option, ollamaOpts []genai.OllamaOption) ([]genai.Backend, genai.Generator, error) {
	var backends []genai.Backend
	var classifier genai.Generator

	openaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("api.buildBackends: OpenAI backend unavailable", "error", err)
	} else {
		backends = append(backends, genai.Backend{Name: "openai", Generator: openaiClient})
		classifier = openaiClient
	}

	ollamaClient, err := genai.NewOllamaClient(ollamaOpts...)
	if err != nil {
		slog.Warn("api.buildBackends: Ollama backend unavailable", "error", err)
	} else {
		backends = append(backends, genai.Backend{Name: "ollama", Generator: ollamaClient})
		if classifier == nil {
			classifier = ollamaClient
		}
	}

	if len(backends) == 0 {
		return nil, nil, fmt.Errorf("no generation backend configured")
	}
	return backends, classifier, nil
}
