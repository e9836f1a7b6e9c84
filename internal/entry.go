// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/todotrail/internal/api"
	"github.com/starford/todotrail/internal/attribution"
	"github.com/starford/todotrail/internal/classify"
	"github.com/starford/todotrail/internal/export"
	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/matcher"
	"github.com/starford/todotrail/internal/mcpserver"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/notify"
	"github.com/starford/todotrail/internal/workspace"
)

// engine is the wired set of long-lived components shared by every command.
type engine struct {
	cfg    *Config
	logger *slog.Logger
	ws     *workspace.Workspace
	corpus *index.Corpus
	broker *notify.Broker
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build wires workspace, matcher, classifier, attribution resolver, broker
// and corpus from the configuration.
func build(cfg *Config, logger *slog.Logger) (*engine, error) {
	ws, err := workspace.New(cfg.Workspace.Root,
		workspace.WithFilter(workspace.NewFilter(cfg.Workspace.ExcludePatterns(), cfg.Workspace.MaxFileSize)),
		workspace.WithMaxResults(cfg.Workspace.MaxResults),
	)
	if err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	m, err := matcher.New(cfg.Patterns.Types())
	if err != nil {
		return nil, fmt.Errorf("compile patterns: %w", err)
	}

	broker := notify.NewBroker()
	opts := []index.Option{
		index.WithClassifier(classify.New(cfg.Classifier.UrgentKeywords, cfg.Classifier.TemporaryKeywords,
			classify.WithTypes(cfg.Patterns.Types()))),
		index.WithNotifier(broker),
		index.WithLogger(logger),
	}
	if cfg.Attribution.Enabled {
		res, err := attribution.New(
			attribution.WithCommand(cfg.Attribution.Command),
			attribution.WithTimeout(cfg.Attribution.Timeout),
			attribution.WithCacheSize(cfg.Attribution.CacheFiles),
			attribution.WithLogger(logger),
		)
		if err != nil {
			broker.Close()
			return nil, fmt.Errorf("init attribution: %w", err)
		}
		opts = append(opts, index.WithAttributor(res))
	}

	return &engine{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		corpus: index.NewCorpus(ws, m, opts...),
		broker: broker,
	}, nil
}

func (e *engine) close() {
	e.broker.Close()
}

func (e *engine) snapshot() export.Snapshot {
	g := e.corpus.Snapshot()
	return export.Snapshot{
		Generation:  g.ID,
		Root:        e.ws.Root(),
		Files:       g.Files,
		CompletedAt: g.CompletedAt,
		Annotations: e.corpus.All(),
	}
}

// watch runs the fsnotify watcher and forwards file events to SSE clients.
func (e *engine) watch(ctx context.Context) error {
	if !e.cfg.Watch.Enabled {
		return nil
	}
	opts := index.WatchOptions{Debounce: e.cfg.Watch.Debounce, Skip: e.ws.Skip}
	return index.Watch(ctx, e.corpus, e.ws.Root(), opts, e.logger, func(kind, path string) {
		e.broker.PublishFileEvent(kind, e.ws.Rel(path))
	})
}

// mirror rewrites the export snapshot after every refresh.
func (e *engine) mirror(ctx context.Context) error {
	if !e.cfg.Export.Enabled() {
		return nil
	}
	db, err := export.Open(e.cfg.Export.Path)
	if err != nil {
		return fmt.Errorf("init export: %w", err)
	}
	defer db.Close()

	events := e.broker.Watch()
	defer e.broker.Unwatch(events)

	// Catch up with the generation built before the subscription existed.
	if err := db.Write(e.snapshot()); err != nil {
		e.logger.Warn("export: initial snapshot failed", slog.String("error", err.Error()))
	}
	return export.Mirror(ctx, db, events, e.snapshot, e.logger)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_root", cfg.Workspace.Root),
		slog.Any("types", cfg.Patterns.Types()),
		slog.Bool("attribution", cfg.Attribution.Enabled),
		slog.Bool("watch", cfg.Watch.Enabled),
		slog.String("export_path", cfg.Export.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	e, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	// Initial scan.
	if err := e.corpus.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}

	h := api.NewHandler(e.corpus, e.ws, cfg.Patterns, func() models.ViewMode { return cfg.Workspace.ViewMode })
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, e.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","annotations":%d}`, e.corpus.Size())
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Coalesced refresh loop fed by the watcher and buffer updates.
	g.Go(func() error {
		return e.corpus.Run(gCtx)
	})

	g.Go(func() error {
		if err := e.watch(gCtx); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		return e.mirror(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the errgroup once the HTTP server has shut down so the
// background loops observe a cancelled context.
var errShutdown = errors.New("shutdown")

// ScanOptions controls a one-shot scan.
type ScanOptions struct {
	// Resolve fetches version-history attribution for every record.
	Resolve bool
	// JSON writes one JSON object per record instead of text lines.
	JSON bool
	// Filters are applied to the scan result.
	Filters index.FilterState
}

// Scan runs a single refresh and writes the filtered, sorted records to out.
func Scan(ctx context.Context, out io.Writer, so ScanOptions, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	e, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.corpus.Refresh(ctx); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if so.Resolve {
		e.corpus.ResolveAttribution(ctx)
	}

	anns := index.Query(e.corpus.All(), so.Filters, time.Now())
	if so.JSON {
		enc := json.NewEncoder(out)
		for _, a := range anns {
			a.File = e.ws.Rel(a.File)
			if err := enc.Encode(a); err != nil {
				return fmt.Errorf("scan: encode: %w", err)
			}
		}
		return nil
	}
	for _, a := range anns {
		if _, err := fmt.Fprintln(out, formatLine(e.ws.Rel(a.File), a)); err != nil {
			return fmt.Errorf("scan: write: %w", err)
		}
	}
	return nil
}

// formatLine renders a record as path:line: TYPE(author): text.
func formatLine(rel string, a models.Annotation) string {
	head := a.Type
	if a.Author != "" {
		head += "(" + a.Author + ")"
	}
	return fmt.Sprintf("%s:%d: %s: %s", rel, a.Line+1, head, a.Text)
}

// Export runs a single refresh and writes the corpus snapshot to path.
func Export(ctx context.Context, path string, resolve bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	e, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.corpus.Refresh(ctx); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if resolve {
		e.corpus.ResolveAttribution(ctx)
	}

	db, err := export.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	s := e.snapshot()
	if err := db.Write(s); err != nil {
		return err
	}
	logger.Info("export: snapshot written",
		slog.String("path", path),
		slog.String("generation", s.Generation),
		slog.Int("annotations", len(s.Annotations)))
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout, keeping the corpus current
// with the watcher while the session lasts.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	e, err := build(app.config, logger)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.corpus.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}

	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(bgCtx)
	g.Go(func() error { return e.corpus.Run(gCtx) })
	g.Go(func() error {
		if err := e.watch(gCtx); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error { return e.mirror(gCtx) })

	srv := mcpserver.New(e.corpus, e.ws, app.version)
	serveErr := srv.ServeStdio()
	cancel()
	if err := g.Wait(); err != nil {
		logger.Warn("background tasks stopped", slog.String("error", err.Error()))
	}
	return serveErr
}
