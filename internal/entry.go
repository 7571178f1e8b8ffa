// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/backup"
	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/ocr"
	"github.com/starford/ansuz/internal/ocrcache"
	"github.com/starford/ansuz/internal/onefile"
	"github.com/starford/ansuz/internal/remote"
	"github.com/starford/ansuz/internal/search"
	"github.com/starford/ansuz/internal/sse"
)

// core bundles the wired domain components shared by both entrypoints.
type core struct {
	coord  *search.Coordinator
	writer *remote.Client
	db     *index.DB
	logger *slog.Logger
}

func (c *core) close() {
	if c.db != nil {
		c.db.Close()
	}
}

// newLogger builds the JSON logger. Logs go to stderr: stdout carries the
// MCP stdio transport when running as an MCP server.
func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildCore wires config into the domain components. events may be nil.
func buildCore(app *application, logger *slog.Logger, events search.EventSink) (*core, error) {
	cfg := app.config

	db, err := index.Open(cfg.Index.Path, cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	embedder := app.embedder
	if embedder == nil {
		embedder = embedding.NewClient(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}

	var opts []search.Option
	if events != nil {
		opts = append(opts, search.WithEvents(events))
	}
	coord := search.NewCoordinator(db, embedder, logger, opts...)

	// Local backend.
	decoder := app.decoder
	if decoder == nil {
		if cfg.Backup.DecoderCmd != "" {
			decoder = onefile.NewExecDecoder(cfg.Backup.DecoderCmd, cfg.Backup.DecoderArgs...)
		} else {
			decoder = onefile.Unavailable{}
		}
	}
	recognizer := app.ocr
	if recognizer == nil {
		if cfg.OCR.Enabled {
			recognizer = ocr.NewClient(cfg.OCR.Endpoint)
		} else {
			recognizer = ocr.Noop{}
		}
	}
	var cache *ocrcache.Cache
	if cfg.Index.OCRCacheDir != "" {
		cache, err = ocrcache.New(cfg.Index.OCRCacheDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init ocr cache: %w", err)
		}
	}
	enum := backup.NewEnumerator(cfg.Backup.Roots, logger)
	coord.RegisterSource(extract.NewLocalSource(enum, decoder, recognizer, cache, logger))

	// Remote backend.
	var writer *remote.Client
	if cfg.Remote.Enabled {
		var tokens remote.TokenSource
		if cfg.Remote.TokenFile != "" {
			tokens = remote.FileToken(cfg.Remote.TokenFile)
		} else {
			tokens = remote.StaticToken(cfg.Remote.Token)
		}
		writer = remote.NewClient(cfg.Remote.BaseURL, tokens)
		coord.RegisterSource(extract.NewRemoteSource(writer, logger))
	}

	if err := coord.SetActive(notebook.Provenance(cfg.Source)); err != nil {
		db.Close()
		return nil, fmt.Errorf("select source: %w", err)
	}

	return &core{coord: coord, writer: writer, db: db, logger: logger}, nil
}

// writerOrNil keeps typed-nil pointers out of interface fields.
func (c *core) writerOrNil() api.Writer {
	if c.writer == nil {
		return nil
	}
	return c.writer
}

func (c *core) pageWriterOrNil() mcpserver.PageWriter {
	if c.writer == nil {
		return nil
	}
	return c.writer
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source", cfg.Source),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := buildCore(app, logger, broker)
	if err != nil {
		return err
	}
	defer c.close()

	// Initial refresh; a cold source is not fatal, the watcher and
	// per-query refreshes catch up later.
	if _, err := c.coord.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(c.coord, c.writerOrNil(), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Watch backup roots and refresh in the background on changes.
	g.Go(func() error {
		return backup.Watch(gCtx, cfg.Backup.Roots, 2*time.Second, logger, func() {
			if _, err := c.coord.Refresh(gCtx); err != nil {
				logger.Warn("background refresh failed", slog.String("error", err.Error()))
			}
		})
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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

		// Wakes the watcher goroutine so Wait can return.
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunStdio starts the MCP server on stdin/stdout with the given options.
func RunStdio(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := newLogger(app.config)

	c, err := buildCore(app, logger, nil)
	if err != nil {
		return err
	}
	defer c.close()

	if _, err := c.coord.Refresh(ctx); err != nil {
		logger.Warn("initial refresh failed", slog.String("error", err.Error()))
	}

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.coord, c.pageWriterOrNil()).ServeStdio()
}
