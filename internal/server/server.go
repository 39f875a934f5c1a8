// Package server assembles the engram process: local storage, embedding
// client, optional cloud store, the search service, and the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	v1 "engram/api/v1"
	"engram/internal/cloudstore"
	"engram/internal/config"
	"engram/internal/search"
	"engram/internal/storage"
)

// Server is the engram server.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	db         *storage.DB
	svc        *search.Service
	httpServer *http.Server
	version    string
}

// Options holds configuration for New.
type Options struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Version string
}

// New wires up a Server from config. The cloud store is attached only
// when configured; everything else runs local-only without it.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	logger := opts.Logger

	dataPath := cfg.Storage.Path
	if dataPath == "" {
		p, err := config.DefaultDataPath()
		if err != nil {
			return nil, err
		}
		dataPath = p
	}
	db, err := storage.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	embedder, err := search.NewLocalEmbedder(search.LocalEmbedderOptions{
		BaseURL:     cfg.Embedding.Endpoint,
		Model:       cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		CacheSize:   cfg.Embedding.CacheSize,
		Concurrency: cfg.Embedding.Concurrency,
		Timeout:     cfg.Embedding.Timeout,
		Logger:      logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var (
		cloudSearch search.CloudSearcher
		cloudWrites search.CloudStore
	)
	if cfg.Cloud.Enabled && cfg.Cloud.DSN != "" {
		pg, err := cloudstore.OpenDB(cfg.Cloud.DSN, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cloud store unreachable at startup, running local-only")
		} else {
			schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = cloudstore.EnsureSchema(schemaCtx, pg)
			cancel()
			if err != nil {
				pg.Close()
				db.Close()
				return nil, err
			}
			client, err := cloudstore.NewClient(cloudstore.ClientOptions{
				DB:      pg,
				Timeout: cfg.Cloud.Timeout,
				Logger:  logger,
			})
			if err != nil {
				db.Close()
				return nil, err
			}
			cloudSearch = client
			cloudWrites = client
		}
	}

	svc := search.NewService(search.ServiceOptions{
		OwnerID:  cfg.OwnerID,
		Embedder: embedder,
		Cloud:    cloudSearch,
		Writes:   cloudWrites,
		Store:    db,
		Marker:   db,
		Config:   searchConfig(cfg),
		Logger:   logger,
	})

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		svc:     svc,
		version: opts.Version,
	}

	router := mux.NewRouter()
	router.Use(Recovery(logger), Logging(logger))
	v1.NewRouter(svc, cfg.OwnerID, opts.Version).RegisterRoutes(router)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Service exposes the search service, mainly for the CLI's in-process mode.
func (s *Server) Service() *search.Service {
	return s.svc
}

// Run starts the search service and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.svc.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
		return s.shutdown()
	}
}

// shutdown stops HTTP, flushes the index snapshot and closes storage.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := s.svc.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.logger.Info().Msg("server stopped")
	return firstErr
}

// searchConfig maps file configuration onto the engine's knobs,
// falling back to engine defaults for unset values.
func searchConfig(cfg *config.Config) search.Config {
	sc := search.DefaultConfig()
	if cfg.Search.MaxItems > 0 {
		sc.MaxItems = cfg.Search.MaxItems
	}
	if cfg.Search.LocalMinResults > 0 {
		sc.LocalMinResults = cfg.Search.LocalMinResults
	}
	if cfg.Search.DefaultLimit > 0 {
		sc.DefaultLimit = cfg.Search.DefaultLimit
	}
	if cfg.Search.SemanticThreshold > 0 {
		sc.SemanticThreshold = cfg.Search.SemanticThreshold
	}
	if cfg.Search.PersistDebounce > 0 {
		sc.PersistDebounce = cfg.Search.PersistDebounce
	}
	if cfg.Search.ResyncDelay > 0 {
		sc.ResyncDelay = cfg.Search.ResyncDelay
	}
	if cfg.Search.ResyncLimit > 0 {
		sc.ResyncLimit = cfg.Search.ResyncLimit
	}
	if cfg.Cloud.Timeout > 0 {
		sc.CloudTimeout = cfg.Cloud.Timeout
	}
	if cfg.Embedding.Dimensions > 0 {
		sc.Dimensions = cfg.Embedding.Dimensions
	}
	if cfg.Embedding.CacheSize > 0 {
		sc.EmbedCacheSize = cfg.Embedding.CacheSize
	}
	if cfg.Embedding.Concurrency > 0 {
		sc.EmbedConcurrency = cfg.Embedding.Concurrency
	}
	return sc
}
