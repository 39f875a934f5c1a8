package search

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Preloader is implemented by embedders that warm up out of band.
type Preloader interface {
	Preload(ctx context.Context) error
}

// Service wires the hybrid search engine together and owns its
// lifecycle: snapshot load on start, model warmup off the query path,
// startup resync when drift is detected, periodic maintenance resync,
// and a guaranteed snapshot flush on close.
type Service struct {
	Index        *LocalIndex
	Embedder     Embedder
	Orchestrator *Orchestrator
	Indexer      *Indexer
	Context      *ContextBuilder
	Persister    *Persister

	ownerID string
	cfg     Config
	logger  zerolog.Logger

	cron     *cron.Cron
	stopOnce sync.Once
	done     chan struct{}
}

// ServiceOptions holds the dependencies for NewService. Cloud may be
// nil for offline operation; Store may be nil to disable persistence.
type ServiceOptions struct {
	OwnerID  string
	Embedder Embedder
	Cloud    CloudSearcher
	Writes   CloudStore
	Store    SnapshotStore
	Marker   Marker
	Config   Config
	Logger   zerolog.Logger
}

// NewService assembles a Service from its parts.
func NewService(opts ServiceOptions) *Service {
	cfg := opts.Config
	if cfg.MaxItems <= 0 {
		cfg = DefaultConfig()
	}
	logger := opts.Logger.With().Str("component", "search").Logger()

	index := NewLocalIndex(cfg.MaxItems, logger)
	orchestrator := NewOrchestrator(index, opts.Embedder, opts.Cloud, cfg, logger)
	indexer := NewIndexer(index, opts.Embedder, opts.Writes, opts.Marker, cfg, logger)

	var persister *Persister
	if opts.Store != nil {
		persister = NewPersister(index, opts.Store, opts.OwnerID, cfg.PersistDebounce, logger)
	}

	return &Service{
		Index:        index,
		Embedder:     opts.Embedder,
		Orchestrator: orchestrator,
		Indexer:      indexer,
		Context:      NewContextBuilder(orchestrator, 5, 10, logger),
		Persister:    persister,
		ownerID:      opts.OwnerID,
		cfg:          cfg,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Start loads the persisted index and kicks off background warmup and
// maintenance. It returns quickly; slow work happens off the caller's
// goroutine so searches can be answered immediately (keyword-only until
// the model is warm).
func (s *Service) Start(ctx context.Context) error {
	if s.Persister != nil {
		if err := s.Persister.Load(ctx); err != nil {
			return err
		}
	}

	if p, ok := s.Embedder.(Preloader); ok {
		go func() {
			if err := p.Preload(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("embedding model warmup failed, keyword-only until recovery")
			}
		}()
	}

	go s.startupResync()

	c := cron.New()
	if _, err := c.AddFunc("@every 6h", s.maintenanceResync); err != nil {
		return err
	}
	c.Start()
	s.cron = c

	s.logger.Info().Int("indexed", s.Index.Count()).Msg("search service started")
	return nil
}

// Close stops background work and flushes any pending snapshot.
func (s *Service) Close(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		if s.Persister != nil {
			err = s.Persister.Close(ctx)
		}
	})
	return err
}

// startupResync waits out the startup delay, then rebuilds the local
// index when the snapshot was corrupted or the index has drifted empty.
func (s *Service) startupResync() {
	select {
	case <-time.After(s.cfg.ResyncDelay):
	case <-s.done:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	needed := s.Persister != nil && s.Persister.NeedsResync()
	if !needed {
		needed = s.Indexer.NeedsResync(ctx, s.ownerID)
	}
	if !needed {
		return
	}

	if err := s.Indexer.Resync(ctx, s.ownerID); err != nil {
		s.logger.Warn().Err(err).Msg("startup resync failed, will retry on next maintenance run")
	}
}

// maintenanceResync runs on the cron schedule and repairs drift that
// accumulated while the cloud store was unreachable.
func (s *Service) maintenanceResync() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if !s.Indexer.NeedsResync(ctx, s.ownerID) {
		return
	}
	if err := s.Indexer.Resync(ctx, s.ownerID); err != nil {
		s.logger.Warn().Err(err).Msg("maintenance resync failed")
	}
}
