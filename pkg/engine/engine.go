// Package engine assembles a graph database from configuration: backing
// store, relationship type allocation, logging and metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-graphcore/pkg/config"
	"github.com/dd0wney/cluso-graphcore/pkg/health"
	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
	"github.com/dd0wney/cluso-graphcore/pkg/storage"
	"github.com/dd0wney/cluso-graphcore/pkg/storage/badgerstore"
	"github.com/dd0wney/cluso-graphcore/pkg/tokens"
)

// Engine owns one database and the services around it.
type Engine struct {
	cfg     *config.Config
	db      *storage.Database
	logger  logging.Logger
	metrics *metrics.Registry
	health  *health.Checker

	responder *tokens.Responder
	forwarder *tokens.Forwarder
}

// Option customizes Open.
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics *metrics.Registry
	sockets tokens.SocketFactory
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics supplies the metrics registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.metrics = r }
}

// WithSocketFactory replaces the transport used for token forwarding.
func WithSocketFactory(f tokens.SocketFactory) Option {
	return func(o *options) { o.sockets = f }
}

// Open builds and opens everything cfg describes. On error nothing is left
// running.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(cfg.LoggingOptions())
	}
	if o.metrics == nil {
		o.metrics = metrics.NewRegistry()
	}
	if o.sockets == nil {
		o.sockets = tokens.NewNNGSocketFactory()
	}

	e := &Engine{
		cfg:     cfg,
		logger:  o.logger.With(logging.Component("engine")),
		metrics: o.metrics,
	}

	store, persister, err := openStore(cfg, o.logger)
	if err != nil {
		return nil, err
	}

	alloc, err := e.startTokens(cfg, persister, o)
	if err != nil {
		store.Close()
		return nil, err
	}

	storeOpts := cfg.ToStorageOptions()
	storeOpts.Tokens = alloc
	storeOpts.Logger = o.logger
	storeOpts.Metrics = o.metrics
	db, err := storage.Open(ctx, store, storeOpts)
	if err != nil {
		e.stopTokens()
		store.Close()
		return nil, err
	}
	e.db = db
	e.health = e.newChecker()

	e.logger.Info("engine started",
		logging.String("backend", cfg.Store.Backend),
		logging.String("tokens", cfg.Tokens.Mode))
	return e, nil
}

// openStore returns the backing store and, for durable stores, the token
// table persister.
func openStore(cfg *config.Config, logger logging.Logger) (storage.BackingStore, tokens.Persister, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil, nil

	case config.BackendJournal:
		dir := cfg.StorePath()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		s, err := storage.OpenJournalStore(dir, cfg.Store.SyncWrites, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.BackendBadger:
		bopts := badgerstore.Options{
			InMemory:   cfg.Store.InMemory,
			SyncWrites: cfg.Store.SyncWrites,
			Logger:     logger,
		}
		if !cfg.Store.InMemory {
			bopts.DataDir = cfg.StorePath()
		}
		s, err := badgerstore.Open(bopts)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func (e *Engine) startTokens(cfg *config.Config, persister tokens.Persister, o options) (storage.TokenAllocator, error) {
	if cfg.Tokens.Mode == config.TokensReplica {
		f, err := tokens.NewForwarder(o.sockets, tokens.ForwarderConfig{
			PrimaryAddr: cfg.Tokens.PrimaryAddr,
			Timeout:     cfg.Tokens.Timeout,
			Logger:      o.logger,
		})
		if err != nil {
			return nil, err
		}
		if err := f.Start(); err != nil {
			return nil, err
		}
		e.forwarder = f
		return f, nil
	}

	local, err := tokens.NewLocalAllocator(persister)
	if err != nil {
		return nil, err
	}
	if cfg.Tokens.Mode == config.TokensPrimary {
		r, err := tokens.NewResponder(o.sockets, tokens.ResponderConfig{
			Address: cfg.Tokens.ListenAddr,
			Logger:  o.logger,
		}, local)
		if err != nil {
			return nil, err
		}
		if err := r.Start(); err != nil {
			return nil, err
		}
		e.responder = r
	}
	return local, nil
}

// stopTokens stops the token endpoints concurrently.
func (e *Engine) stopTokens() error {
	var g errgroup.Group
	if e.responder != nil {
		g.Go(e.responder.Stop)
	}
	if e.forwarder != nil {
		g.Go(e.forwarder.Stop)
	}
	return g.Wait()
}

func (e *Engine) newChecker() *health.Checker {
	c := health.NewChecker(e.cfg.Tokens.Timeout)
	c.Register(health.Liveness, "memory", health.MemoryCheck())
	c.Register(health.Readiness, "store", health.PingCheck(e.db.Ping))
	c.Register(health.Readiness, "tokens", health.TokensCheck(e.cfg.Tokens.Mode, func(ctx context.Context) (int, error) {
		types, err := e.db.RelationshipTypes(ctx)
		return len(types), err
	}))
	c.Register(health.Readiness, "cache", health.CacheCheck(e.db.Cache().Len,
		e.cfg.Cache.NodeCapacity, e.cfg.Cache.RelationshipCapacity))
	return c
}

// Health returns the engine's liveness and readiness checks.
func (e *Engine) Health() *health.Checker {
	return e.health
}

// DB returns the database.
func (e *Engine) DB() *storage.Database {
	return e.db
}

// Metrics returns the metrics registry.
func (e *Engine) Metrics() *metrics.Registry {
	return e.metrics
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close stops token serving, then closes the database and its store.
func (e *Engine) Close() error {
	tokenErr := e.stopTokens()
	dbErr := e.db.Close()
	if err := errors.Join(tokenErr, dbErr); err != nil {
		e.logger.Error("engine shutdown failed", logging.Error(err))
		return err
	}
	e.logger.Info("engine stopped")
	return nil
}
