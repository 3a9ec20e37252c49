// Package service computes entity rankings from the aggregates and serves
// them from a short-lived per-kind cache that vote writes invalidate.
package service

import (
	"context"
	"log/slog"
	"time"

	"cityrater/internal/catalog"
	"cityrater/internal/ranking/cache"
	"cityrater/internal/ranking/metrics"
	"cityrater/internal/ranking/models"
	vmodels "cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/requestcontext"
)

const defaultTTL = 30 * time.Second

type AggregateStore interface {
	ListAggregates(ctx context.Context, kind vmodels.EntityKind) ([]vmodels.Aggregate, error)
}

type Catalog interface {
	Describe(kind catalog.Kind, id string) catalog.Entity
}

type Service struct {
	store   AggregateStore
	catalog Catalog
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
	now     func() time.Time
	caches  map[catalog.Kind]*cache.Cache[[]models.Row]
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTTL sets how long rankings are served from the cache. Zero disables
// caching.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store AggregateStore, cat Catalog, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: cat,
		logger:  slog.Default(),
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.caches = make(map[catalog.Kind]*cache.Cache[[]models.Row], len(catalog.Kinds))
	for _, kind := range catalog.Kinds {
		s.caches[kind] = cache.New(s.ttl,
			cache.WithClock[[]models.Row](s.now),
			cache.WithObserver[[]models.Row](s.observer(kind)),
		)
	}
	return s
}

func (s *Service) observer(kind catalog.Kind) (func(), func()) {
	if s.metrics == nil {
		return nil, nil
	}
	hits := s.metrics.CacheHits.WithLabelValues(string(kind))
	misses := s.metrics.CacheMisses.WithLabelValues(string(kind))
	return hits.Inc, misses.Inc
}

// Rankings returns every entity of kind that has an aggregate, best first.
// The returned slice belongs to the caller.
func (s *Service) Rankings(ctx context.Context, kind catalog.Kind) ([]models.Row, error) {
	rows, err := s.scored(ctx, kind)
	if err != nil {
		return nil, err
	}
	return append([]models.Row(nil), rows...), nil
}

// HiddenJam returns well-liked entities that few people have an opinion on.
func (s *Service) HiddenJam(ctx context.Context, kind catalog.Kind, minVotes, limit int) ([]models.Row, error) {
	if minVotes < 0 || limit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "min_votes and limit must not be negative")
	}
	rows, err := s.scored(ctx, kind)
	if err != nil {
		return nil, err
	}
	return models.HiddenJams(rows, minVotes, limit), nil
}

// Invalidate drops the cached rankings of kind.
func (s *Service) Invalidate(kind catalog.Kind) {
	c, ok := s.caches[kind]
	if !ok {
		return
	}
	c.Invalidate()
	if s.metrics != nil {
		s.metrics.CacheInvalidations.WithLabelValues(string(kind)).Inc()
	}
}

func (s *Service) scored(ctx context.Context, kind catalog.Kind) ([]models.Row, error) {
	c, ok := s.caches[kind]
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown entity kind")
	}
	rows, err := c.GetOrCompute(ctx, func(ctx context.Context) ([]models.Row, error) {
		return s.compute(ctx, kind)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to compute rankings",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rankings")
	}
	return rows, nil
}

func (s *Service) compute(ctx context.Context, kind catalog.Kind) ([]models.Row, error) {
	aggs, err := s.store.ListAggregates(ctx, kind)
	if err != nil {
		return nil, err
	}
	rows := make([]models.Row, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, models.Score(a, s.catalog.Describe(kind, a.EntityID)))
	}
	models.SortRankings(rows)
	return rows, nil
}
