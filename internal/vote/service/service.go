package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"cityrater/internal/catalog"
	"cityrater/internal/events"
	idmodels "cityrater/internal/identity/models"
	"cityrater/internal/vote/metrics"
	"cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/sentinel"
	"cityrater/pkg/requestcontext"
)

const defaultMaxBulkEntities = 500

type Store interface {
	InsertVote(ctx context.Context, v models.Vote) error
	FindVote(ctx context.Context, userKey string, kind models.EntityKind, entityID string) (models.VoteType, error)
	SwapVoteType(ctx context.Context, userKey string, kind models.EntityKind, entityID string, from, to models.VoteType) error
	IncrementAggregate(ctx context.Context, kind models.EntityKind, entityID string, t models.VoteType) error
	DecrementAggregate(ctx context.Context, kind models.EntityKind, entityID string, t models.VoteType) error
	ListAggregates(ctx context.Context, kind models.EntityKind) ([]models.Aggregate, error)
	ListUserVotes(ctx context.Context, userKey string, kind models.EntityKind) ([]models.Vote, error)
	KindStats(ctx context.Context, kind models.EntityKind) (models.KindStats, error)
	CountVoters(ctx context.Context) (int, error)
	LedgerCounts(ctx context.Context, kind models.EntityKind) ([]models.Aggregate, error)
	PutAggregate(ctx context.Context, a models.Aggregate) error
	DeleteAggregate(ctx context.Context, kind models.EntityKind, entityID string) error
	DeleteShadowedVotes(ctx context.Context, kind models.EntityKind, oldID, newID string) (int64, error)
	MoveVotes(ctx context.Context, kind models.EntityKind, oldID, newID string) (int64, error)
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Catalog interface {
	Exists(kind catalog.Kind, id string) bool
	Get(kind catalog.Kind, id string) (catalog.Entity, bool)
	List(kind catalog.Kind) []catalog.Entity
}

// KeyResolver maps a raw client key to a resolved UserKey. It is served by
// the identity service.
type KeyResolver interface {
	ResolveKey(ctx context.Context, raw string) (idmodels.UserKey, error)
	EnsureAnonymous(ctx context.Context, raw string) error
}

// RankingInvalidator drops cached rankings after a committed write.
type RankingInvalidator interface {
	Invalidate(kind catalog.Kind)
}

type EventPublisher interface {
	Emit(ctx context.Context, e events.Event) bool
}

// Service is the vote engine: every mutation updates the ledger and the
// aggregates in one transaction.
type Service struct {
	store       Store
	tx          Transactor
	catalog     Catalog
	keys        KeyResolver
	logger      *slog.Logger
	metrics     *metrics.Metrics
	invalidator RankingInvalidator
	publisher   EventPublisher
	tracer      trace.Tracer
	maxBulk     int
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

func WithRankingInvalidator(inv RankingInvalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithMaxBulkEntities caps the distinct ids accepted by one bulk change.
func WithMaxBulkEntities(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBulk = n
		}
	}
}

// New constructs a Service.
func New(store Store, tx Transactor, cat Catalog, keys KeyResolver, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tx:      tx,
		catalog: cat,
		keys:    keys,
		logger:  slog.Default(),
		tracer:  otel.Tracer("cityrater/internal/vote/service"),
		maxBulk: defaultMaxBulkEntities,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// translate converts store and transaction failures into domain errors.
// Errors that already carry a domain code pass through.
func (s *Service) translate(ctx context.Context, kind models.EntityKind, err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "user has already voted for this entity; use change-vote")
	case errors.Is(err, sentinel.ErrInvariantViolation):
		if s.metrics != nil {
			s.metrics.IncrementInvariantViolations(string(kind))
		}
		s.logger.ErrorContext(ctx, "aggregate invariant violated",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "aggregate counters out of sync")
	}
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"kind", kind,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// committed runs the post-commit side effects of a successful write.
func (s *Service) committed(ctx context.Context, kind models.EntityKind, e events.Event) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(kind)
	}
	if s.publisher != nil {
		e.Kind = string(kind)
		s.publisher.Emit(ctx, e)
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}

func (s *Service) countVotes(kind models.EntityKind, outcome models.Outcome, n int) {
	if s.metrics != nil {
		s.metrics.IncrementVotes(string(kind), string(outcome), n)
	}
}

// authorize checks a vote request in order: key present, vote type valid,
// entity known, key resolvable.
func (s *Service) authorize(ctx context.Context, kind models.EntityKind, rawKey, entityID string, vt models.VoteType) (idmodels.UserKey, error) {
	if err := requireKey(rawKey); err != nil {
		return idmodels.UserKey{}, err
	}
	if !vt.IsValid() {
		return idmodels.UserKey{}, dErrors.New(dErrors.CodeValidation, "invalid voteType: must be liked, disliked or dont_know")
	}
	if entityID == "" {
		return idmodels.UserKey{}, dErrors.New(dErrors.CodeValidation, "entity id is required")
	}
	if !s.catalog.Exists(kind, entityID) {
		return idmodels.UserKey{}, dErrors.New(dErrors.CodeNotFound, string(kind)+" not found")
	}
	return s.keys.ResolveKey(ctx, rawKey)
}

func requireKey(rawKey string) error {
	if rawKey == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	return nil
}

func requireKind(kind models.EntityKind) error {
	if !kind.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown entity kind")
	}
	return nil
}
