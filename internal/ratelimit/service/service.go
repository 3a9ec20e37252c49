package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cityrater/internal/ratelimit/metrics"
	"cityrater/internal/ratelimit/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/requestcontext"
)

// BucketStore is a sliding-window counter keyed by bucket name.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Service applies per-class budgets to client IPs and authenticated users.
type Service struct {
	buckets BucketStore
	limits  map[models.EndpointClass]models.Limit
	logger  *slog.Logger
	metrics *metrics.Metrics
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

// PerMinute builds the limit table from per-minute budgets.
func PerMinute(read, write, auth int) map[models.EndpointClass]models.Limit {
	return map[models.EndpointClass]models.Limit{
		models.ClassRead:  {Requests: read, Window: time.Minute},
		models.ClassWrite: {Requests: write, Window: time.Minute},
		models.ClassAuth:  {Requests: auth, Window: time.Minute},
	}
}

func New(buckets BucketStore, limits map[models.EndpointClass]models.Limit, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}
	svc := &Service{
		buckets: buckets,
		limits:  limits,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) CheckIP(ctx context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error) {
	return s.check(ctx, models.NewRateLimitKey(models.KeyPrefixIP, ip, class))
}

func (s *Service) CheckUser(ctx context.Context, userKey string, class models.EndpointClass) (*models.RateLimitResult, error) {
	return s.check(ctx, models.NewRateLimitKey(models.KeyPrefixUser, userKey, class))
}

// CheckBoth charges the IP bucket first and the user bucket only when the IP
// is still within budget.
func (s *Service) CheckBoth(ctx context.Context, ip, userKey string, class models.EndpointClass) (*models.RateLimitResult, error) {
	ipRes, err := s.CheckIP(ctx, ip, class)
	if err != nil || !ipRes.Allowed {
		return ipRes, err
	}
	userRes, err := s.CheckUser(ctx, userKey, class)
	if err != nil || !userRes.Allowed {
		return userRes, err
	}
	return moreRestrictiveResult(ipRes, userRes), nil
}

func (s *Service) check(ctx context.Context, key models.RateLimitKey) (*models.RateLimitResult, error) {
	limit, ok := s.limits[key.Class]
	if !ok || limit.Requests <= 0 {
		// Default-deny: no budget configured for this class.
		s.logger.WarnContext(ctx, "rate limit config missing",
			"request_id", requestcontext.RequestID(ctx),
			"endpoint_class", key.Class,
		)
		now := requestcontext.Now(ctx)
		return &models.RateLimitResult{
			Allowed:    false,
			ResetAt:    now.Add(time.Minute),
			RetryAfter: 60,
		}, nil
	}

	result, err := s.buckets.Allow(ctx, key.String(), limit.Requests, limit.Window)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementStoreErrors()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}
	if s.metrics != nil {
		s.metrics.RecordDecision(string(key.Class), string(key.Prefix), result.Allowed)
	}
	if !result.Allowed {
		s.logger.InfoContext(ctx, "rate limit exceeded",
			"request_id", requestcontext.RequestID(ctx),
			"endpoint_class", key.Class,
			"limit_type", key.Prefix,
			"limit", limit.Requests,
			"window_seconds", int(limit.Window.Seconds()),
		)
	}
	return result, nil
}

// moreRestrictiveResult returns the result with fewer remaining requests,
// or the earlier reset time if remaining counts are equal.
func moreRestrictiveResult(a, b *models.RateLimitResult) *models.RateLimitResult {
	if a.Remaining < b.Remaining {
		return a
	}
	if b.Remaining < a.Remaining {
		return b
	}
	if a.ResetAt.Before(b.ResetAt) {
		return a
	}
	return b
}
