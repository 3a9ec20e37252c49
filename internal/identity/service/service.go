// Package service resolves client keys and Telegram identities to stable user
// keys.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"cityrater/internal/events"
	"cityrater/internal/identity/metrics"
	"cityrater/internal/identity/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/sentinel"
	"cityrater/pkg/requestcontext"
)

type Store interface {
	FindByTelegramID(ctx context.Context, telegramID string) (models.User, error)
	FindByUserKey(ctx context.Context, userKey string) (models.User, error)
	Exists(ctx context.Context, userKey string) (bool, error)
	Insert(ctx context.Context, u models.User) error
	LinkTelegram(ctx context.Context, userID, telegramID string) error
	EnsureAnonymous(ctx context.Context, userKey string) (bool, error)
	DeleteByTelegramPrefix(ctx context.Context, prefix string) (int64, error)
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	Emit(ctx context.Context, e events.Event) bool
}

// Service owns every write to the users table.
type Service struct {
	store     Store
	tx        Transactor
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher EventPublisher
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

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// New constructs a Service.
func New(store Store, tx Transactor, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     tx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveKey classifies a raw client key. UUIDs are legacy keys and always
// accepted; any other key must belong to a registered user.
func (s *Service) ResolveKey(ctx context.Context, raw string) (models.UserKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.UserKey{}, dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if models.IsLegacyFormat(raw) {
		return models.UserKey{Value: raw, Scheme: models.SchemeLegacy}, nil
	}
	ok, err := s.store.Exists(ctx, raw)
	if err != nil {
		return models.UserKey{}, s.internal(ctx, err, "failed to resolve user key")
	}
	if !ok {
		if s.metrics != nil {
			s.metrics.IncrementRejectedKeys()
		}
		return models.UserKey{}, dErrors.New(dErrors.CodeForbidden, "unregistered user key")
	}
	return models.UserKey{Value: raw, Scheme: models.SchemeRegistered}, nil
}

// IsRegistered reports whether a user record owns the key.
func (s *Service) IsRegistered(ctx context.Context, userKey string) (bool, error) {
	ok, err := s.store.Exists(ctx, strings.TrimSpace(userKey))
	if err != nil {
		return false, s.internal(ctx, err, "failed to look up user key")
	}
	return ok, nil
}

// EnsureAnonymous records a legacy key on first contact. Other keys are left
// alone: they are either registered already or not ours to create.
func (s *Service) EnsureAnonymous(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if !models.IsLegacyFormat(raw) {
		return nil
	}
	created, err := s.store.EnsureAnonymous(ctx, raw)
	if err != nil {
		return s.internal(ctx, err, "failed to register anonymous user")
	}
	if created && s.metrics != nil {
		s.metrics.IncrementAnonymousUsers()
	}
	return nil
}

// ResolveOrRegister maps a verified Telegram identity to a user. An existing
// identity wins over the candidate key so a reinstall finds its old votes.
func (s *Service) ResolveOrRegister(ctx context.Context, telegramID, candidateKey string) (models.Resolution, error) {
	telegramID = strings.TrimSpace(telegramID)
	candidateKey = strings.TrimSpace(candidateKey)
	if telegramID == "" {
		return models.Resolution{}, dErrors.New(dErrors.CodeValidation, "telegram identity is required")
	}

	var res models.Resolution
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.resolveOrRegister(ctx, telegramID, candidateKey)
		return err
	})
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return models.Resolution{}, err
		}
		return models.Resolution{}, s.internal(ctx, err, "failed to register user")
	}

	if s.metrics != nil {
		s.metrics.IncrementResolution(string(res.Transition))
	}
	s.logger.InfoContext(ctx, "telegram user resolved",
		"request_id", requestcontext.RequestID(ctx),
		"transition", res.Transition,
		"user_id", res.User.ID,
	)
	if s.publisher != nil {
		s.publisher.Emit(ctx, events.Event{
			Type:    events.TypeUserResolved,
			UserKey: res.User.UserKey,
			Outcome: string(res.Transition),
		})
	}
	return res, nil
}

func (s *Service) resolveOrRegister(ctx context.Context, telegramID, candidateKey string) (models.Resolution, error) {
	existing, err := s.store.FindByTelegramID(ctx, telegramID)
	if err == nil {
		return models.Resolution{User: existing, Transition: models.TransitionRestored}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return models.Resolution{}, err
	}

	newKey := ""
	if candidateKey != "" {
		owner, err := s.store.FindByUserKey(ctx, candidateKey)
		switch {
		case err == nil && !owner.IsLinked():
			if err := s.store.LinkTelegram(ctx, owner.ID, telegramID); err != nil {
				return models.Resolution{}, err
			}
			owner.TelegramID = telegramID
			return models.Resolution{User: owner, Transition: models.TransitionLinked}, nil
		case err == nil:
			// Owned by another Telegram account; the caller gets a fresh key.
		case errors.Is(err, sentinel.ErrNotFound):
			if models.IsLegacyFormat(candidateKey) {
				newKey = candidateKey
			}
		default:
			return models.Resolution{}, err
		}
	}
	if newKey == "" {
		newKey = uuid.NewString()
	}

	u := models.User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		UserKey:    newKey,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := s.store.Insert(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race for the Telegram id or the key; the retry resolves it.
			return models.Resolution{}, fmt.Errorf("register user: %w", sentinel.ErrConcurrentUpdate)
		}
		return models.Resolution{}, err
	}
	return models.Resolution{User: u, Transition: models.TransitionCreated}, nil
}

// FindByExternalID returns the user linked to a Telegram identity.
func (s *Service) FindByExternalID(ctx context.Context, telegramID string) (models.User, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return models.User{}, dErrors.New(dErrors.CodeValidation, "telegram identity is required")
	}
	u, err := s.store.FindByTelegramID(ctx, telegramID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.User{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return models.User{}, s.internal(ctx, err, "failed to find user")
	}
	return u, nil
}

// CleanupDebugUsers deletes users created by test Telegram accounts.
func (s *Service) CleanupDebugUsers(ctx context.Context, prefix string) (int64, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "prefix is required")
	}
	n, err := s.store.DeleteByTelegramPrefix(ctx, prefix)
	if err != nil {
		return 0, s.internal(ctx, err, "failed to delete debug users")
	}
	s.logger.InfoContext(ctx, "debug users deleted", "prefix", prefix, "deleted", n)
	return n, nil
}

func (s *Service) internal(ctx context.Context, err error, msg string) error {
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
