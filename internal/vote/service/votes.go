package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cityrater/internal/events"
	"cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/sentinel"
	pstrings "cityrater/pkg/platform/strings"
)

func (s *Service) startSpan(ctx context.Context, name string, kind models.EntityKind) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("entity.kind", string(kind))))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// CastVote records a first vote. A second vote by the same user for the same
// entity is a conflict and changes nothing.
func (s *Service) CastVote(ctx context.Context, kind models.EntityKind, rawKey, entityID string, vt models.VoteType) (err error) {
	ctx, span := s.startSpan(ctx, "vote.cast", kind)
	defer func() { endSpan(span, err) }()
	defer s.observe("cast", time.Now())

	if err := requireKind(kind); err != nil {
		return err
	}
	key, err := s.authorize(ctx, kind, rawKey, entityID, vt)
	if err != nil {
		return err
	}

	v := models.Vote{UserKey: key.Value, Kind: kind, EntityID: entityID, Type: vt}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.cast(ctx, v)
	})
	if err != nil {
		return s.translate(ctx, kind, err, "failed to cast vote")
	}

	s.countVotes(kind, models.OutcomeCreated, 1)
	s.committed(ctx, kind, events.Event{
		Type:      events.TypeVoteCast,
		UserKey:   v.UserKey,
		EntityIDs: []string{entityID},
		VoteType:  string(vt),
		Outcome:   string(models.OutcomeCreated),
		Count:     1,
	})
	return nil
}

func (s *Service) cast(ctx context.Context, v models.Vote) error {
	if err := s.store.InsertVote(ctx, v); err != nil {
		return err
	}
	return s.store.IncrementAggregate(ctx, v.Kind, v.EntityID, v.Type)
}

// ChangeVote sets the user's vote to vt, creating it when absent. Setting the
// current value again is a no-op.
func (s *Service) ChangeVote(ctx context.Context, kind models.EntityKind, rawKey, entityID string, vt models.VoteType) (outcome models.Outcome, err error) {
	ctx, span := s.startSpan(ctx, "vote.change", kind)
	defer func() { endSpan(span, err) }()
	defer s.observe("change", time.Now())

	if err := requireKind(kind); err != nil {
		return "", err
	}
	key, err := s.authorize(ctx, kind, rawKey, entityID, vt)
	if err != nil {
		return "", err
	}

	v := models.Vote{UserKey: key.Value, Kind: kind, EntityID: entityID, Type: vt}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var txErr error
		outcome, txErr = s.change(ctx, v)
		return txErr
	})
	if err != nil {
		return "", s.translate(ctx, kind, err, "failed to change vote")
	}

	span.SetAttributes(attribute.String("vote.outcome", string(outcome)))
	if outcome == models.OutcomeUnchanged {
		return outcome, nil
	}
	s.countVotes(kind, outcome, 1)
	s.committed(ctx, kind, events.Event{
		Type:      events.TypeVoteChanged,
		UserKey:   v.UserKey,
		EntityIDs: []string{entityID},
		VoteType:  string(vt),
		Outcome:   string(outcome),
		Count:     1,
	})
	return outcome, nil
}

// change applies one change inside the caller's transaction.
func (s *Service) change(ctx context.Context, v models.Vote) (models.Outcome, error) {
	current, err := s.store.FindVote(ctx, v.UserKey, v.Kind, v.EntityID)
	if errors.Is(err, sentinel.ErrNotFound) {
		if err := s.cast(ctx, v); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// Another request inserted between our read and insert.
				return "", fmt.Errorf("change vote: %w", sentinel.ErrConcurrentUpdate)
			}
			return "", err
		}
		return models.OutcomeCreated, nil
	}
	if err != nil {
		return "", err
	}
	if current == v.Type {
		return models.OutcomeUnchanged, nil
	}

	if err := s.store.SwapVoteType(ctx, v.UserKey, v.Kind, v.EntityID, current, v.Type); err != nil {
		return "", err
	}
	if err := s.store.DecrementAggregate(ctx, v.Kind, v.EntityID, current); err != nil {
		return "", err
	}
	if err := s.store.IncrementAggregate(ctx, v.Kind, v.EntityID, v.Type); err != nil {
		return "", err
	}
	return models.OutcomeChanged, nil
}

// BulkChangeVote applies ChangeVote to every known id in entityIDs in one
// transaction and returns how many entities actually changed. Unknown ids
// are skipped.
func (s *Service) BulkChangeVote(ctx context.Context, kind models.EntityKind, rawKey string, vt models.VoteType, entityIDs []string) (changed int, err error) {
	ctx, span := s.startSpan(ctx, "vote.bulk_change", kind)
	defer func() { endSpan(span, err) }()
	defer s.observe("bulk_change", time.Now())

	if err := requireKind(kind); err != nil {
		return 0, err
	}
	if err := requireKey(rawKey); err != nil {
		return 0, err
	}
	if !vt.IsValid() {
		return 0, dErrors.New(dErrors.CodeValidation, "invalid voteType: must be liked, disliked or dont_know")
	}

	ids := pstrings.DedupeSorted(entityIDs)
	if len(ids) > s.maxBulk {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many entities: at most %d per request", s.maxBulk))
	}
	known := ids[:0]
	for _, id := range ids {
		if s.catalog.Exists(kind, id) {
			known = append(known, id)
		}
	}
	span.SetAttributes(attribute.Int("bulk.requested", len(ids)), attribute.Int("bulk.known", len(known)))
	if s.metrics != nil {
		s.metrics.ObserveBulkSize(string(kind), len(known))
	}

	key, err := s.keys.ResolveKey(ctx, rawKey)
	if err != nil {
		return 0, err
	}
	if len(known) == 0 {
		return 0, nil
	}

	var touched []string
	counts := map[models.Outcome]int{}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		touched = touched[:0]
		clear(counts)
		for _, id := range known {
			outcome, err := s.change(ctx, models.Vote{UserKey: key.Value, Kind: kind, EntityID: id, Type: vt})
			if err != nil {
				return err
			}
			if outcome != models.OutcomeUnchanged {
				touched = append(touched, id)
				counts[outcome]++
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.translate(ctx, kind, err, "failed to bulk change votes")
	}

	if len(touched) == 0 {
		return 0, nil
	}
	for outcome, n := range counts {
		s.countVotes(kind, outcome, n)
	}
	s.committed(ctx, kind, events.Event{
		Type:      events.TypeVotesBulkChanged,
		UserKey:   key.Value,
		EntityIDs: touched,
		VoteType:  string(vt),
		Count:     len(touched),
	})
	return len(touched), nil
}
