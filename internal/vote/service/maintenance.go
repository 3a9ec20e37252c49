package service

import (
	"context"
	"database/sql"
	"time"

	"cityrater/internal/events"
	"cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/tx"
)

// ReconcileAggregates rebuilds the aggregates of kind from the ledger and
// returns how many rows were corrected.
func (s *Service) ReconcileAggregates(ctx context.Context, kind models.EntityKind) (fixed int, err error) {
	ctx, span := s.startSpan(ctx, "vote.reconcile", kind)
	defer func() { endSpan(span, err) }()
	defer s.observe("reconcile", time.Now())

	if err := requireKind(kind); err != nil {
		return 0, err
	}

	// Absolute counters written from a stale snapshot would erase concurrent
	// votes; serializable turns that race into a retried 40001.
	err = s.tx.RunInTx(tx.WithIsolation(ctx, sql.LevelSerializable), func(ctx context.Context) error {
		fixed = 0
		ledger, err := s.store.LedgerCounts(ctx, kind)
		if err != nil {
			return err
		}
		stored, err := s.store.ListAggregates(ctx, kind)
		if err != nil {
			return err
		}
		current := make(map[string]models.Aggregate, len(stored))
		for _, a := range stored {
			current[a.EntityID] = a
		}

		for _, want := range ledger {
			have, ok := current[want.EntityID]
			delete(current, want.EntityID)
			if ok && have == want {
				continue
			}
			if err := s.store.PutAggregate(ctx, want); err != nil {
				return err
			}
			fixed++
		}
		// Whatever is left has no ledger rows at all.
		for _, stale := range current {
			if stale.Total() == 0 {
				continue
			}
			if err := s.store.DeleteAggregate(ctx, kind, stale.EntityID); err != nil {
				return err
			}
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, s.translate(ctx, kind, err, "failed to reconcile aggregates")
	}

	if fixed > 0 {
		s.logger.WarnContext(ctx, "aggregates reconciled", "kind", kind, "fixed", fixed)
		s.committed(ctx, kind, events.Event{Type: events.TypeAggregatesReconciled, Count: fixed})
	}
	return fixed, nil
}

// RenameEntity moves every vote on oldID to newID. A user who voted on both
// keeps the newID vote. Aggregates of both ids are rebuilt from the ledger.
func (s *Service) RenameEntity(ctx context.Context, kind models.EntityKind, oldID, newID string) (res models.RenameResult, err error) {
	ctx, span := s.startSpan(ctx, "vote.rename", kind)
	defer func() { endSpan(span, err) }()

	if err := requireKind(kind); err != nil {
		return models.RenameResult{}, err
	}
	if oldID == "" || newID == "" {
		return models.RenameResult{}, dErrors.New(dErrors.CodeValidation, "old and new ids are required")
	}
	if oldID == newID {
		return models.RenameResult{}, dErrors.New(dErrors.CodeValidation, "old and new ids must differ")
	}

	err = s.tx.RunInTx(tx.WithIsolation(ctx, sql.LevelSerializable), func(ctx context.Context) error {
		var err error
		if res.Dropped, err = s.store.DeleteShadowedVotes(ctx, kind, oldID, newID); err != nil {
			return err
		}
		if res.Moved, err = s.store.MoveVotes(ctx, kind, oldID, newID); err != nil {
			return err
		}
		if err := s.store.DeleteAggregate(ctx, kind, oldID); err != nil {
			return err
		}
		ledger, err := s.store.LedgerCounts(ctx, kind)
		if err != nil {
			return err
		}
		for _, a := range ledger {
			if a.EntityID == newID {
				return s.store.PutAggregate(ctx, a)
			}
		}
		return nil
	})
	if err != nil {
		return models.RenameResult{}, s.translate(ctx, kind, err, "failed to rename entity")
	}

	s.logger.InfoContext(ctx, "entity renamed",
		"kind", kind,
		"old_id", oldID,
		"new_id", newID,
		"moved", res.Moved,
		"dropped", res.Dropped,
	)
	s.committed(ctx, kind, events.Event{
		Type:      events.TypeEntityRenamed,
		EntityIDs: []string{oldID, newID},
		Count:     int(res.Moved),
	})
	return res, nil
}
