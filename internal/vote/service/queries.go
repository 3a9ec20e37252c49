package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cityrater/internal/catalog"
	"cityrater/internal/vote/models"
	"cityrater/pkg/requestcontext"
)

// ListUserVotes returns the user's votes of kind joined with catalog
// metadata. Votes on ids no longer in the catalog are omitted.
func (s *Service) ListUserVotes(ctx context.Context, kind models.EntityKind, rawKey string) ([]models.UserVote, error) {
	if err := requireKind(kind); err != nil {
		return nil, err
	}
	if err := requireKey(rawKey); err != nil {
		return nil, err
	}
	votes, err := s.store.ListUserVotes(ctx, rawKey, kind)
	if err != nil {
		return nil, s.translate(ctx, kind, err, "failed to list user votes")
	}
	out := make([]models.UserVote, 0, len(votes))
	for _, v := range votes {
		e, ok := s.catalog.Get(kind, v.EntityID)
		if !ok {
			continue
		}
		out = append(out, models.UserVote{Entity: e, VoteType: v.Type})
	}
	return out, nil
}

// ListUnvoted returns the entities of kind the user has not voted on yet.
// First contact with a legacy key registers it as an anonymous user.
func (s *Service) ListUnvoted(ctx context.Context, kind models.EntityKind, rawKey string) (models.Deck, error) {
	if err := requireKind(kind); err != nil {
		return models.Deck{}, err
	}
	if err := requireKey(rawKey); err != nil {
		return models.Deck{}, err
	}

	if err := s.keys.EnsureAnonymous(ctx, rawKey); err != nil {
		s.logger.WarnContext(ctx, "failed to register anonymous user",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}

	votes, err := s.store.ListUserVotes(ctx, rawKey, kind)
	if err != nil {
		return models.Deck{}, s.translate(ctx, kind, err, "failed to list user votes")
	}
	voted := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		voted[v.EntityID] = struct{}{}
	}

	all := s.catalog.List(kind)
	deck := models.Deck{Entities: make([]catalog.Entity, 0, len(all)), TotalCount: len(all)}
	for _, e := range all {
		if _, ok := voted[e.ID]; ok {
			deck.VotedCount++
			continue
		}
		deck.Entities = append(deck.Entities, e)
	}
	return deck, nil
}

// Stats summarises votes per kind and the number of distinct voters.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	var err error
	if st.Cities, err = s.store.KindStats(ctx, catalog.KindCity); err != nil {
		return models.Stats{}, s.translate(ctx, catalog.KindCity, err, "failed to load stats")
	}
	if st.Airports, err = s.store.KindStats(ctx, catalog.KindAirport); err != nil {
		return models.Stats{}, s.translate(ctx, catalog.KindAirport, err, "failed to load stats")
	}
	if st.TotalUsers, err = s.store.CountVoters(ctx); err != nil {
		return models.Stats{}, s.translate(ctx, "", err, "failed to count voters")
	}
	return st, nil
}

// Profile lists every catalog entity of both kinds with the user's vote, if
// any.
func (s *Service) Profile(ctx context.Context, rawKey string) (models.Profile, error) {
	if err := requireKey(rawKey); err != nil {
		return models.Profile{}, err
	}

	var cityVotes, airportVotes []models.Vote
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cityVotes, err = s.store.ListUserVotes(gctx, rawKey, catalog.KindCity)
		return err
	})
	g.Go(func() error {
		var err error
		airportVotes, err = s.store.ListUserVotes(gctx, rawKey, catalog.KindAirport)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Profile{}, s.translate(ctx, "", err, "failed to load profile")
	}

	return models.Profile{
		Cities:   s.profileEntries(catalog.KindCity, cityVotes),
		Airports: s.profileEntries(catalog.KindAirport, airportVotes),
	}, nil
}

func (s *Service) profileEntries(kind models.EntityKind, votes []models.Vote) []models.ProfileEntry {
	byID := make(map[string]models.VoteType, len(votes))
	for _, v := range votes {
		byID[v.EntityID] = v.Type
	}
	all := s.catalog.List(kind)
	out := make([]models.ProfileEntry, 0, len(all))
	for _, e := range all {
		out = append(out, models.ProfileEntry{Entity: e, VoteType: byID[e.ID]})
	}
	return out
}

// ListEntities returns the whole catalog of kind.
func (s *Service) ListEntities(kind models.EntityKind) []catalog.Entity {
	return s.catalog.List(kind)
}
