package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"cityrater/internal/catalog"
	"cityrater/internal/events"
	idmodels "cityrater/internal/identity/models"
	"cityrater/internal/platform/database"
	"cityrater/internal/vote/metrics"
	"cityrater/internal/vote/models"
	"cityrater/internal/vote/store"
	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/sentinel"
	tu "cityrater/pkg/testutil"
)

type stubKeys struct {
	registered map[string]bool
	anonymous  []string
	mu         sync.Mutex
}

func (k *stubKeys) ResolveKey(_ context.Context, raw string) (idmodels.UserKey, error) {
	if raw == "" {
		return idmodels.UserKey{}, dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if idmodels.IsLegacyFormat(raw) {
		return idmodels.UserKey{Value: raw, Scheme: idmodels.SchemeLegacy}, nil
	}
	if k.registered[raw] {
		return idmodels.UserKey{Value: raw, Scheme: idmodels.SchemeRegistered}, nil
	}
	return idmodels.UserKey{}, dErrors.New(dErrors.CodeForbidden, "unregistered user key")
}

func (k *stubKeys) EnsureAnonymous(_ context.Context, raw string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.anonymous = append(k.anonymous, raw)
	return nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[catalog.Kind]int
}

func (c *countingInvalidator) Invalidate(kind catalog.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[kind]++
}

func (c *countingInvalidator) count(kind catalog.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Emit(_ context.Context, e events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return true
}

func (p *capturePublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type ServiceSuite struct {
	suite.Suite
	ctx         context.Context
	store       *store.Store
	service     *Service
	keys        *stubKeys
	invalidator *countingInvalidator
	publisher   *capturePublisher
	metrics     *metrics.Metrics
	user        string
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	db, err := database.OpenMemory(s.ctx, s.T().Name())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })

	cat := catalog.New(
		[]catalog.Entity{{ID: "paris"}, {ID: "rome"}, {ID: "oslo"}, {ID: "lima"}},
		[]catalog.Entity{{ID: "cdg"}, {ID: "fco"}},
	)
	s.store = store.New(db)
	s.keys = &stubKeys{registered: map[string]bool{"tg_user_1": true}}
	s.invalidator = &countingInvalidator{calls: map[catalog.Kind]int{}}
	s.publisher = &capturePublisher{}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.user = uuid.NewString()

	s.service = New(s.store, database.NewTransactor(db, database.WithMaxAttempts(5)), cat, s.keys,
		WithLogger(tu.DiscardLogger()),
		WithMetrics(s.metrics),
		WithRankingInvalidator(s.invalidator),
		WithEventPublisher(s.publisher),
		WithMaxBulkEntities(4),
	)
}

func (s *ServiceSuite) aggregate(kind catalog.Kind, id string) models.Aggregate {
	aggs, err := s.store.ListAggregates(s.ctx, kind)
	s.Require().NoError(err)
	for _, a := range aggs {
		if a.EntityID == id {
			return a
		}
	}
	return models.Aggregate{Kind: kind, EntityID: id}
}

// requireConsistent checks that every aggregate equals the ledger-derived counts.
func (s *ServiceSuite) requireConsistent(kind catalog.Kind) {
	ledger, err := s.store.LedgerCounts(s.ctx, kind)
	s.Require().NoError(err)
	want := map[string]models.Aggregate{}
	for _, a := range ledger {
		want[a.EntityID] = a
	}
	aggs, err := s.store.ListAggregates(s.ctx, kind)
	s.Require().NoError(err)
	for _, a := range aggs {
		expected, ok := want[a.EntityID]
		if !ok {
			s.Zero(a.Total(), "aggregate without ledger rows: %s", a.EntityID)
			continue
		}
		s.Equal(expected, a, "aggregate drifted for %s", a.EntityID)
		delete(want, a.EntityID)
	}
	s.Empty(want, "ledger rows without aggregate")
}

func (s *ServiceSuite) TestCastVote() {
	s.Run("first vote creates aggregate", func() {
		s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "paris", models.VoteLiked))
		s.Equal(1, s.aggregate(catalog.KindCity, "paris").Likes)
		s.Equal(1, s.invalidator.count(catalog.KindCity))
		s.Equal(events.TypeVoteCast, s.publisher.last().Type)
		s.Equal("city", s.publisher.last().Kind)
	})

	s.Run("duplicate vote conflicts and mutates nothing", func() {
		err := s.service.CastVote(s.ctx, catalog.KindCity, s.user, "paris", models.VoteDisliked)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		a := s.aggregate(catalog.KindCity, "paris")
		s.Equal(1, a.Likes)
		s.Zero(a.Dislikes)
		s.Equal(1, s.invalidator.count(catalog.KindCity))
	})

	s.Run("airport votes are independent", func() {
		s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindAirport, s.user, "cdg", models.VoteDontKnow))
		s.Equal(1, s.aggregate(catalog.KindAirport, "cdg").DontKnow)
		s.Equal(1, s.invalidator.count(catalog.KindAirport))
	})

	s.requireConsistent(catalog.KindCity)
	s.requireConsistent(catalog.KindAirport)
}

func (s *ServiceSuite) TestCastVoteRejections() {
	cases := []struct {
		name   string
		key    string
		entity string
		vt     models.VoteType
		code   dErrors.Code
	}{
		{"empty key", "", "paris", models.VoteLiked, dErrors.CodeValidation},
		{"invalid vote type", s.user, "paris", models.VoteType("love"), dErrors.CodeValidation},
		{"invalid vote type before unknown entity", s.user, "atlantis", models.VoteType("love"), dErrors.CodeValidation},
		{"unknown entity", s.user, "atlantis", models.VoteLiked, dErrors.CodeNotFound},
		{"unknown entity before unregistered key", "forged-key", "atlantis", models.VoteLiked, dErrors.CodeNotFound},
		{"unregistered non-uuid key", "forged-key", "paris", models.VoteLiked, dErrors.CodeForbidden},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			err := s.service.CastVote(s.ctx, catalog.KindCity, tc.key, tc.entity, tc.vt)
			s.Require().Error(err)
			s.Equal(tc.code, dErrors.CodeOf(err))
		})
	}

	aggs, err := s.store.ListAggregates(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.Empty(aggs)
}

func (s *ServiceSuite) TestRegisteredKeyMayVote() {
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, "tg_user_1", "rome", models.VoteLiked))
	s.Equal(1, s.aggregate(catalog.KindCity, "rome").Likes)
}

func (s *ServiceSuite) TestChangeVote() {
	s.Run("no prior vote creates", func() {
		outcome, err := s.service.ChangeVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteLiked)
		s.Require().NoError(err)
		s.Equal(models.OutcomeCreated, outcome)
	})

	s.Run("same type is unchanged and skips side effects", func() {
		before := s.invalidator.count(catalog.KindCity)
		outcome, err := s.service.ChangeVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteLiked)
		s.Require().NoError(err)
		s.Equal(models.OutcomeUnchanged, outcome)
		s.Equal(before, s.invalidator.count(catalog.KindCity))
		s.Equal(1, s.aggregate(catalog.KindCity, "rome").Likes)
	})

	s.Run("liked to disliked to liked round trip", func() {
		outcome, err := s.service.ChangeVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteDisliked)
		s.Require().NoError(err)
		s.Equal(models.OutcomeChanged, outcome)
		a := s.aggregate(catalog.KindCity, "rome")
		s.Equal(0, a.Likes)
		s.Equal(1, a.Dislikes)

		_, err = s.service.ChangeVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteLiked)
		s.Require().NoError(err)
		a = s.aggregate(catalog.KindCity, "rome")
		s.Equal(1, a.Likes)
		s.Equal(0, a.Dislikes)
		s.Equal(0, a.DontKnow)
	})

	s.requireConsistent(catalog.KindCity)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.VotesTotal.WithLabelValues("city", "changed")))
}

func (s *ServiceSuite) TestChangeVoteRejectsForgedKey() {
	_, err := s.service.ChangeVote(s.ctx, catalog.KindCity, "forged-key", "rome", models.VoteLiked)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestChangeVoteSurfacesDrift() {
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "oslo", models.VoteLiked))
	// Out-of-band write: the aggregate forgets the like.
	s.Require().NoError(s.store.PutAggregate(s.ctx, models.Aggregate{Kind: catalog.KindCity, EntityID: "oslo"}))

	_, err := s.service.ChangeVote(s.ctx, catalog.KindCity, s.user, "oslo", models.VoteDisliked)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.InvariantViolations.WithLabelValues("city")))

	vt, err := s.store.FindVote(s.ctx, s.user, catalog.KindCity, "oslo")
	s.Require().NoError(err)
	s.Equal(models.VoteLiked, vt, "failed change must roll back the ledger")

	fixed, err := s.service.ReconcileAggregates(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.Equal(1, fixed)
	s.requireConsistent(catalog.KindCity)
}

func (s *ServiceSuite) TestBulkChangeVote() {
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "paris", models.VoteLiked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteDisliked))

	s.Run("counts only entities that changed", func() {
		changed, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, s.user, models.VoteLiked,
			[]string{" paris ", "rome", "oslo", "rome", "atlantis"})
		s.Require().NoError(err)
		s.Equal(2, changed, "paris already liked, atlantis unknown")

		s.Equal(events.TypeVotesBulkChanged, s.publisher.last().Type)
		s.Equal([]string{"oslo", "rome"}, s.publisher.last().EntityIDs)
	})

	s.Run("second identical call changes nothing", func() {
		changed, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, s.user, models.VoteLiked,
			[]string{"paris", "rome", "oslo"})
		s.Require().NoError(err)
		s.Zero(changed)
	})

	s.Run("only unknown ids", func() {
		changed, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, s.user, models.VoteLiked, []string{"atlantis"})
		s.Require().NoError(err)
		s.Zero(changed)
	})

	s.Run("too many distinct ids", func() {
		_, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, s.user, models.VoteLiked,
			[]string{"a", "b", "c", "d", "e"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicates do not count toward the cap", func() {
		_, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, s.user, models.VoteLiked,
			[]string{"paris", "paris", "paris", "paris", "rome"})
		s.NoError(err)
	})

	s.Run("forged key", func() {
		_, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, "forged-key", models.VoteLiked, []string{"paris"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	a := s.aggregate(catalog.KindCity, "rome")
	s.Equal(1, a.Likes)
	s.Zero(a.Dislikes)
	s.requireConsistent(catalog.KindCity)
}

func (s *ServiceSuite) TestBulkChangeVoteRollsBackWholeBatch() {
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteDisliked))
	// Drift the rome aggregate so its decrement fails after oslo and paris were written.
	s.Require().NoError(s.store.PutAggregate(s.ctx, models.Aggregate{Kind: catalog.KindCity, EntityID: "rome"}))
	invalidations := s.invalidator.count(catalog.KindCity)
	published := len(s.publisher.events)

	_, err := s.service.BulkChangeVote(s.ctx, catalog.KindCity, s.user, models.VoteLiked,
		[]string{"oslo", "paris", "rome"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	for _, id := range []string{"oslo", "paris"} {
		_, err := s.store.FindVote(s.ctx, s.user, catalog.KindCity, id)
		s.ErrorIs(err, sentinel.ErrNotFound, "vote on %s survived the rollback", id)
		s.Zero(s.aggregate(catalog.KindCity, id).Total())
	}
	vt, err := s.store.FindVote(s.ctx, s.user, catalog.KindCity, "rome")
	s.Require().NoError(err)
	s.Equal(models.VoteDisliked, vt)

	s.Equal(invalidations, s.invalidator.count(catalog.KindCity))
	s.Len(s.publisher.events, published)
}

func (s *ServiceSuite) TestConcurrentCastsKeepOneVote() {
	const writers = 12
	var wg sync.WaitGroup
	var succeeded, conflicted atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vt := models.VoteTypes[i%len(models.VoteTypes)]
			err := s.service.CastVote(s.ctx, catalog.KindCity, s.user, "lima", vt)
			switch {
			case err == nil:
				succeeded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicted.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(writers-1), conflicted.Load())
	s.Equal(1, s.aggregate(catalog.KindCity, "lima").Total())
	s.requireConsistent(catalog.KindCity)
}

func (s *ServiceSuite) TestConcurrentMixedOperationsStayConsistent() {
	users := make([]string, 6)
	for i := range users {
		users[i] = uuid.NewString()
	}
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			vt := models.VoteTypes[i%len(models.VoteTypes)]
			_ = s.service.CastVote(s.ctx, catalog.KindCity, user, "paris", vt)
			_, _ = s.service.ChangeVote(s.ctx, catalog.KindCity, user, "paris", models.VoteDisliked)
			_, _ = s.service.BulkChangeVote(s.ctx, catalog.KindCity, user, models.VoteLiked, []string{"paris", "rome", "oslo"})
			_, _ = s.service.ChangeVote(s.ctx, catalog.KindCity, user, "rome", vt)
		}(i, user)
	}
	wg.Wait()

	s.Equal(len(users), s.aggregate(catalog.KindCity, "paris").Likes)
	s.requireConsistent(catalog.KindCity)
}

func (s *ServiceSuite) TestListUserVotesAndDeck() {
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteLiked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "paris", models.VoteDontKnow))

	votes, err := s.service.ListUserVotes(s.ctx, catalog.KindCity, s.user)
	s.Require().NoError(err)
	s.Require().Len(votes, 2)
	s.Equal("paris", votes[0].Entity.ID)
	s.Equal(models.VoteDontKnow, votes[0].VoteType)

	deck, err := s.service.ListUnvoted(s.ctx, catalog.KindCity, s.user)
	s.Require().NoError(err)
	s.Equal(4, deck.TotalCount)
	s.Equal(2, deck.VotedCount)
	s.Require().Len(deck.Entities, 2)
	s.Equal("oslo", deck.Entities[0].ID)
	s.Equal("lima", deck.Entities[1].ID)
	s.Contains(s.keys.anonymous, s.user)

	_, err = s.service.ListUnvoted(s.ctx, catalog.KindCity, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestStatsAndProfile() {
	other := uuid.NewString()
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteLiked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, other, "rome", models.VoteDisliked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindAirport, s.user, "fco", models.VoteDontKnow))

	st, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, st.TotalUsers)
	s.Equal(1, st.Cities.Entities)
	s.Equal(2, st.Cities.TotalVotes())
	s.Equal(1, st.Airports.DontKnow)

	p, err := s.service.Profile(s.ctx, s.user)
	s.Require().NoError(err)
	s.Len(p.Cities, 4)
	s.Len(p.Airports, 2)
	s.Equal(models.VoteLiked, p.Cities[1].VoteType)
	s.Empty(p.Cities[0].VoteType)
	s.Equal(models.VoteDontKnow, p.Airports[1].VoteType)
}

func (s *ServiceSuite) TestRenameEntity() {
	u2, u3 := uuid.NewString(), uuid.NewString()
	// s.user voted on both ids; its vote on the new id wins.
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "oslo", models.VoteLiked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "lima", models.VoteDisliked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, u2, "oslo", models.VoteLiked))
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, u3, "oslo", models.VoteDontKnow))

	res, err := s.service.RenameEntity(s.ctx, catalog.KindCity, "oslo", "lima")
	s.Require().NoError(err)
	s.Equal(int64(1), res.Dropped)
	s.Equal(int64(2), res.Moved)

	a := s.aggregate(catalog.KindCity, "lima")
	s.Equal(models.Aggregate{Kind: catalog.KindCity, EntityID: "lima", Likes: 1, Dislikes: 1, DontKnow: 1}, a)
	s.Zero(s.aggregate(catalog.KindCity, "oslo").Total())
	s.requireConsistent(catalog.KindCity)

	_, err = s.service.RenameEntity(s.ctx, catalog.KindCity, "lima", "lima")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestReconcileIsNoopWhenConsistent() {
	s.Require().NoError(s.service.CastVote(s.ctx, catalog.KindCity, s.user, "rome", models.VoteLiked))
	fixed, err := s.service.ReconcileAggregates(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.Zero(fixed)
}
