package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"cityrater/internal/catalog"
	"cityrater/internal/ranking/metrics"
	vmodels "cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	tu "cityrater/pkg/testutil"
)

type fakeAggregates struct {
	mu    sync.Mutex
	rows  map[catalog.Kind][]vmodels.Aggregate
	calls int
	err   error
}

func (f *fakeAggregates) ListAggregates(_ context.Context, kind vmodels.EntityKind) ([]vmodels.Aggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]vmodels.Aggregate(nil), f.rows[kind]...), nil
}

func (f *fakeAggregates) set(kind catalog.Kind, rows ...vmodels.Aggregate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[kind] = rows
}

type RankingSuite struct {
	suite.Suite
	ctx     context.Context
	store   *fakeAggregates
	service *Service
	metrics *metrics.Metrics
	now     time.Time
}

func TestRankingSuite(t *testing.T) {
	suite.Run(t, new(RankingSuite))
}

func agg(kind catalog.Kind, id string, likes, dislikes, dontKnow int) vmodels.Aggregate {
	return vmodels.Aggregate{Kind: kind, EntityID: id, Likes: likes, Dislikes: dislikes, DontKnow: dontKnow}
}

func (s *RankingSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Unix(1_700_000_000, 0)
	s.store = &fakeAggregates{rows: map[catalog.Kind][]vmodels.Aggregate{}}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	cat := catalog.New(
		[]catalog.Entity{{ID: "A", Name: "Alpha", Country: "X"}, {ID: "B", Name: "Beta", Country: "Y"}},
		[]catalog.Entity{{ID: "cdg", Name: "Charles de Gaulle", Code: "CDG"}},
	)
	s.service = New(s.store, cat,
		WithLogger(tu.DiscardLogger()),
		WithMetrics(s.metrics),
		WithTTL(30*time.Second),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *RankingSuite) TestRankingsOrderAndEnrichment() {
	s.store.set(catalog.KindCity,
		agg(catalog.KindCity, "B", 4, 1, 0),
		agg(catalog.KindCity, "A", 8, 2, 0),
		agg(catalog.KindCity, "gone", 1, 0, 0),
	)

	rows, err := s.service.Rankings(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal("gone", rows[0].Entity.ID, "rating 1.0 ranks first")
	s.Equal("gone", rows[0].Entity.Name)
	s.Equal("Unknown", rows[0].Entity.Country)
	s.Equal("A", rows[1].Entity.ID)
	s.Equal("Alpha", rows[1].Entity.Name)
	s.Equal("B", rows[2].Entity.ID)
}

func (s *RankingSuite) TestCacheServesUntilInvalidated() {
	s.store.set(catalog.KindCity, agg(catalog.KindCity, "A", 1, 0, 0))

	_, err := s.service.Rankings(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.store.set(catalog.KindCity, agg(catalog.KindCity, "A", 1, 1, 0))

	rows, err := s.service.Rankings(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.Equal(1, rows[0].TotalVotes, "served from cache")
	s.Equal(1, s.store.calls)

	s.service.Invalidate(catalog.KindAirport)
	rows, _ = s.service.Rankings(s.ctx, catalog.KindCity)
	s.Equal(1, rows[0].TotalVotes, "other kind's invalidation does not apply")

	s.service.Invalidate(catalog.KindCity)
	rows, err = s.service.Rankings(s.ctx, catalog.KindCity)
	s.Require().NoError(err)
	s.Equal(2, rows[0].TotalVotes)
	s.Equal(2, s.store.calls)

	s.Equal(2.0, testutil.ToFloat64(s.metrics.CacheHits.WithLabelValues("city")))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.CacheMisses.WithLabelValues("city")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheInvalidations.WithLabelValues("city")))
}

func (s *RankingSuite) TestCacheExpires() {
	s.store.set(catalog.KindCity, agg(catalog.KindCity, "A", 1, 0, 0))
	_, _ = s.service.Rankings(s.ctx, catalog.KindCity)
	s.now = s.now.Add(31 * time.Second)
	_, _ = s.service.Rankings(s.ctx, catalog.KindCity)
	s.Equal(2, s.store.calls)
}

func (s *RankingSuite) TestCallerMayMutateResult() {
	s.store.set(catalog.KindCity, agg(catalog.KindCity, "A", 1, 0, 0), agg(catalog.KindCity, "B", 0, 1, 0))
	rows, _ := s.service.Rankings(s.ctx, catalog.KindCity)
	rows[0] = rows[1]

	again, _ := s.service.Rankings(s.ctx, catalog.KindCity)
	s.Equal("A", again[0].Entity.ID)
}

func (s *RankingSuite) TestHiddenJam() {
	s.store.set(catalog.KindCity,
		agg(catalog.KindCity, "A", 10, 0, 0),
		agg(catalog.KindCity, "B", 2, 0, 8),
	)

	rows, err := s.service.HiddenJam(s.ctx, catalog.KindCity, 1, 0)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("B", rows[0].Entity.ID)

	rows, err = s.service.HiddenJam(s.ctx, catalog.KindCity, 5, 0)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("A", rows[0].Entity.ID)

	_, err = s.service.HiddenJam(s.ctx, catalog.KindCity, -1, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RankingSuite) TestStoreFailureIsInternal() {
	s.store.err = errors.New("db down")
	_, err := s.service.Rankings(s.ctx, catalog.KindAirport)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RankingSuite) TestUnknownKind() {
	_, err := s.service.Rankings(s.ctx, catalog.Kind("train"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
