package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityrater/internal/catalog"
	"cityrater/internal/platform/config"
	"cityrater/internal/platform/database"
	"cityrater/internal/vote/models"
	dErrors "cityrater/pkg/domain-errors"
	tu "cityrater/pkg/testutil"
)

func setup(t *testing.T) (services, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cat := catalog.New(
		[]catalog.Entity{{ID: "kyiv"}, {ID: "kiev"}, {ID: "rome"}},
		[]catalog.Entity{{ID: "kbp"}},
	)
	cfg := config.Config{Database: config.DatabaseConfig{TxMaxAttempts: 3}}
	return newServices(db, cat, cfg, tu.DiscardLogger()), &bytes.Buffer{}
}

func TestUsage(t *testing.T) {
	svc, out := setup(t)

	require.ErrorIs(t, run(context.Background(), nil, svc, out), errUsage)
	assert.Contains(t, out.String(), "usage: maintenance")

	out.Reset()
	require.ErrorIs(t, run(context.Background(), []string{"vacuum"}, svc, out), errUsage)
}

func TestReconcileAllKinds(t *testing.T) {
	svc, out := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.votes.CastVote(ctx, catalog.KindCity, uuid.NewString(), "rome", models.VoteLiked))

	require.NoError(t, run(ctx, []string{"reconcile"}, svc, out))

	assert.Contains(t, out.String(), "city: 0 aggregates corrected")
	assert.Contains(t, out.String(), "airport: 0 aggregates corrected")
}

func TestReconcileRejectsUnknownKind(t *testing.T) {
	svc, out := setup(t)

	err := run(context.Background(), []string{"reconcile", "-kind", "train"}, svc, out)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRenameMergesVotes(t *testing.T) {
	svc, out := setup(t)
	ctx := context.Background()
	both, onlyOld := uuid.NewString(), uuid.NewString()
	require.NoError(t, svc.votes.CastVote(ctx, catalog.KindCity, both, "kiev", models.VoteDisliked))
	require.NoError(t, svc.votes.CastVote(ctx, catalog.KindCity, both, "kyiv", models.VoteLiked))
	require.NoError(t, svc.votes.CastVote(ctx, catalog.KindCity, onlyOld, "kiev", models.VoteLiked))

	require.NoError(t, run(ctx, []string{"rename", "-kind", "city", "-from", "kiev", "-to", "kyiv"}, svc, out))

	assert.Equal(t, "city kiev -> kyiv: 1 votes moved, 1 duplicates dropped\n", out.String())
}

func TestRenameRequiresIDs(t *testing.T) {
	svc, out := setup(t)

	err := run(context.Background(), []string{"rename", "-from", "kiev"}, svc, out)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCleanupDebug(t *testing.T) {
	svc, out := setup(t)
	ctx := context.Background()
	_, err := svc.identity.ResolveOrRegister(ctx, "debug_1", "")
	require.NoError(t, err)
	_, err = svc.identity.ResolveOrRegister(ctx, "555", "")
	require.NoError(t, err)

	require.NoError(t, run(ctx, []string{"cleanup-debug", "-prefix", "debug_"}, svc, out))

	assert.Equal(t, "1 debug users deleted\n", out.String())
}
