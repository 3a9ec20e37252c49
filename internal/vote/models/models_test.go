package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityrater/internal/catalog"
	dErrors "cityrater/pkg/domain-errors"
)

func TestParseVoteType(t *testing.T) {
	for _, vt := range []string{"liked", "disliked", "dont_know"} {
		got, err := ParseVoteType(vt)
		require.NoError(t, err)
		assert.Equal(t, VoteType(vt), got)
	}

	_, err := ParseVoteType("like")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = ParseVoteType("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestAggregateCount(t *testing.T) {
	a := Aggregate{Likes: 3, Dislikes: 2, DontKnow: 1}
	assert.Equal(t, 3, a.Count(VoteLiked))
	assert.Equal(t, 2, a.Count(VoteDisliked))
	assert.Equal(t, 1, a.Count(VoteDontKnow))
	assert.Equal(t, 6, a.Total())
}

func TestVoteRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		kind    EntityKind
		req     VoteRequest
		wantErr bool
	}{
		{"valid city", catalog.KindCity, VoteRequest{UserID: "u", CityID: "c", VoteType: "liked"}, false},
		{"valid airport", catalog.KindAirport, VoteRequest{UserID: "u", AirportID: "a", VoteType: "dont_know"}, false},
		{"city id missing for airport kind", catalog.KindAirport, VoteRequest{UserID: "u", CityID: "c", VoteType: "liked"}, true},
		{"missing user", catalog.KindCity, VoteRequest{CityID: "c", VoteType: "liked"}, true},
		{"bad vote type", catalog.KindCity, VoteRequest{UserID: "u", CityID: "c", VoteType: "meh"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := tt.req.Validate(tt.kind)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBulkVoteRequestValidate(t *testing.T) {
	req := BulkVoteRequest{UserID: " u ", VoteType: "liked", CityIDs: []string{}}
	req.Normalize()
	require.NoError(t, req.Validate(catalog.KindCity))
	assert.Equal(t, "u", req.UserID)

	missing := BulkVoteRequest{UserID: "u", VoteType: "liked"}
	assert.True(t, dErrors.HasCode(missing.Validate(catalog.KindCity), dErrors.CodeValidation))
}
