package models

import (
	"fmt"

	"cityrater/internal/catalog"
	dErrors "cityrater/pkg/domain-errors"
)

// EntityKind partitions votes and aggregates into cities and airports.
type EntityKind = catalog.Kind

// VoteType is the user's opinion of an entity.
type VoteType string

const (
	VoteLiked    VoteType = "liked"
	VoteDisliked VoteType = "disliked"
	VoteDontKnow VoteType = "dont_know"
)

// VoteTypes lists every vote type in aggregate column order.
var VoteTypes = []VoteType{VoteLiked, VoteDisliked, VoteDontKnow}

// IsValid reports whether t is one of the supported vote types.
func (t VoteType) IsValid() bool {
	switch t {
	case VoteLiked, VoteDisliked, VoteDontKnow:
		return true
	}
	return false
}

// ParseVoteType validates a vote type coming from a request.
func ParseVoteType(s string) (VoteType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "voteType is required")
	}
	t := VoteType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid voteType %q: must be liked, disliked or dont_know", s))
	}
	return t, nil
}

// Vote is one ledger row: the single opinion a user holds about an entity.
type Vote struct {
	UserKey  string
	Kind     EntityKind
	EntityID string
	Type     VoteType
}

// Aggregate holds the per-entity counters derived from the ledger.
type Aggregate struct {
	Kind     EntityKind
	EntityID string
	Likes    int
	Dislikes int
	DontKnow int
}

// Count returns the counter for t.
func (a Aggregate) Count(t VoteType) int {
	switch t {
	case VoteLiked:
		return a.Likes
	case VoteDisliked:
		return a.Dislikes
	case VoteDontKnow:
		return a.DontKnow
	}
	return 0
}

// Total is the number of ledger rows the aggregate accounts for.
func (a Aggregate) Total() int {
	return a.Likes + a.Dislikes + a.DontKnow
}

// Outcome reports what a change-vote did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeChanged   Outcome = "changed"
)

// UserVote is a user's vote joined with catalog metadata.
type UserVote struct {
	Entity   catalog.Entity
	VoteType VoteType
}

// Deck is the set of entities a user has not voted on yet.
type Deck struct {
	Entities   []catalog.Entity
	VotedCount int
	TotalCount int
}

// ProfileEntry is a catalog entity with the user's vote, if any.
type ProfileEntry struct {
	Entity   catalog.Entity
	VoteType VoteType
}

// Profile merges both catalogs with one user's votes.
type Profile struct {
	Cities   []ProfileEntry
	Airports []ProfileEntry
}

// KindStats summarises one entity kind.
type KindStats struct {
	Entities int
	Voters   int
	Likes    int
	Dislikes int
	DontKnow int
}

// TotalVotes counts every response, including dont_know.
func (s KindStats) TotalVotes() int {
	return s.Likes + s.Dislikes + s.DontKnow
}

// Stats summarises the whole ledger.
type Stats struct {
	Cities     KindStats
	Airports   KindStats
	TotalUsers int
}

// RenameResult reports what RenameEntity did to the ledger.
type RenameResult struct {
	Moved   int64
	Dropped int64
}
