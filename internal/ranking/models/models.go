package models

import (
	"encoding/json"
	"slices"
	"strings"

	"cityrater/internal/catalog"
	vmodels "cityrater/internal/vote/models"
)

// Row is one scored entity.
type Row struct {
	Entity         catalog.Entity
	Likes          int
	Dislikes       int
	DontKnow       int
	TotalVotes     int
	TotalResponses int
	Rating         float64
	Popularity     float64
	HiddenJamScore float64
}

// Score derives the ranking figures from an aggregate. dont_know responses
// count toward popularity but not toward rating.
func Score(a vmodels.Aggregate, e catalog.Entity) Row {
	r := Row{
		Entity:         e,
		Likes:          a.Likes,
		Dislikes:       a.Dislikes,
		DontKnow:       a.DontKnow,
		TotalVotes:     a.Likes + a.Dislikes,
		TotalResponses: a.Likes + a.Dislikes + a.DontKnow,
	}
	if r.TotalVotes > 0 {
		r.Rating = float64(r.Likes) / float64(r.TotalVotes)
	}
	if r.TotalResponses > 0 {
		r.Popularity = float64(r.TotalVotes) / float64(r.TotalResponses)
	}
	r.HiddenJamScore = r.Rating * (1 - r.Popularity)
	return r
}

// SortRankings orders rows by rating, popularity and total votes, all
// descending, then by id.
func SortRankings(rows []Row) {
	slices.SortStableFunc(rows, compareRanking)
}

func compareRanking(a, b Row) int {
	if c := compareDesc(a.Rating, b.Rating); c != 0 {
		return c
	}
	if c := compareDesc(a.Popularity, b.Popularity); c != 0 {
		return c
	}
	if c := compareDesc(a.TotalVotes, b.TotalVotes); c != 0 {
		return c
	}
	return strings.Compare(a.Entity.ID, b.Entity.ID)
}

// HiddenJams keeps rows with at least minVotes likes+dislikes (never fewer
// than one), orders them by hidden-jam score and truncates to limit when
// limit is positive. rows is not modified.
func HiddenJams(rows []Row, minVotes, limit int) []Row {
	minVotes = max(minVotes, 1)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.TotalVotes >= minVotes {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b Row) int {
		if c := compareDesc(a.HiddenJamScore, b.HiddenJamScore); c != 0 {
			return c
		}
		if c := compareDesc(a.Rating, b.Rating); c != 0 {
			return c
		}
		if c := compareDesc(a.TotalVotes, b.TotalVotes); c != 0 {
			return c
		}
		return strings.Compare(a.Entity.ID, b.Entity.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func compareDesc[T int | float64](a, b T) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

// MarshalJSON flattens the entity fields next to the scores.
func (r Row) MarshalJSON() ([]byte, error) {
	entity, err := json.Marshal(r.Entity)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(entity, &fields); err != nil {
		return nil, err
	}
	fields["likes"] = r.Likes
	fields["dislikes"] = r.Dislikes
	fields["dont_know"] = r.DontKnow
	fields["totalVotes"] = r.TotalVotes
	fields["totalResponses"] = r.TotalResponses
	fields["rating"] = r.Rating
	fields["popularity"] = r.Popularity
	fields["hiddenJamScore"] = r.HiddenJamScore
	return json.Marshal(fields)
}
