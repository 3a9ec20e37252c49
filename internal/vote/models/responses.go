package models

import (
	"encoding/json"

	"cityrater/internal/catalog"
)

// flatten renders e with extra fields merged in at the top level.
func flatten(e catalog.Entity, extra map[string]any) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		fields[k] = v
	}
	return json.Marshal(fields)
}

func (v UserVote) MarshalJSON() ([]byte, error) {
	return flatten(v.Entity, map[string]any{"voteType": v.VoteType})
}

// MarshalJSON omits voteType for entities the user has not voted on.
func (p ProfileEntry) MarshalJSON() ([]byte, error) {
	extra := map[string]any{}
	if p.VoteType != "" {
		extra["voteType"] = p.VoteType
	}
	return flatten(p.Entity, extra)
}

type VoteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type BulkVoteResponse struct {
	Success bool `json:"success"`
	Changed int  `json:"changed"`
}

type UserVotesResponse struct {
	UserVotes []UserVote `json:"userVotes"`
}

// collectionKey is the JSON key clients expect for a list of kind.
func collectionKey(kind EntityKind) string {
	if kind == catalog.KindAirport {
		return "airports"
	}
	return "cities"
}

func nonNilEntities(entities []catalog.Entity) []catalog.Entity {
	if entities == nil {
		return []catalog.Entity{}
	}
	return entities
}

// NewDeckResponse renders the deck as {cities|airports, votedCount, totalCount}.
func NewDeckResponse(kind EntityKind, d Deck) map[string]any {
	return map[string]any{
		collectionKey(kind): nonNilEntities(d.Entities),
		"votedCount":        d.VotedCount,
		"totalCount":        d.TotalCount,
	}
}

// NewEntitiesResponse renders the whole catalog of kind as {cities|airports}.
func NewEntitiesResponse(kind EntityKind, entities []catalog.Entity) map[string]any {
	return map[string]any{collectionKey(kind): nonNilEntities(entities)}
}

type ProfileResponse struct {
	ProfileCities   []ProfileEntry `json:"profileCities"`
	ProfileAirports []ProfileEntry `json:"profileAirports"`
}

type KindStatsResponse struct {
	TotalEntities int `json:"totalEntities"`
	TotalVoters   int `json:"totalVoters"`
	TotalVotes    int `json:"totalVotes"`
	TotalLikes    int `json:"totalLikes"`
	TotalDislikes int `json:"totalDislikes"`
	TotalDontKnow int `json:"totalDontKnow"`
}

func newKindStatsResponse(s KindStats) KindStatsResponse {
	return KindStatsResponse{
		TotalEntities: s.Entities,
		TotalVoters:   s.Voters,
		TotalVotes:    s.TotalVotes(),
		TotalLikes:    s.Likes,
		TotalDislikes: s.Dislikes,
		TotalDontKnow: s.DontKnow,
	}
}

// StatsResponse keeps the flat city totals at the top level and nests the
// per-kind breakdown.
type StatsResponse struct {
	TotalCities   int               `json:"totalCities"`
	TotalUsers    int               `json:"totalUsers"`
	TotalVotes    int               `json:"totalVotes"`
	TotalLikes    int               `json:"totalLikes"`
	TotalDislikes int               `json:"totalDislikes"`
	TotalDontKnow int               `json:"totalDontKnow"`
	Cities        KindStatsResponse `json:"cities"`
	Airports      KindStatsResponse `json:"airports"`
}

func NewStatsResponse(s Stats) StatsResponse {
	return StatsResponse{
		TotalCities:   s.Cities.Entities,
		TotalUsers:    s.TotalUsers,
		TotalVotes:    s.Cities.TotalVotes(),
		TotalLikes:    s.Cities.Likes,
		TotalDislikes: s.Cities.Dislikes,
		TotalDontKnow: s.Cities.DontKnow,
		Cities:        newKindStatsResponse(s.Cities),
		Airports:      newKindStatsResponse(s.Airports),
	}
}
