package models

import (
	"strings"

	"cityrater/internal/catalog"
	dErrors "cityrater/pkg/domain-errors"
)

// VoteRequest is the body of /api/vote and /api/change-vote (cityId) and
// their airport counterparts (airportId).
type VoteRequest struct {
	UserID    string `json:"userId"`
	CityID    string `json:"cityId,omitempty"`
	AirportID string `json:"airportId,omitempty"`
	VoteType  string `json:"voteType"`
}

// Normalize trims identifiers.
func (r *VoteRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.CityID = strings.TrimSpace(r.CityID)
	r.AirportID = strings.TrimSpace(r.AirportID)
	r.VoteType = strings.TrimSpace(r.VoteType)
}

// EntityID returns the id field that matches kind.
func (r *VoteRequest) EntityID(kind EntityKind) string {
	if kind == catalog.KindAirport {
		return r.AirportID
	}
	return r.CityID
}

// Validate checks required fields for kind.
func (r *VoteRequest) Validate(kind EntityKind) error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if r.EntityID(kind) == "" {
		return dErrors.New(dErrors.CodeValidation, entityField(kind)+" is required")
	}
	if _, err := ParseVoteType(r.VoteType); err != nil {
		return err
	}
	return nil
}

// BulkVoteRequest is the body of the bulk change endpoints.
type BulkVoteRequest struct {
	UserID     string   `json:"userId"`
	VoteType   string   `json:"voteType"`
	CityIDs    []string `json:"cityIds,omitempty"`
	AirportIDs []string `json:"airportIds,omitempty"`
}

// Normalize trims identifiers.
func (r *BulkVoteRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.VoteType = strings.TrimSpace(r.VoteType)
}

// EntityIDs returns the id list that matches kind.
func (r *BulkVoteRequest) EntityIDs(kind EntityKind) []string {
	if kind == catalog.KindAirport {
		return r.AirportIDs
	}
	return r.CityIDs
}

// Validate checks required fields for kind.
func (r *BulkVoteRequest) Validate(kind EntityKind) error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "userId is required")
	}
	if _, err := ParseVoteType(r.VoteType); err != nil {
		return err
	}
	if r.EntityIDs(kind) == nil {
		return dErrors.New(dErrors.CodeValidation, entityField(kind)+"s must be an array")
	}
	return nil
}

func entityField(kind EntityKind) string {
	if kind == catalog.KindAirport {
		return "airportId"
	}
	return "cityId"
}
