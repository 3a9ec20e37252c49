// Package events publishes vote and identity events off the request path.
package events

import "time"

type Type string

const (
	TypeVoteCast             Type = "vote_cast"
	TypeVoteChanged          Type = "vote_changed"
	TypeVotesBulkChanged     Type = "votes_bulk_changed"
	TypeUserResolved         Type = "user_resolved"
	TypeAggregatesReconciled Type = "aggregates_reconciled"
	TypeEntityRenamed        Type = "entity_renamed"
)

// Event is transport-agnostic so any sink can serialise it.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	UserKey   string    `json:"user_key,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	VoteType  string    `json:"vote_type,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Key partitions events so one user's events stay ordered.
func (e Event) Key() string {
	if e.UserKey != "" {
		return e.UserKey
	}
	return e.Kind
}
