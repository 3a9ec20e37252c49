package models

import (
	"time"

	"github.com/google/uuid"
)

// Scheme tells which identifier scheme a user key belongs to. Legacy keys are
// client-generated UUIDs; registered keys exist in the users table.
type Scheme string

const (
	SchemeLegacy     Scheme = "legacy"
	SchemeRegistered Scheme = "registered"
)

// UserKey is a resolved user key. Only the identity service builds one, so
// holders know the key passed the authorization check.
type UserKey struct {
	Value  string
	Scheme Scheme
}

func (k UserKey) String() string {
	return k.Value
}

// IsLegacyFormat reports whether raw is a canonical hyphenated UUID.
func IsLegacyFormat(raw string) bool {
	return len(raw) == 36 && uuid.Validate(raw) == nil
}

// User is one row of the users table. TelegramID and UserKey are empty when
// unset.
type User struct {
	ID         string
	TelegramID string
	UserKey    string
	CreatedAt  time.Time
}

// IsLinked reports whether the user has a verified Telegram identity.
func (u User) IsLinked() bool {
	return u.TelegramID != ""
}

// Transition reports how ResolveOrRegister produced its user.
type Transition string

const (
	TransitionRestored Transition = "restored"
	TransitionLinked   Transition = "linked"
	TransitionCreated  Transition = "created"
)

// Resolution is the result of ResolveOrRegister.
type Resolution struct {
	User       User
	Transition Transition
}
