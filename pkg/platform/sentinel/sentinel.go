package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors.
//
//   - ErrNotFound: row does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrConcurrentUpdate: a conditional write lost a race; the transaction may be retried
//   - ErrInvariantViolation: stored state contradicts a storage invariant
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrConcurrentUpdate   = errors.New("concurrent update")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrUnavailable        = errors.New("unavailable")
)
