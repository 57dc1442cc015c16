// Package errors defines the categorized error taxonomy shared across
// energychain's components (spec.md §7), grounded on the teacher's
// per-domain sentinel-error style (core/errors/stake.go) generalized into
// one categorized type so every component reports failures the same way.
package errors

import (
	"errors"
	"fmt"
)

// Category partitions failures by how the orchestrator should react to
// them: log and drop, retry, penalize a peer, or halt the node.
type Category string

const (
	// Validation covers malformed input, bad signatures, and failing
	// entity invariants. Surfaced to the submitter; never retried.
	Validation Category = "validation"
	// StateConflict covers double-spends, stale nonces, and duplicate
	// transactions. Surfaced; not retried.
	StateConflict Category = "state_conflict"
	// Transient covers peer timeouts and storage contention. Retried
	// with bounded backoff by the caller.
	Transient Category = "transient"
	// ConsensusFault covers a wrong proposer, bad Merkle root, or bad
	// block signature. Rejected; peer reputation is degraded; not fatal.
	ConsensusFault Category = "consensus_fault"
	// Fatal covers storage corruption or missing key material. The node
	// shuts down cleanly.
	Fatal Category = "fatal"
)

// Error is a categorized failure with a stable machine-readable reason
// code, used for both the typed rejection returned to submitters and the
// reason recorded alongside every rejected transaction or invalid block.
type Error struct {
	Category Category
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a categorized error with a reason code and no wrapped
// cause.
func New(category Category, reason string) *Error {
	return &Error{Category: category, Reason: reason}
}

// Wrap constructs a categorized error around an existing cause.
func Wrap(category Category, reason string, err error) *Error {
	return &Error{Category: category, Reason: reason, Err: err}
}

// CategoryOf reports the category of err if it (or something it wraps) is
// an *Error, and false otherwise.
func CategoryOf(err error) (Category, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category, true
	}
	return "", false
}

// Is reports whether err carries the given category.
func Is(err error, category Category) bool {
	cat, ok := CategoryOf(err)
	return ok && cat == category
}
