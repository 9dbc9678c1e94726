// Package bufstore provides the thought-buffer store: a growable,
// persistent collection of reusable reasoning templates keyed by problem
// signature, with retrieval and atomic usage accounting.
package bufstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no entry exists for a signature.
var ErrNotFound = errors.New("buffer entry not found")

// Entry is one reusable reasoning template. Usage statistics are mutated
// after each use; entries are never deleted by a strategy within a run.
type Entry struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	Steps     []string  `json:"steps"` // ordered reasoning steps, value placeholders abstracted
	LabelHint int       `json:"label_hint"`
	Usage     int       `json:"usage_count"`
	Scored    int       `json:"scored_count"`  // uses where ground truth was available
	Correct   int       `json:"correct_count"` // scored uses that matched ground truth
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SuccessRate is the fraction of scored uses that were correct, or zero
// when the entry has never been scored.
func (e *Entry) SuccessRate() float64 {
	if e.Scored == 0 {
		return 0
	}
	return float64(e.Correct) / float64(e.Scored)
}

// Store is the thought-buffer storage interface.
type Store interface {
	// Get retrieves the entry with an exact signature match.
	// Returns ErrNotFound when no such entry exists.
	Get(ctx context.Context, signature string) (*Entry, error)

	// GetOrCreate retrieves the entry for signature, inserting the given
	// template first when absent. Reports whether an insert happened.
	// The check-then-insert is atomic per signature.
	GetOrCreate(ctx context.Context, signature string, steps []string, labelHint int) (*Entry, bool, error)

	// Nearest returns the entry whose signature is most similar to the
	// given abnormality tokens, with its similarity. Entries below
	// minSim are ignored; ErrNotFound when nothing qualifies.
	Nearest(ctx context.Context, tokens []string, minSim float64) (*Entry, float64, error)

	// RecordUse increments usage_count and, when correct is non-nil,
	// the scored/correct counters. Atomic per signature: concurrent
	// cases resolving the same signature never lose an update.
	RecordUse(ctx context.Context, signature string, correct *bool) error

	// All lists every entry, most used first.
	All(ctx context.Context) ([]Entry, error)

	// Remove deletes the entry for a signature (maintenance surface,
	// never called by strategies).
	Remove(ctx context.Context, signature string) error

	// Close closes the store.
	Close() error
}
