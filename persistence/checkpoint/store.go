// Package checkpoint persists one conversation thread's supervisor
// state across turns (spec.md §4.4, §5 hybrid persistence). Unlike
// graph/store.Store[S], which is type-parameterized per single state
// type S and has no notion of lineage between checkpoints, this store
// is a single non-generic JSON-blob table keyed by thread, with each
// row pointing at its parent checkpoint — the shape a multi-turn
// conversation actually needs, since every turn's checkpoint succeeds
// the previous turn's.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound mirrors graph/store.ErrNotFound for this package's own
// Store implementations.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpoint is one persisted turn boundary for a thread.
type Checkpoint struct {
	ID          string
	ThreadID    string
	ParentID    string // empty for a thread's first checkpoint
	StateJSON   []byte
	CreatedAtMS int64
}

// Store persists and retrieves Checkpoints.
type Store interface {
	// Save inserts cp. Callers are expected to have already set
	// cp.ParentID to the thread's current latest checkpoint ID.
	Save(ctx context.Context, cp Checkpoint) error
	// Latest returns the most recently saved checkpoint for threadID,
	// or ErrNotFound if the thread has none yet.
	Latest(ctx context.Context, threadID string) (Checkpoint, error)
	// Get returns a specific checkpoint by ID, for lineage walks.
	Get(ctx context.Context, id string) (Checkpoint, error)
	// DeleteThread removes every checkpoint belonging to threadID. Go
	// equivalent of spec.md's delete_thread(thread), mirrored here so a
	// thread deletion can clear both stores with one call each.
	DeleteThread(ctx context.Context, threadID string) error
	Close() error
}

// DecodeState unmarshals cp.StateJSON into a T, a small convenience so
// callers don't repeat the json.Unmarshal boilerplate at every call site.
func DecodeState[T any](cp Checkpoint) (T, error) {
	var state T
	err := json.Unmarshal(cp.StateJSON, &state)
	return state, err
}

// EncodeState marshals state into the StateJSON field of a new Checkpoint.
func EncodeState[T any](id, threadID, parentID string, state T, createdAtMS int64) (Checkpoint, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{ID: id, ThreadID: threadID, ParentID: parentID, StateJSON: raw, CreatedAtMS: createdAtMS}, nil
}
