// Package store defines the persistence boundary consumed by the round
// state machine: an opaque key/blob/JSON object store with atomic manifest
// replacement, keyed by round id. Transport, entropy-source clients, and
// on-disk filesystem layout are environment concerns; store only fixes the
// contract the core round machine relies on.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested round, blob, or JSON key does not
// exist in the store.
var ErrNotFound = errors.New("store: not found")

// Handle addresses a single round's namespace within a Store.
type Handle struct {
	RoundID string
}

// Store is the persistence interface the round state machine is built
// against. Every method that mutates round state must be safe to call from
// a single writer per round id; the store itself does not serialize writes
// across rounds -- that is the caller's (round.Service's) job.
type Store interface {
	// NewRound allocates a fresh round namespace and returns its handle.
	NewRound(ctx context.Context) (Handle, error)

	// PutBlob writes an opaque byte blob under key within h's namespace.
	PutBlob(ctx context.Context, h Handle, key string, data []byte) error
	// PutJSON marshals obj and writes it under key within h's namespace.
	PutJSON(ctx context.Context, h Handle, key string, obj any) error

	// GetBlob reads the blob stored under key. Returns ErrNotFound if absent.
	GetBlob(ctx context.Context, h Handle, key string) ([]byte, error)
	// GetJSON unmarshals the JSON stored under key into out. Returns
	// ErrNotFound if absent.
	GetJSON(ctx context.Context, h Handle, key string, out any) error

	// ListRounds returns every round id known to the store.
	ListRounds(ctx context.Context) ([]string, error)

	// CommitManifest atomically replaces the round's manifest.json with obj.
	// A reader observing the store mid-write must never see a partial
	// manifest.
	CommitManifest(ctx context.Context, h Handle, obj any) error
}
