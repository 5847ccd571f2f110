package stream

import (
	"context"
	"encoding/json"
	"time"
)

// Checkpoint is the durable record of how much of a stream has completed.
// It always reflects a prefix of fully-processed units, never a unit in
// flight, and at most one checkpoint exists per stream identity.
type Checkpoint struct {
	StreamID       string          `json:"stream_id"`
	OwnerTag       string          `json:"owner_tag"`
	UnitsProcessed int             `json:"units_processed"`
	Results        json.RawMessage `json:"results"`
	CallsMade      int             `json:"calls_made"`
	LastUnit       string          `json:"last_unit"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Store persists checkpoints under a stream-scoped key. Implementations
// must serialize concurrent writers to the same key; a stream is expected
// to have exactly one active writer at a time.
type Store interface {
	// Save writes the checkpoint, superseding any previous one for the
	// same stream.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load returns the checkpoint for the stream, or an error carrying
	// types.ErrCheckpointNotFound when none exists.
	Load(ctx context.Context, streamID string) (*Checkpoint, error)

	// Delete removes the checkpoint. Deleting a missing checkpoint is
	// not an error.
	Delete(ctx context.Context, streamID string) error

	// Name identifies the backing store ("memory", "redis", "sqlite")
	// for logs and metric labels.
	Name() string
}
