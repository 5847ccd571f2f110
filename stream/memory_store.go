package stream

import (
	"context"
	"sync"

	"github.com/BaSui01/researchflow/types"
)

// MemoryStore is an in-memory Store for tests and single-process runs
// that do not need durability across restarts.
type MemoryStore struct {
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*Checkpoint)}
}

// Save stores a copy of the checkpoint.
func (s *MemoryStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *checkpoint
	cp.Results = append([]byte(nil), checkpoint.Results...)
	s.checkpoints[checkpoint.StreamID] = &cp
	return nil
}

// Load returns a copy of the stored checkpoint.
func (s *MemoryStore) Load(ctx context.Context, streamID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.checkpoints[streamID]
	if !ok {
		return nil, types.NewError(types.ErrCheckpointNotFound, "no checkpoint for stream "+streamID)
	}
	cp := *stored
	cp.Results = append([]byte(nil), stored.Results...)
	return &cp, nil
}

// Delete removes the checkpoint if present.
func (s *MemoryStore) Delete(ctx context.Context, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, streamID)
	return nil
}

// Name identifies the backing store.
func (s *MemoryStore) Name() string { return "memory" }

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
