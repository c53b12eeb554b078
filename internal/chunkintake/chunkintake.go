// Package chunkintake handles creating the initial fragment for a freshly
// uploaded chunk, activating it once every MPC party acknowledges the
// chunk is ready, and reporting whether a chunk's payload may be evicted
// because no fragment references it; deleting the payload is left to the
// caller. The "chunk ready" and eviction-trigger signals themselves
// arrive over the inter-party channel, which is out of scope — this
// package only implements what happens once they do.
package chunkintake

import (
	"context"

	"github.com/google/uuid"

	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/fragmentstore"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Service implements chunk intake and the eviction check on top of a
// fragmentstore.Service.
type Service struct {
	store *fragmentstore.Service
}

// New wraps store in a chunk intake Service.
func New(store *fragmentstore.Service) *Service {
	return &Service{store: store}
}

// Intake keeps the initial LOCKED fragment spanning [0, numberOfTuples)
// for a freshly uploaded chunk.
func (s *Service) Intake(ctx context.Context, chunkID uuid.UUID, t tupletype.TupleType, numberOfTuples int64) (fragment.Fragment, error) {
	return s.store.Keep(ctx, fragment.Fragment{
		ChunkID:    chunkID,
		TupleType:  t,
		Status:     fragment.Locked,
		StartIndex: 0,
		EndIndex:   numberOfTuples,
	})
}

// Acknowledge activates every LOCKED fragment of chunkID once all MPC
// parties have confirmed the chunk is ready.
func (s *Service) Acknowledge(ctx context.Context, chunkID uuid.UUID) (int64, error) {
	return s.store.ActivateAllForChunk(ctx, chunkID)
}

// Evictable reports whether chunkID's payload may be deleted from the
// object store: no fragment references it at all.
// There is no separate "no LOCKED fragments" check — IsChunkReferenced
// already covers every status, so a chunk that still has unconsumed
// LOCKED or UNLOCKED fragments is never evictable.
func (s *Service) Evictable(ctx context.Context, chunkID uuid.UUID) (bool, error) {
	referenced, err := s.store.IsChunkReferenced(ctx, chunkID)
	if err != nil {
		return false, err
	}
	return !referenced, nil
}
