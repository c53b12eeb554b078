// Package fragment defines the central entity of the Castor core: a
// half-open tuple range inside a chunk, the repository interface that
// persists it, and the invariants every implementation must uphold.
//
// See doc.go for the package-level overview of how fragments relate to
// chunks, reservations, and the split-on-reserve algorithm.
package fragment

import (
	"context"

	"github.com/google/uuid"

	"github.com/HRI-EU/castor/internal/tupletype"
)

// ActivationStatus is a fragment's two-valued lifecycle state.
type ActivationStatus string

const (
	// Locked means the fragment was ingested but not yet agreed across
	// all MPC parties; it is never available for reservation.
	Locked ActivationStatus = "LOCKED"
	// Unlocked means the fragment is eligible for reservation, subject to
	// also having no ReservationID set.
	Unlocked ActivationStatus = "UNLOCKED"
)

// Fragment represents a half-open tuple range [StartIndex, EndIndex) inside
// one chunk. ID is assigned by the repository and is used only for stable
// FIFO ordering across chunks (spec §4.1, findAnyAvailableOfType); it has no
// meaning outside one repository instance.
type Fragment struct {
	// ReservationID, when non-empty, exclusively promises this fragment's
	// range to one reservation. Available fragments have an empty
	// ReservationID.
	ReservationID string

	ChunkID   uuid.UUID
	TupleType tupletype.TupleType
	Status    ActivationStatus

	ID         int64
	StartIndex int64
	EndIndex   int64
}

// Available reports whether f is eligible for reservation: unlocked and not
// already promised to a reservation (spec §3, "Availability definition").
func (f Fragment) Available() bool {
	return f.Status == Unlocked && f.ReservationID == ""
}

// Len returns the number of tuples f covers.
func (f Fragment) Len() int64 { return f.EndIndex - f.StartIndex }

// Valid reports whether f satisfies the half-open, non-empty range
// invariant (spec §3).
func (f Fragment) Valid() bool { return f.StartIndex < f.EndIndex }

// Tx is an opaque, repository-specific transaction handle passed to the
// Repository methods that must run inside one transaction. Callers obtain
// one from Repository.WithTx and never construct it directly.
type Tx interface {
	// marker method, unexported so only this package's repositories can
	// implement Tx.
	isFragmentTx()
}

// Repository is the durable, transactional store of Fragment rows and the
// three queries the reservation algorithm needs (spec §4.1). Every method
// that mutates or reads multiple rows together must be called with the tx
// obtained from a single WithTx call so the operation is atomic.
//
// Two implementations exist: memrepo (in-memory, used by tests and
// single-process deployments) and pgrepo (Postgres via pgx, used in
// production) — the same dual-backend shape as the teacher's
// storage.Store/storage.MemoryStore pair.
type Repository interface {
	// WithTx runs fn inside one transaction and commits on success or
	// rolls back on any returned error, the explicit seam spec.md §9
	// calls for in place of annotation-driven transaction demarcation.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Keep inserts a new fragment. It fails with castorerr.Conflict if any
	// existing fragment for the same ChunkID overlaps the new range; the
	// overlap check and insert are one atomic operation.
	Keep(ctx context.Context, tx Tx, f Fragment) (Fragment, error)

	// FindAvailableContainingIndex returns the available fragment with
	// the largest StartIndex <= index < EndIndex for chunkID, or ok=false
	// if none covers index.
	FindAvailableContainingIndex(ctx context.Context, tx Tx, chunkID uuid.UUID, index int64) (f Fragment, ok bool, err error)

	// FindAnyAvailableOfType returns the available fragment of t with the
	// smallest ID among those not listed in excludeIDs, or ok=false if
	// none remain. This FIFO order is what makes cross-chunk allocation
	// deterministic at the master; excludeIDs lets a single selection
	// pass walk fragments in order without re-selecting one it already
	// used a prefix of (see fragmentstore.Service.SelectElements).
	FindAnyAvailableOfType(ctx context.Context, tx Tx, t tupletype.TupleType, excludeIDs []int64) (f Fragment, ok bool, err error)

	// AvailableTupleCount returns the sum of (EndIndex-StartIndex) over
	// every available fragment of t. May run outside a transaction (read
	// committed is sufficient, spec §9's documented staleness trade-off).
	AvailableTupleCount(ctx context.Context, t tupletype.TupleType) (int64, error)

	// SplitBefore requires f.StartIndex < atIndex < f.EndIndex. It shrinks
	// the stored row to [StartIndex, atIndex) and inserts a new row
	// [atIndex, EndIndex) with the same status/reservation id, returning
	// the upper half.
	SplitBefore(ctx context.Context, tx Tx, f Fragment, atIndex int64) (Fragment, error)

	// SplitAt requires f.StartIndex < atIndex < f.EndIndex. Same
	// preconditions as SplitBefore, but returns the lower half
	// [StartIndex, atIndex); the new row [atIndex, EndIndex) is stored as
	// the upper half's replacement.
	SplitAt(ctx context.Context, tx Tx, f Fragment, atIndex int64) (Fragment, error)

	// Update persists a mutated in-memory fragment (status or
	// reservation-id changes).
	Update(ctx context.Context, tx Tx, f Fragment) error

	// ActivateAllForChunk transitions every LOCKED fragment of chunkID to
	// UNLOCKED and returns how many rows were flipped.
	ActivateAllForChunk(ctx context.Context, tx Tx, chunkID uuid.UUID) (int64, error)

	// DeleteByReservationID removes every fragment carrying reservationID.
	DeleteByReservationID(ctx context.Context, tx Tx, reservationID string) error

	// IsChunkReferenced reports whether at least one fragment exists for
	// chunkID, regardless of status.
	IsChunkReferenced(ctx context.Context, tx Tx, chunkID uuid.UUID) (bool, error)
}
