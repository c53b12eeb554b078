// Package memrepo implements fragment.Repository entirely in memory,
// protected by a single mutex. It plays the same role the teacher's
// storage.MemoryStore plays for storage.Store: a fast, non-persistent
// backend used by tests and single-process deployments, with the exact
// same transactional semantics production callers rely on (WithTx here
// simply holds the mutex for the duration of fn, since there is only ever
// one writer at a time in a single process).
package memrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Repository is an in-memory fragment.Repository. The zero value is not
// usable; construct with New.
type Repository struct {
	rows   map[int64]*fragment.Fragment
	mu     sync.Mutex
	nextID int64
}

// New creates an empty Repository ready for use.
func New() *Repository {
	return &Repository{rows: make(map[int64]*fragment.Fragment)}
}

// tx is the Repository's Tx implementation. It carries no state: memrepo
// serializes all access through Repository.mu, so every WithTx call is
// already exclusive.
type tx struct{}

func (tx) isFragmentTx() {}

// WithTx runs fn while holding the repository's single mutex, giving the
// same all-or-nothing semantics a SQL transaction would: rows are plain
// map entries mutated in place, so WithTx snapshots them before fn runs
// and restores that snapshot (rows and next id) if fn returns an error
// (memrepo is for tests; production durability comes from pgrepo).
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx fragment.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// snapshot for rollback-on-error
	snapshot := make(map[int64]fragment.Fragment, len(r.rows))
	for id, f := range r.rows {
		snapshot[id] = *f
	}
	snapshotNextID := r.nextID

	if err := fn(ctx, tx{}); err != nil {
		r.rows = make(map[int64]*fragment.Fragment, len(snapshot))
		for id, f := range snapshot {
			f := f
			r.rows[id] = &f
		}
		r.nextID = snapshotNextID
		return err
	}
	return nil
}

func (r *Repository) overlaps(chunkID uuid.UUID, start, end int64, excludeID int64) bool {
	for _, f := range r.rows {
		if f.ID == excludeID || f.ChunkID != chunkID {
			continue
		}
		if start < f.EndIndex && f.StartIndex < end {
			return true
		}
	}
	return false
}

// Keep implements fragment.Repository.
func (r *Repository) Keep(_ context.Context, _ fragment.Tx, f fragment.Fragment) (fragment.Fragment, error) {
	if !f.Valid() {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "fragment range must be non-empty")
	}
	if r.overlaps(f.ChunkID, f.StartIndex, f.EndIndex, -1) {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "overlapping fragment exists for chunk")
	}
	r.nextID++
	f.ID = r.nextID
	r.rows[f.ID] = &f
	return f, nil
}

// FindAvailableContainingIndex implements fragment.Repository.
func (r *Repository) FindAvailableContainingIndex(_ context.Context, _ fragment.Tx, chunkID uuid.UUID, index int64) (fragment.Fragment, bool, error) {
	var best *fragment.Fragment
	for _, f := range r.rows {
		if f.ChunkID != chunkID || !f.Available() {
			continue
		}
		if f.StartIndex > index || index >= f.EndIndex {
			continue
		}
		if best == nil || f.StartIndex > best.StartIndex ||
			(f.StartIndex == best.StartIndex && f.ID < best.ID) {
			best = f
		}
	}
	if best == nil {
		return fragment.Fragment{}, false, nil
	}
	return *best, true, nil
}

// FindAnyAvailableOfType implements fragment.Repository.
func (r *Repository) FindAnyAvailableOfType(_ context.Context, _ fragment.Tx, t tupletype.TupleType, excludeIDs []int64) (fragment.Fragment, bool, error) {
	excluded := make(map[int64]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var best *fragment.Fragment
	for _, f := range r.rows {
		if f.TupleType != t || !f.Available() || excluded[f.ID] {
			continue
		}
		if best == nil || f.ID < best.ID {
			best = f
		}
	}
	if best == nil {
		return fragment.Fragment{}, false, nil
	}
	return *best, true, nil
}

// AvailableTupleCount implements fragment.Repository.
func (r *Repository) AvailableTupleCount(_ context.Context, t tupletype.TupleType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, f := range r.rows {
		if f.TupleType == t && f.Available() {
			total += f.Len()
		}
	}
	return total, nil
}

// SplitBefore implements fragment.Repository.
func (r *Repository) SplitBefore(_ context.Context, _ fragment.Tx, f fragment.Fragment, atIndex int64) (fragment.Fragment, error) {
	if !(f.StartIndex < atIndex && atIndex < f.EndIndex) {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "splitBefore: atIndex out of range")
	}
	row, ok := r.rows[f.ID]
	if !ok {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "splitBefore: fragment no longer exists")
	}

	upper := *row
	upper.StartIndex = atIndex
	row.EndIndex = atIndex

	r.nextID++
	upper.ID = r.nextID
	r.rows[upper.ID] = &upper
	return upper, nil
}

// SplitAt implements fragment.Repository.
func (r *Repository) SplitAt(_ context.Context, _ fragment.Tx, f fragment.Fragment, atIndex int64) (fragment.Fragment, error) {
	if !(f.StartIndex < atIndex && atIndex < f.EndIndex) {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "splitAt: atIndex out of range")
	}
	row, ok := r.rows[f.ID]
	if !ok {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "splitAt: fragment no longer exists")
	}

	upper := *row
	upper.StartIndex = atIndex
	row.EndIndex = atIndex

	r.nextID++
	upper.ID = r.nextID
	r.rows[upper.ID] = &upper

	lower := *row
	return lower, nil
}

// Update implements fragment.Repository.
func (r *Repository) Update(_ context.Context, _ fragment.Tx, f fragment.Fragment) error {
	if _, ok := r.rows[f.ID]; !ok {
		return castorerr.New(castorerr.Conflict, "update: fragment no longer exists")
	}
	stored := f
	r.rows[f.ID] = &stored
	return nil
}

// ActivateAllForChunk implements fragment.Repository.
func (r *Repository) ActivateAllForChunk(_ context.Context, _ fragment.Tx, chunkID uuid.UUID) (int64, error) {
	var count int64
	for _, f := range r.rows {
		if f.ChunkID == chunkID && f.Status == fragment.Locked {
			f.Status = fragment.Unlocked
			count++
		}
	}
	return count, nil
}

// DeleteByReservationID implements fragment.Repository.
func (r *Repository) DeleteByReservationID(_ context.Context, _ fragment.Tx, reservationID string) error {
	for id, f := range r.rows {
		if f.ReservationID == reservationID {
			delete(r.rows, id)
		}
	}
	return nil
}

// IsChunkReferenced implements fragment.Repository. Callers always reach
// this through WithTx (fragmentstore.Service.IsChunkReferenced wraps it),
// which already holds r.mu, so this method must not lock it again.
func (r *Repository) IsChunkReferenced(ctx context.Context, _ fragment.Tx, chunkID uuid.UUID) (bool, error) {
	for _, f := range r.rows {
		if f.ChunkID == chunkID {
			return true, nil
		}
	}
	return false, nil
}

// Snapshot returns every stored fragment sorted by ID, for tests that need
// to assert on the full fragment set (scenarios S1/S2 in spec §8).
func (r *Repository) Snapshot() []fragment.Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]fragment.Fragment, 0, len(r.rows))
	for _, f := range r.rows {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
