// Package fragmentstore wraps a fragment.Repository with the non-overlap
// invariant, the split-on-reserve algorithm, and the chunk
// activation/eviction lifecycle — the parts of the core that must run
// above raw storage regardless of which Repository backend is in use.
package fragmentstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/reservation"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Service is the fragment store. It holds no state of its own; every
// operation delegates to the wrapped Repository, adding only the
// orchestration a single repository call can't express on its own.
type Service struct {
	repo fragment.Repository
}

// New wraps repo in a Service.
func New(repo fragment.Repository) *Service {
	return &Service{repo: repo}
}

// Keep inserts a new fragment, see fragment.Repository.Keep.
func (s *Service) Keep(ctx context.Context, f fragment.Fragment) (fragment.Fragment, error) {
	var out fragment.Fragment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx fragment.Tx) error {
		kept, err := s.repo.Keep(ctx, tx, f)
		if err != nil {
			return err
		}
		out = kept
		return nil
	})
	return out, err
}

// AvailableTupleCount returns the sum of available fragment lengths for t.
// It intentionally runs outside a transaction, so the result can be
// slightly stale — createReservation re-checks inside its own transaction
// before committing to a selection.
func (s *Service) AvailableTupleCount(ctx context.Context, t tupletype.TupleType) (int64, error) {
	return s.repo.AvailableTupleCount(ctx, t)
}

// ActivateAllForChunk transitions every LOCKED fragment of chunkID to
// UNLOCKED. It fails with castorerr.NoSuchChunk if no row was flipped.
// A zero count does not tell "chunk never existed" apart from "nothing
// left LOCKED" (already activated or consumed); both surface as the same
// NoSuchChunk error.
func (s *Service) ActivateAllForChunk(ctx context.Context, chunkID uuid.UUID) (int64, error) {
	var count int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx fragment.Tx) error {
		n, err := s.repo.ActivateAllForChunk(ctx, tx, chunkID)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, castorerr.New(castorerr.NoSuchChunk, "no fragment found for chunk")
	}
	return count, nil
}

// DeleteByReservationID removes every fragment carrying reservationID.
func (s *Service) DeleteByReservationID(ctx context.Context, reservationID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx fragment.Tx) error {
		return s.repo.DeleteByReservationID(ctx, tx, reservationID)
	})
}

// IsChunkReferenced reports whether at least one fragment exists for
// chunkID, regardless of status — used by chunkintake.Service.Evictable
// and by a slave's wait for a replicated reservation's chunks.
func (s *Service) IsChunkReferenced(ctx context.Context, chunkID uuid.UUID) (bool, error) {
	var referenced bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx fragment.Tx) error {
		ok, err := s.repo.IsChunkReferenced(ctx, tx, chunkID)
		if err != nil {
			return err
		}
		referenced = ok
		return nil
	})
	return referenced, err
}

// SelectElements greedily walks available fragments of type t, in
// repository id order, until count tuples are covered, and returns the
// element prefixes createReservation needs.
// It does not mutate the repository — the selection only becomes durable
// once ApplyReservation runs inside its own transaction, which re-checks
// availability and may discover a concurrent reservation already won part
// of what was selected here (that surfaces as UnsatisfiableReservation).
func (s *Service) SelectElements(ctx context.Context, t tupletype.TupleType, count int64) ([]reservation.Element, error) {
	var elements []reservation.Element
	var excludeIDs []int64
	remaining := count

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx fragment.Tx) error {
		for remaining > 0 {
			f, ok, err := s.repo.FindAnyAvailableOfType(ctx, tx, t, excludeIDs)
			if err != nil {
				return err
			}
			if !ok {
				return castorerr.New(castorerr.UnsatisfiableReservation, "ran out of available fragments during selection")
			}

			take := f.Len()
			if take > remaining {
				take = remaining
			}
			elements = append(elements, reservation.Element{
				ChunkID:        f.ChunkID,
				StartIndex:     f.StartIndex,
				ReservedTuples: take,
			})
			remaining -= take
			excludeIDs = append(excludeIDs, f.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return elements, nil
}

// ApplyReservation runs the split-on-reserve algorithm once per element of
// r, all inside one outer transaction so that partial application is
// impossible: any UnsatisfiableReservation rolls the whole thing back.
func (s *Service) ApplyReservation(ctx context.Context, r reservation.Reservation) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx fragment.Tx) error {
		for _, element := range r.Elements {
			if err := s.applyElement(ctx, tx, r.ID, element); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyElement implements the §4.1 split-on-reserve algorithm for one
// ReservationElement, tagging every fragment covering [need.lo, need.hi)
// for chunkID with reservationID.
func (s *Service) applyElement(ctx context.Context, tx fragment.Tx, reservationID string, element reservation.Element) error {
	if element.ReservedTuples <= 0 {
		return castorerr.New(castorerr.Conflict, "reservedTuples must be positive")
	}

	needLo := element.StartIndex
	needHi := element.EndIndex()
	if needHi <= needLo {
		return castorerr.New(castorerr.Conflict, "startIndex+reservedTuples overflowed")
	}

	cursor := needLo
	for cursor < needHi {
		f, ok, err := s.repo.FindAvailableContainingIndex(ctx, tx, element.ChunkID, cursor)
		if err != nil {
			return err
		}
		if !ok {
			return castorerr.New(castorerr.UnsatisfiableReservation, "no available fragment covers the requested range")
		}

		if f.StartIndex < cursor {
			f, err = s.repo.SplitBefore(ctx, tx, f, cursor)
			if err != nil {
				return err
			}
		}
		if needHi < f.EndIndex {
			f, err = s.repo.SplitAt(ctx, tx, f, needHi)
			if err != nil {
				return err
			}
		}

		f.ReservationID = reservationID
		if err := s.repo.Update(ctx, tx, f); err != nil {
			return err
		}
		cursor = f.EndIndex
	}
	return nil
}
