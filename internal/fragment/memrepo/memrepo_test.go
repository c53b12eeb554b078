package memrepo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/tupletype"
)

func keep(t *testing.T, repo *Repository, chunkID uuid.UUID, start, end int64, status fragment.ActivationStatus, reservationID string) fragment.Fragment {
	t.Helper()
	var out fragment.Fragment
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		f, err := repo.Keep(ctx, tx, fragment.Fragment{
			ChunkID:       chunkID,
			TupleType:     tupletype.MultiplicationTripleGFP,
			StartIndex:    start,
			EndIndex:      end,
			Status:        status,
			ReservationID: reservationID,
		})
		out = f
		return err
	})
	require.NoError(t, err)
	return out
}

// TestKeepRejectsOverlap covers spec §8 scenario S3.
func TestKeepRejectsOverlap(t *testing.T) {
	repo := New()
	chunkID := uuid.New()
	keep(t, repo, chunkID, 10, 20, fragment.Unlocked, "")

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		_, err := repo.Keep(ctx, tx, fragment.Fragment{
			ChunkID:    chunkID,
			TupleType:  tupletype.MultiplicationTripleGFP,
			StartIndex: 15,
			EndIndex:   25,
		})
		return err
	})

	require.Error(t, err)
	assert.True(t, castorerr.Is(err, castorerr.Conflict))
	assert.Len(t, repo.Snapshot(), 1, "store unchanged on conflict")
}

func TestKeepRejectsEmptyRange(t *testing.T) {
	repo := New()
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		_, err := repo.Keep(ctx, tx, fragment.Fragment{ChunkID: uuid.New(), StartIndex: 5, EndIndex: 5})
		return err
	})
	require.Error(t, err)
	assert.True(t, castorerr.Is(err, castorerr.Conflict))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo := New()
	chunkID := uuid.New()
	keep(t, repo, chunkID, 0, 10, fragment.Unlocked, "")

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		if _, err := repo.Keep(ctx, tx, fragment.Fragment{ChunkID: uuid.New(), StartIndex: 0, EndIndex: 5}); err != nil {
			return err
		}
		// second keep in the same tx conflicts, forcing a rollback of the
		// whole transaction including the first (otherwise-valid) keep.
		_, err := repo.Keep(ctx, tx, fragment.Fragment{ChunkID: chunkID, StartIndex: 3, EndIndex: 8})
		return err
	})

	require.Error(t, err)
	assert.Len(t, repo.Snapshot(), 1, "only the pre-existing fragment survives the rollback")
}

// TestSplitInTheMiddle covers spec §8 scenario S1.
func TestSplitInTheMiddle(t *testing.T) {
	repo := New()
	chunkID := uuid.New()
	keep(t, repo, chunkID, 0, 99, fragment.Unlocked, "")

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		f, ok, err := repo.FindAvailableContainingIndex(ctx, tx, chunkID, 42)
		require.NoError(t, err)
		require.True(t, ok)

		f, err = repo.SplitBefore(ctx, tx, f, 42)
		require.NoError(t, err)
		require.Equal(t, int64(42), f.StartIndex)
		require.Equal(t, int64(99), f.EndIndex)

		f, err = repo.SplitAt(ctx, tx, f, 63)
		require.NoError(t, err)
		require.Equal(t, int64(42), f.StartIndex)
		require.Equal(t, int64(63), f.EndIndex)

		f.ReservationID = "R1"
		return repo.Update(ctx, tx, f)
	})
	require.NoError(t, err)

	snap := repo.Snapshot()
	require.Len(t, snap, 3)

	byRange := map[[2]int64]fragment.Fragment{}
	for _, f := range snap {
		byRange[[2]int64{f.StartIndex, f.EndIndex}] = f
	}

	lower := byRange[[2]int64{0, 42}]
	assert.True(t, lower.Available())

	middle := byRange[[2]int64{42, 63}]
	assert.Equal(t, "R1", middle.ReservationID)
	assert.False(t, middle.Available())

	upper := byRange[[2]int64{63, 99}]
	assert.True(t, upper.Available())
}

// TestActivateAllForChunk covers spec §8 scenario S6.
func TestActivateAllForChunk(t *testing.T) {
	repo := New()
	chunkID := uuid.New()
	keep(t, repo, chunkID, 0, 50, fragment.Locked, "")

	_, ok, err := queryFindAny(t, repo, tupletype.MultiplicationTripleGFP)
	require.NoError(t, err)
	assert.False(t, ok, "locked fragment is not available")

	var count int64
	err = repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		count, err = repo.ActivateAllForChunk(ctx, tx, chunkID)
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	f, ok, err := queryFindAny(t, repo, tupletype.MultiplicationTripleGFP)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fragment.Unlocked, f.Status)
}

func queryFindAny(t *testing.T, repo *Repository, tt tupletype.TupleType) (fragment.Fragment, bool, error) {
	t.Helper()
	var f fragment.Fragment
	var ok bool
	var err error
	txErr := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		f, ok, err = repo.FindAnyAvailableOfType(ctx, tx, tt, nil)
		return err
	})
	require.NoError(t, txErr)
	return f, ok, err
}

func TestAvailableTupleCount(t *testing.T) {
	repo := New()
	chunkID := uuid.New()
	keep(t, repo, chunkID, 0, 100, fragment.Unlocked, "")

	count, err := repo.AvailableTupleCount(context.Background(), tupletype.MultiplicationTripleGFP)
	require.NoError(t, err)
	assert.EqualValues(t, 100, count)
}

func TestIsChunkReferenced(t *testing.T) {
	repo := New()
	chunkID := uuid.New()

	referenced, err := withReferenced(repo, chunkID)
	require.NoError(t, err)
	assert.False(t, referenced)

	keep(t, repo, chunkID, 0, 10, fragment.Locked, "")

	referenced, err = withReferenced(repo, chunkID)
	require.NoError(t, err)
	assert.True(t, referenced)
}

func withReferenced(repo *Repository, chunkID uuid.UUID) (bool, error) {
	var referenced bool
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		r, err := repo.IsChunkReferenced(ctx, tx, chunkID)
		referenced = r
		return err
	})
	return referenced, err
}

func TestDeleteByReservationID(t *testing.T) {
	repo := New()
	chunkID := uuid.New()
	keep(t, repo, chunkID, 0, 10, fragment.Unlocked, "R1")
	keep(t, repo, chunkID, 10, 20, fragment.Unlocked, "")

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx fragment.Tx) error {
		return repo.DeleteByReservationID(ctx, tx, "R1")
	})
	require.NoError(t, err)
	assert.Len(t, repo.Snapshot(), 1)
}
