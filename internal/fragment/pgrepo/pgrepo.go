// Package pgrepo implements fragment.Repository against Postgres via
// pgx/v5, the durable backend a real Castor deployment uses. It follows
// the column layout spec §6 lays out for the fragment row and keeps the
// same three-query shape memrepo implements in memory, with the
// transactional WithTx seam backed by a real pgx.Tx instead of an
// in-process mutex.
package pgrepo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Schema is the DDL for the fragment table and its recommended indexes
// (spec §6). Callers apply it themselves (e.g. via a migration tool); it
// is exposed here only as documentation-by-constant.
const Schema = `
CREATE TABLE IF NOT EXISTS fragment (
	id                bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	tuple_chunk_id    uuid NOT NULL,
	tuple_type        text NOT NULL,
	start_index       bigint NOT NULL,
	end_index         bigint NOT NULL,
	activation_status text NOT NULL CHECK (activation_status IN ('LOCKED','UNLOCKED')),
	reservation_id    text NULL
);

CREATE INDEX IF NOT EXISTS fragment_chunk_start_idx ON fragment (tuple_chunk_id, start_index);
CREATE INDEX IF NOT EXISTS fragment_type_status_idx ON fragment (tuple_type, activation_status, reservation_id, id);
CREATE INDEX IF NOT EXISTS fragment_reservation_idx ON fragment (reservation_id);
`

// Repository is a Postgres-backed fragment.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// tx wraps a pgx.Tx to satisfy fragment.Tx.
type tx struct {
	pgx.Tx
}

func (tx) isFragmentTx() {}

func unwrap(t fragment.Tx) pgx.Tx {
	return t.(tx).Tx
}

// WithTx runs fn inside a serializable Postgres transaction, satisfying
// spec §4.1's requirement that applyReservation and every multi-row
// mutation run inside exactly one transaction. A serialization failure at
// commit is reported as castorerr.Conflict; any other commit failure as
// castorerr.TransportFailure.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx fragment.Tx) error) error {
	pgxTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "begin transaction", err)
	}

	if err := fn(ctx, tx{pgxTx}); err != nil {
		_ = pgxTx.Rollback(ctx)
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" {
			return castorerr.Wrap(castorerr.Conflict, "commit transaction: serialization failure", err)
		}
		return castorerr.Wrap(castorerr.TransportFailure, "commit transaction", err)
	}
	return nil
}

// Keep implements fragment.Repository. The overlap check and insert run
// as two statements in one SERIALIZABLE transaction: a concurrent transaction
// inserting an overlapping range will abort at commit time with a
// serialization failure, which we surface as castorerr.Conflict.
func (r *Repository) Keep(ctx context.Context, t fragment.Tx, f fragment.Fragment) (fragment.Fragment, error) {
	if !f.Valid() {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "fragment range must be non-empty")
	}

	var exists bool
	err := unwrap(t).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM fragment
			WHERE tuple_chunk_id = $1 AND start_index < $2 AND end_index > $3
		)`, f.ChunkID, f.EndIndex, f.StartIndex).Scan(&exists)
	if err != nil {
		return fragment.Fragment{}, castorerr.Wrap(castorerr.TransportFailure, "overlap check", err)
	}
	if exists {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "overlapping fragment exists for chunk")
	}

	err = unwrap(t).QueryRow(ctx, `
		INSERT INTO fragment (tuple_chunk_id, tuple_type, start_index, end_index, activation_status, reservation_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id`,
		f.ChunkID, f.TupleType.String(), f.StartIndex, f.EndIndex, string(f.Status), f.ReservationID,
	).Scan(&f.ID)
	if err != nil {
		return fragment.Fragment{}, castorerr.Wrap(castorerr.TransportFailure, "insert fragment", err)
	}
	return f, nil
}

func scanFragment(row pgx.Row) (fragment.Fragment, error) {
	var f fragment.Fragment
	var tupleTypeTag string
	var status string
	var reservationID *string

	if err := row.Scan(&f.ID, &f.ChunkID, &tupleTypeTag, &f.StartIndex, &f.EndIndex, &status, &reservationID); err != nil {
		return fragment.Fragment{}, err
	}

	tt, err := tupletype.Parse(tupleTypeTag)
	if err != nil {
		return fragment.Fragment{}, err
	}
	f.TupleType = tt
	f.Status = fragment.ActivationStatus(status)
	if reservationID != nil {
		f.ReservationID = *reservationID
	}
	return f, nil
}

// FindAvailableContainingIndex implements fragment.Repository.
func (r *Repository) FindAvailableContainingIndex(ctx context.Context, t fragment.Tx, chunkID uuid.UUID, index int64) (fragment.Fragment, bool, error) {
	row := unwrap(t).QueryRow(ctx, `
		SELECT id, tuple_chunk_id, tuple_type, start_index, end_index, activation_status, reservation_id
		FROM fragment
		WHERE tuple_chunk_id = $1 AND activation_status = 'UNLOCKED' AND reservation_id IS NULL
		  AND start_index <= $2 AND end_index > $2
		ORDER BY start_index DESC, id ASC
		LIMIT 1`, chunkID, index)

	f, err := scanFragment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fragment.Fragment{}, false, nil
	}
	if err != nil {
		return fragment.Fragment{}, false, castorerr.Wrap(castorerr.TransportFailure, "find available containing index", err)
	}
	return f, true, nil
}

// FindAnyAvailableOfType implements fragment.Repository.
func (r *Repository) FindAnyAvailableOfType(ctx context.Context, t fragment.Tx, tt tupletype.TupleType, excludeIDs []int64) (fragment.Fragment, bool, error) {
	// a nil slice is sent as NULL, which would make the NOT ANY filter
	// exclude every row; an empty array excludes none.
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	row := unwrap(t).QueryRow(ctx, `
		SELECT id, tuple_chunk_id, tuple_type, start_index, end_index, activation_status, reservation_id
		FROM fragment
		WHERE tuple_type = $1 AND activation_status = 'UNLOCKED' AND reservation_id IS NULL
		  AND NOT (id = ANY($2))
		ORDER BY id ASC
		LIMIT 1`, tt.String(), excludeIDs)

	f, err := scanFragment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return fragment.Fragment{}, false, nil
	}
	if err != nil {
		return fragment.Fragment{}, false, castorerr.Wrap(castorerr.TransportFailure, "find any available of type", err)
	}
	return f, true, nil
}

// AvailableTupleCount implements fragment.Repository. It deliberately runs
// outside any transaction started by WithTx (spec §9: acceptable
// staleness, createReservation re-checks inside its own transaction).
func (r *Repository) AvailableTupleCount(ctx context.Context, tt tupletype.TupleType) (int64, error) {
	var total *int64
	err := r.pool.QueryRow(ctx, `
		SELECT SUM(end_index - start_index)
		FROM fragment
		WHERE tuple_type = $1 AND activation_status = 'UNLOCKED' AND reservation_id IS NULL`,
		tt.String()).Scan(&total)
	if err != nil {
		return 0, castorerr.Wrap(castorerr.TransportFailure, "available tuple count", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// SplitBefore implements fragment.Repository.
func (r *Repository) SplitBefore(ctx context.Context, t fragment.Tx, f fragment.Fragment, atIndex int64) (fragment.Fragment, error) {
	if !(f.StartIndex < atIndex && atIndex < f.EndIndex) {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "splitBefore: atIndex out of range")
	}

	if _, err := unwrap(t).Exec(ctx, `UPDATE fragment SET end_index = $1 WHERE id = $2`, atIndex, f.ID); err != nil {
		return fragment.Fragment{}, castorerr.Wrap(castorerr.TransportFailure, "splitBefore: shrink lower", err)
	}

	upper := f
	upper.StartIndex = atIndex
	return r.insertSplit(ctx, t, upper)
}

// SplitAt implements fragment.Repository.
func (r *Repository) SplitAt(ctx context.Context, t fragment.Tx, f fragment.Fragment, atIndex int64) (fragment.Fragment, error) {
	if !(f.StartIndex < atIndex && atIndex < f.EndIndex) {
		return fragment.Fragment{}, castorerr.New(castorerr.Conflict, "splitAt: atIndex out of range")
	}

	lower := f
	lower.EndIndex = atIndex

	if _, err := unwrap(t).Exec(ctx, `UPDATE fragment SET end_index = $1 WHERE id = $2`, atIndex, f.ID); err != nil {
		return fragment.Fragment{}, castorerr.Wrap(castorerr.TransportFailure, "splitAt: shrink lower", err)
	}

	upper := f
	upper.StartIndex = atIndex
	if _, err := r.insertSplit(ctx, t, upper); err != nil {
		return fragment.Fragment{}, err
	}
	return lower, nil
}

func (r *Repository) insertSplit(ctx context.Context, t fragment.Tx, f fragment.Fragment) (fragment.Fragment, error) {
	err := unwrap(t).QueryRow(ctx, `
		INSERT INTO fragment (tuple_chunk_id, tuple_type, start_index, end_index, activation_status, reservation_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id`,
		f.ChunkID, f.TupleType.String(), f.StartIndex, f.EndIndex, string(f.Status), f.ReservationID,
	).Scan(&f.ID)
	if err != nil {
		return fragment.Fragment{}, castorerr.Wrap(castorerr.TransportFailure, "insert split fragment", err)
	}
	return f, nil
}

// Update implements fragment.Repository.
func (r *Repository) Update(ctx context.Context, t fragment.Tx, f fragment.Fragment) error {
	tag, err := unwrap(t).Exec(ctx, `
		UPDATE fragment
		SET activation_status = $1, reservation_id = NULLIF($2, '')
		WHERE id = $3`, string(f.Status), f.ReservationID, f.ID)
	if err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "update fragment", err)
	}
	if tag.RowsAffected() == 0 {
		return castorerr.New(castorerr.Conflict, "update: fragment no longer exists")
	}
	return nil
}

// ActivateAllForChunk implements fragment.Repository.
func (r *Repository) ActivateAllForChunk(ctx context.Context, t fragment.Tx, chunkID uuid.UUID) (int64, error) {
	tag, err := unwrap(t).Exec(ctx, `
		UPDATE fragment SET activation_status = 'UNLOCKED'
		WHERE tuple_chunk_id = $1 AND activation_status = 'LOCKED'`, chunkID)
	if err != nil {
		return 0, castorerr.Wrap(castorerr.TransportFailure, "activate all for chunk", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByReservationID implements fragment.Repository.
func (r *Repository) DeleteByReservationID(ctx context.Context, t fragment.Tx, reservationID string) error {
	if _, err := unwrap(t).Exec(ctx, `DELETE FROM fragment WHERE reservation_id = $1`, reservationID); err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "delete by reservation id", err)
	}
	return nil
}

// IsChunkReferenced implements fragment.Repository.
func (r *Repository) IsChunkReferenced(ctx context.Context, t fragment.Tx, chunkID uuid.UUID) (bool, error) {
	var exists bool
	err := unwrap(t).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM fragment WHERE tuple_chunk_id = $1)`, chunkID).Scan(&exists)
	if err != nil {
		return false, castorerr.Wrap(castorerr.TransportFailure, "is chunk referenced", err)
	}
	return exists, nil
}
