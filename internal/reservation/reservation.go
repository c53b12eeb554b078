// Package reservation defines the Reservation aggregate: the set of
// fragment slices a client has been promised, keyed by a client-supplied
// reservation id, and the Cache contract that makes reservations visible
// across a master/slave cluster before the durable fragment store commit
// is even attempted.
package reservation

import (
	"context"

	"github.com/google/uuid"

	"github.com/HRI-EU/castor/internal/tupletype"
)

// Status is a reservation's lifecycle state as seen through the cache.
// There is no released state: release deletes the cache entry outright.
type Status string

const (
	// StatusLocked means the reservation was created and applied to the
	// fragment store but not yet acknowledged by every slave.
	StatusLocked Status = "LOCKED"
	// StatusUnlocked means the master has activated the reservation:
	// every node in the cluster has applied it successfully.
	StatusUnlocked Status = "UNLOCKED"
)

// Element is one contiguous slice of one chunk promised to a reservation,
// ordered the way the list defines the consumption order. A single
// reservation may span several elements if no single fragment was large
// enough to cover the whole request in one piece.
type Element struct {
	ChunkID        uuid.UUID `json:"chunkId"`
	StartIndex     int64     `json:"startIndex"`
	ReservedTuples int64     `json:"reservedTuples"`
}

// EndIndex returns the half-open range's exclusive upper bound.
func (e Element) EndIndex() int64 { return e.StartIndex + e.ReservedTuples }

// Len returns the number of tuples this element covers.
func (e Element) Len() int64 { return e.ReservedTuples }

// Reservation is the versioned record stored in the Cache. SchemaVersion
// lets the wire format evolve without breaking a rolling deployment that
// mixes old and new binaries reading the same cache.
type Reservation struct {
	ID           string              `json:"reservationId"`
	TupleType    tupletype.TupleType `json:"tupleType"`
	Status       Status              `json:"status"`
	Elements     []Element           `json:"elements"`
	SchemaVersion int                `json:"schema"`
}

// CurrentSchemaVersion is written into every Reservation this process
// creates; readers should treat any higher number as unknown and refuse to
// decode it rather than guess at a future layout.
const CurrentSchemaVersion = 1

// TupleCount returns the total number of tuples Elements covers.
func (r Reservation) TupleCount() int64 {
	var total int64
	for _, e := range r.Elements {
		total += e.Len()
	}
	return total
}

// Cache is the shared, cluster-visible store of in-flight reservations.
// It exists independently of the durable fragment store so that a
// reservation is observable immediately, before the (possibly slower)
// fragment commit completes, and so concurrent callers racing to create
// the same reservation id cannot both succeed. Two different ids selecting
// the same tuples are not detected here; the fragment store's transactional
// apply is what keeps them from both winning.
//
// Two implementations exist: memcache (in-memory, tests and
// single-process deployments) and rediscache (Redis via go-redis, the
// shared backend a real cluster needs), the same dual-backend shape as
// fragment.Repository's memrepo/pgrepo pair.
type Cache interface {
	// Put stores r under r.ID if and only if no reservation with that id
	// already exists (an atomic compare-and-set), returning ok=false
	// without error if one did. This is what makes reservation ids
	// effectively exclusive across a racing cluster.
	Put(ctx context.Context, r Reservation) (ok bool, err error)

	// Get returns the reservation stored under id, or ok=false if none
	// exists (expired, released-and-evicted, or never created).
	Get(ctx context.Context, id string) (r Reservation, ok bool, err error)

	// UpdateStatus transitions the reservation under id to status. It is
	// a no-op returning ok=false if id is not present.
	UpdateStatus(ctx context.Context, id string, status Status) (ok bool, err error)

	// Delete removes the reservation under id, if present.
	Delete(ctx context.Context, id string) error
}
