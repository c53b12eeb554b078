// Package fragment models the tuple-availability ledger Castor keeps per
// chunk.
//
// # Overview
//
// A TupleChunk is a batch of preprocessed MPC tuples uploaded as one unit.
// Castor never tracks individual tuples; instead it tracks Fragments, each a
// half-open range [start, end) of tuple indices inside one chunk. At any
// point a chunk's indices are partitioned into covered ranges (fragments)
// and holes (consumed-and-released, permanently lost) — coverage is never
// required to be total.
//
//	chunk 3fd7...  [0                                   numberOfTuples)
//	fragments:     [0,42) avail  [42,63) R1  [63,99) avail   ... hole ...
//
// # Invariants
//
//   - Non-overlap: two fragments of the same chunk never share an index.
//   - Half-open, non-empty: StartIndex < EndIndex always.
//   - Availability: Status == UNLOCKED && ReservationID == "".
//
// These are enforced by the Repository (Keep's atomic overlap check) and by
// fragmentstore.Service (the split-on-reserve algorithm, which only ever
// replaces one row [a,c) with two rows [a,b) + [b,c)).
package fragment
