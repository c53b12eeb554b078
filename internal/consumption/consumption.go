// Package consumption tracks how many tuples of each type have been
// consumed (counted when a reservation is applied to the fragment store) over time, in
// fixed-width buckets, so operators can see demand trends without storing
// one row per tuple (spec §6, TelemetryInterval/TelemetryTTL).
package consumption

import (
	"context"
	"time"

	"github.com/HRI-EU/castor/internal/tupletype"
)

// BucketKey identifies one fixed-width time bucket for one tuple type.
// Index is floor(unixMillis / bucketWidthMillis); two timestamps in the
// same bucket always produce the same BucketKey.
type BucketKey struct {
	TupleType tupletype.TupleType
	Index     int64
}

// BucketIndex returns the bucket index a timestamp (Unix millis) falls
// into for a bucket of the given width.
func BucketIndex(unixMillis int64, bucketWidthMillis int64) int64 {
	if bucketWidthMillis <= 0 {
		return 0
	}
	return unixMillis / bucketWidthMillis
}

// Counter records tuple consumption and answers windowed sum queries. Two
// implementations exist: memcounter (in-memory, tests) and rediscounter
// (Redis INCRBY + EXPIRE, the production backend), the same dual-backend
// shape as fragment.Repository and reservation.Cache.
type Counter interface {
	// Record adds count to the bucket key identifies. Implementations
	// must set (or refresh) the bucket's TTL so buckets older than the
	// retention window are reclaimed automatically.
	Record(ctx context.Context, key BucketKey, count int64, ttl time.Duration) error

	// SumSince returns the total recorded for t across every bucket whose
	// index is >= fromIndex. Pass the lowest representable index (0, or
	// any value at or below the oldest bucket that could still exist
	// given the configured retention) to sum the entire window.
	SumSince(ctx context.Context, t tupletype.TupleType, fromIndex int64) (int64, error)
}
