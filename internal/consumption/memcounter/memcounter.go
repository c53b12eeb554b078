// Package memcounter implements consumption.Counter in memory, for tests
// and single-process deployments. It ignores TTL since the in-memory map
// lives no longer than the test process anyway.
package memcounter

import (
	"context"
	"sync"
	"time"

	"github.com/HRI-EU/castor/internal/consumption"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Counter is an in-memory consumption.Counter.
type Counter struct {
	mu      sync.Mutex
	buckets map[consumption.BucketKey]int64
}

// New returns an empty Counter.
func New() *Counter {
	return &Counter{buckets: make(map[consumption.BucketKey]int64)}
}

// Record implements consumption.Counter.
func (c *Counter) Record(_ context.Context, key consumption.BucketKey, count int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets[key] += count
	return nil
}

// SumSince implements consumption.Counter by summing every stored bucket
// for t whose index is >= fromIndex; it never needs an upper bound since
// only buckets actually written can contribute.
func (c *Counter) SumSince(_ context.Context, t tupletype.TupleType, fromIndex int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total int64
	for key, count := range c.buckets {
		if key.TupleType == t && key.Index >= fromIndex {
			total += count
		}
	}
	return total, nil
}
