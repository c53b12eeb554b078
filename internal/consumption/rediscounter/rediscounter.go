// Package rediscounter implements consumption.Counter against Redis using
// INCRBY for accumulation and EXPIRE for retention, so the TelemetryTTL
// configured at the process level is enforced by Redis itself rather than
// by a sweep goroutine.
package rediscounter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/consumption"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Counter is a Redis-backed consumption.Counter.
type Counter struct {
	client *redis.Client
	prefix string
}

// New returns a Counter whose keys are namespaced under prefix.
func New(client *redis.Client, prefix string) *Counter {
	return &Counter{client: client, prefix: prefix}
}

func (c *Counter) key(key consumption.BucketKey) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, key.TupleType.String(), key.Index)
}

// Record implements consumption.Counter. It pipelines INCRBY and EXPIRE so
// the bucket's TTL is refreshed on every write without a second round trip.
func (c *Counter) Record(ctx context.Context, key consumption.BucketKey, count int64, ttl time.Duration) error {
	k := c.key(key)
	pipe := c.client.Pipeline()
	pipe.IncrBy(ctx, k, count)
	if ttl > 0 {
		pipe.Expire(ctx, k, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "redis incrby/expire", err)
	}
	return nil
}

// SumSince implements consumption.Counter. It SCANs the key space for t
// (bounded buckets expire via EXPIRE, so the space stays small) and MGETs
// every bucket whose index is >= fromIndex; buckets that expired between
// the scan and the fetch simply read back as zero.
func (c *Counter) SumSince(ctx context.Context, t tupletype.TupleType, fromIndex int64) (int64, error) {
	pattern := fmt.Sprintf("%s:%s:*", c.prefix, t.String())

	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return 0, castorerr.Wrap(castorerr.TransportFailure, "redis scan", err)
		}
		for _, k := range batch {
			idx, ok := indexFromKey(k)
			if ok && idx >= fromIndex {
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, castorerr.Wrap(castorerr.TransportFailure, "redis mget", err)
	}

	var total int64
	for _, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n int64
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			total += n
		}
	}
	return total, nil
}

// indexFromKey extracts the trailing bucket index from a key built by
// Counter.key ("prefix:tupleType:index").
func indexFromKey(key string) (int64, bool) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return 0, false
	}
	var idx int64
	if _, err := fmt.Sscanf(key[i+1:], "%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}
