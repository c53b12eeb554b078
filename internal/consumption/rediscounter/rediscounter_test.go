package rediscounter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRI-EU/castor/internal/consumption"
	"github.com/HRI-EU/castor/internal/tupletype"
)

func newTestCounter(t *testing.T) (*Counter, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "consumption"), server
}

func TestRecordIncrementsAndSetsTTL(t *testing.T) {
	c, server := newTestCounter(t)
	ctx := context.Background()
	key := consumption.BucketKey{TupleType: tupletype.MultiplicationTripleGFP, Index: 7}

	require.NoError(t, c.Record(ctx, key, 5, time.Hour))
	require.NoError(t, c.Record(ctx, key, 3, time.Hour))

	total, err := c.SumSince(ctx, key.TupleType, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 8, total)

	ttl := server.TTL(c.key(key))
	assert.Greater(t, ttl, time.Duration(0))
}

func TestSumSinceAcrossBucketsAndMissingRanges(t *testing.T) {
	c, _ := newTestCounter(t)
	ctx := context.Background()
	tt := tupletype.BitGF2N

	require.NoError(t, c.Record(ctx, consumption.BucketKey{TupleType: tt, Index: 1}, 10, time.Hour))
	require.NoError(t, c.Record(ctx, consumption.BucketKey{TupleType: tt, Index: 3}, 20, time.Hour))

	total, err := c.SumSince(ctx, tt, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 30, total, "bucket 2 was never written and should count as zero")
}

func TestSumSinceExcludesBucketsBeforeFromIndex(t *testing.T) {
	c, _ := newTestCounter(t)
	ctx := context.Background()
	tt := tupletype.BitGFP

	require.NoError(t, c.Record(ctx, consumption.BucketKey{TupleType: tt, Index: 1}, 10, time.Hour))
	require.NoError(t, c.Record(ctx, consumption.BucketKey{TupleType: tt, Index: 5}, 20, time.Hour))

	total, err := c.SumSince(ctx, tt, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 20, total, "bucket 1 predates fromIndex and must not count")
}

func TestSumSinceEmptyIsZero(t *testing.T) {
	c, _ := newTestCounter(t)
	total, err := c.SumSince(context.Background(), tupletype.BitGFP, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}
