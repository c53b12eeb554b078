// Package rediscache implements reservation.Cache against Redis, the
// shared cluster-visible backend a real deployment needs so every master
// and slave node in the cluster observes the same in-flight reservations.
// It follows the SETNX-for-exclusivity / JSON-value pattern used
// throughout the pack's cache implementations (e.g. the redis cluster
// cache in the performance package retrieved alongside this spec), scaled
// down to the handful of operations reservation.Cache actually needs.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/reservation"
)

// Cache is a Redis-backed reservation.Cache. Keys are namespaced under
// prefix so several logical stores (e.g. per tuple-type telemetry) can
// share one Redis instance without colliding.
type Cache struct {
	client *redis.Client
	prefix string
}

// New returns a Cache that stores reservations under prefix+":"+id.
func New(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(id string) string {
	return fmt.Sprintf("%s:%s", c.prefix, id)
}

// Put implements reservation.Cache using SETNX so two concurrent writers
// racing to create the same reservation id never both succeed.
func (c *Cache) Put(ctx context.Context, r reservation.Reservation) (bool, error) {
	r.SchemaVersion = reservation.CurrentSchemaVersion
	data, err := json.Marshal(r)
	if err != nil {
		return false, castorerr.Wrap(castorerr.Conflict, "marshal reservation", err)
	}

	ok, err := c.client.SetNX(ctx, c.key(r.ID), data, 0).Result()
	if err != nil {
		return false, castorerr.Wrap(castorerr.TransportFailure, "redis setnx", err)
	}
	return ok, nil
}

// Get implements reservation.Cache.
func (c *Cache) Get(ctx context.Context, id string) (reservation.Reservation, bool, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err == redis.Nil {
		return reservation.Reservation{}, false, nil
	}
	if err != nil {
		return reservation.Reservation{}, false, castorerr.Wrap(castorerr.TransportFailure, "redis get", err)
	}

	var r reservation.Reservation
	if err := json.Unmarshal(data, &r); err != nil {
		return reservation.Reservation{}, false, castorerr.Wrap(castorerr.Conflict, "unmarshal reservation", err)
	}
	if r.SchemaVersion > reservation.CurrentSchemaVersion {
		return reservation.Reservation{}, false, castorerr.New(castorerr.Conflict, "reservation schema newer than this binary understands")
	}
	return r, true, nil
}

// UpdateStatus implements reservation.Cache as a read-modify-write; callers
// rely on reservation ids being effectively single-writer at a time, so no
// additional locking is needed here.
func (c *Cache) UpdateStatus(ctx context.Context, id string, status reservation.Status) (bool, error) {
	r, ok, err := c.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	r.Status = status

	data, err := json.Marshal(r)
	if err != nil {
		return false, castorerr.Wrap(castorerr.Conflict, "marshal reservation", err)
	}
	if err := c.client.Set(ctx, c.key(id), data, 0).Err(); err != nil {
		return false, castorerr.Wrap(castorerr.TransportFailure, "redis set", err)
	}
	return true, nil
}

// Delete implements reservation.Cache.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "redis del", err)
	}
	return nil
}
