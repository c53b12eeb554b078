// Package memcache implements reservation.Cache in a single process map,
// guarded by a mutex, for tests and single-process deployments.
package memcache

import (
	"context"
	"sync"

	"github.com/HRI-EU/castor/internal/reservation"
)

// Cache is an in-memory reservation.Cache.
type Cache struct {
	mu    sync.Mutex
	rows  map[string]reservation.Reservation
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{rows: make(map[string]reservation.Reservation)}
}

// Put implements reservation.Cache.
func (c *Cache) Put(_ context.Context, r reservation.Reservation) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.rows[r.ID]; exists {
		return false, nil
	}
	c.rows[r.ID] = r
	return true, nil
}

// Get implements reservation.Cache.
func (c *Cache) Get(_ context.Context, id string) (reservation.Reservation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rows[id]
	return r, ok, nil
}

// UpdateStatus implements reservation.Cache.
func (c *Cache) UpdateStatus(_ context.Context, id string, status reservation.Status) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rows[id]
	if !ok {
		return false, nil
	}
	r.Status = status
	c.rows[id] = r
	return true, nil
}

// Delete implements reservation.Cache.
func (c *Cache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, id)
	return nil
}
