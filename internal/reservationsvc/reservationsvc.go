// Package reservationsvc composes the fragment store, reservation cache,
// consumption counter, and replication transport into the end-to-end
// reservation lifecycle: create, replicate, apply, activate, release. A
// process-wide stateless singleton constructed once at startup from its
// collaborators, with no dependency-injection container involved.
package reservationsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/consumption"
	"github.com/HRI-EU/castor/internal/fragmentstore"
	"github.com/HRI-EU/castor/internal/replication"
	"github.com/HRI-EU/castor/internal/reservation"
	"github.com/HRI-EU/castor/internal/retrypolicy"
	"github.com/HRI-EU/castor/internal/tupletype"
)

// Clock abstracts time.Now so tests can control bucket assignment; in
// production it is time.Now.
type Clock func() time.Time

// Service is the reservation service. One instance runs per Castor
// process, in either master or slave role.
type Service struct {
	store     *fragmentstore.Service
	cache     reservation.Cache
	counter   consumption.Counter
	transport replication.Transport
	now       Clock

	master bool
	slaves []string

	bucketWidth     time.Duration
	bucketRetention time.Duration

	slaveWaitTimeout time.Duration
	slaveRetryDelay  time.Duration
}

// Config bundles the constructor parameters that come from the process's
// loaded configuration, rather than its collaborators.
type Config struct {
	Master           bool
	SlaveURIs        []string
	BucketWidth      time.Duration
	BucketRetention  time.Duration
	SlaveWaitTimeout time.Duration
	SlaveRetryDelay  time.Duration
}

// New constructs a Service from its collaborators and configuration.
func New(store *fragmentstore.Service, cache reservation.Cache, counter consumption.Counter, transport replication.Transport, cfg Config) *Service {
	return &Service{
		store:            store,
		cache:            cache,
		counter:          counter,
		transport:        transport,
		now:              time.Now,
		master:           cfg.Master,
		slaves:           cfg.SlaveURIs,
		bucketWidth:      cfg.BucketWidth,
		bucketRetention:  cfg.BucketRetention,
		slaveWaitTimeout: cfg.SlaveWaitTimeout,
		slaveRetryDelay:  cfg.SlaveRetryDelay,
	}
}

// WithClock overrides the service's time source; used by tests that need
// deterministic bucket assignment.
func (s *Service) WithClock(clock Clock) *Service {
	s.now = clock
	return s
}

// CreateReservation selects fragments covering count tuples of type t and
// locks them into a new reservation. It is master-only: slaves never
// select, they only replay.
func (s *Service) CreateReservation(ctx context.Context, requestID string, t tupletype.TupleType, count int64) (reservation.Reservation, error) {
	if !s.master {
		return reservation.Reservation{}, castorerr.New(castorerr.Conflict, "createReservation is master-only")
	}
	if count <= 0 {
		return reservation.Reservation{}, castorerr.New(castorerr.Conflict, "count must be positive")
	}

	available, err := s.store.AvailableTupleCount(ctx, t)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if available < count {
		return reservation.Reservation{}, castorerr.Shortfall(castorerr.InsufficientTuples, t.String(), count, available)
	}

	elements, err := s.store.SelectElements(ctx, t, count)
	if err != nil {
		return reservation.Reservation{}, err
	}

	r := reservation.Reservation{
		ID:            fmt.Sprintf("%s_%s", requestID, t.String()),
		TupleType:     t,
		Status:        reservation.StatusLocked,
		Elements:      elements,
		SchemaVersion: reservation.CurrentSchemaVersion,
	}

	ok, err := s.cache.Put(ctx, r)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if !ok {
		return reservation.Reservation{}, castorerr.New(castorerr.ReservationConflict, "reservation id already exists")
	}

	if err := s.commitLocally(ctx, r); err != nil {
		// Delete the cache entry explicitly on every failure path so a
		// reservation never sits visible in the cache without backing
		// fragments.
		_ = s.cache.Delete(ctx, r.ID)
		return reservation.Reservation{}, err
	}

	for _, slaveURI := range s.slaves {
		if err := s.transport.Apply(ctx, slaveURI, replication.ApplyRequest{Reservation: r}); err != nil {
			_ = s.cache.Delete(ctx, r.ID)
			return reservation.Reservation{}, castorerr.Wrap(castorerr.TransportFailure, "replicate reservation to slave "+slaveURI, err)
		}
	}

	return r, nil
}

// ApplyReservation implements spec §4.4's applyReservation, shared by
// master and slave. On the slave it first waits, bounded, for the
// referenced chunks to exist locally (spec §5, "Slave wait").
func (s *Service) ApplyReservation(ctx context.Context, r reservation.Reservation) error {
	if !s.master {
		for _, element := range r.Elements {
			chunkID := element.ChunkID
			err := retrypolicy.BoundedWait(ctx, s.slaveWaitTimeout, s.slaveRetryDelay, func(ctx context.Context) error {
				referenced, err := s.store.IsChunkReferenced(ctx, chunkID)
				if err != nil {
					return err
				}
				if !referenced {
					return castorerr.New(castorerr.ChunkNotYetAvailable, "chunk not yet available")
				}
				return nil
			})
			if err != nil {
				if castorerr.Is(err, castorerr.ChunkNotYetAvailable) {
					return err
				}
				return castorerr.Wrap(castorerr.ChunkNotYetAvailable, "waiting for chunk "+chunkID.String(), err)
			}
		}

		if err := s.commitLocally(ctx, r); err != nil {
			return err
		}

		local := r
		local.Status = reservation.StatusLocked
		if _, err := s.cache.Put(ctx, local); err != nil {
			return err
		}
		return nil
	}
	return s.commitLocally(ctx, r)
}

// commitLocally runs the split-on-reserve algorithm for every element of r
// and then records the consumed tuple count. The counter write is not part
// of the fragment-store transaction, and a failed counter write is ignored.
func (s *Service) commitLocally(ctx context.Context, r reservation.Reservation) error {
	if err := s.store.ApplyReservation(ctx, r); err != nil {
		return err
	}

	bucket := consumption.BucketIndex(s.now().UnixMilli(), s.bucketWidth.Milliseconds())
	if err := s.counter.Record(ctx, consumption.BucketKey{TupleType: r.TupleType, Index: bucket}, r.TupleCount(), s.bucketRetention); err != nil {
		// The counter is strictly advisory (spec §4.3); losing a bucket
		// write is not a correctness issue for the reservation itself.
		return nil
	}
	return nil
}

// Activate implements spec §4.4's activate: status -> UNLOCKED in the
// cache, replicated to every slave on the master.
func (s *Service) Activate(ctx context.Context, id string) error {
	ok, err := s.cache.UpdateStatus(ctx, id, reservation.StatusUnlocked)
	if err != nil {
		return err
	}
	if !ok {
		return castorerr.New(castorerr.NoSuchReservation, "no reservation with that id")
	}

	if s.master {
		for _, slaveURI := range s.slaves {
			if err := s.transport.Activate(ctx, slaveURI, replication.ActivateRequest{ReservationID: id}); err != nil {
				return castorerr.Wrap(castorerr.TransportFailure, "replicate activation to slave "+slaveURI, err)
			}
		}
	}
	return nil
}

// Release implements spec §4.4's release: delete fragments, then best-
// effort delete the cache entry. Both run even if the first step fails,
// since stray fragment rows are worse than a stray cache entry (which
// should never happen in normal flow). The caches set no expiry on
// reservation entries, so a stray entry stays until it is deleted.
func (s *Service) Release(ctx context.Context, id string) error {
	deleteErr := s.store.DeleteByReservationID(ctx, id)
	_ = s.cache.Delete(ctx, id)

	if s.master {
		for _, slaveURI := range s.slaves {
			if err := s.transport.Release(ctx, slaveURI, replication.ReleaseRequest{ReservationID: id}); err != nil {
				return castorerr.Wrap(castorerr.TransportFailure, "replicate release to slave "+slaveURI, err)
			}
		}
	}
	return deleteErr
}
