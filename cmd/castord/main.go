// Package main implements castord, the Castor tuple reservation and
// fragment store process. It wires the fragment repository, reservation
// cache, consumption counter, and replication transport per the loaded
// configuration, exposes the internal replication endpoints a master
// uses to reach its slaves, and handles graceful shutdown the standard
// way: start the HTTP server in a goroutine, wait on SIGINT/SIGTERM, then
// Shutdown with a bounded timeout.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/HRI-EU/castor/internal/chunkintake"
	"github.com/HRI-EU/castor/internal/config"
	"github.com/HRI-EU/castor/internal/consumption"
	"github.com/HRI-EU/castor/internal/consumption/rediscounter"
	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/fragment/pgrepo"
	"github.com/HRI-EU/castor/internal/fragmentstore"
	"github.com/HRI-EU/castor/internal/replication"
	"github.com/HRI-EU/castor/internal/reservation"
	"github.com/HRI-EU/castor/internal/reservation/rediscache"
	"github.com/HRI-EU/castor/internal/reservationsvc"
	"github.com/HRI-EU/castor/internal/tupletype"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	var repo fragment.Repository = pgrepo.New(pool)
	var cache reservation.Cache = rediscache.New(redisClient, cfg.ReservationStore)
	var counter consumption.Counter = rediscounter.New(redisClient, cfg.ConsumptionStorePrefix)
	transport := replication.NewHTTPTransport(cfg.ServerHeartbeat)

	store := fragmentstore.New(repo)
	svc := reservationsvc.New(store, cache, counter, transport, reservationsvc.Config{
		Master:           cfg.Master,
		SlaveURIs:        cfg.SlaveURIs,
		BucketWidth:      cfg.TelemetryInterval,
		BucketRetention:  cfg.TelemetryTTL,
		SlaveWaitTimeout: cfg.SlaveWaitForReservationTimeout,
		SlaveRetryDelay:  cfg.SlaveRetryDelay,
	})
	intake := chunkintake.New(store)

	srv := newServer(svc, intake)

	mux := http.NewServeMux()
	mux.HandleFunc("/internal/apply", srv.handleApply)
	mux.HandleFunc("/internal/activate", srv.handleActivate)
	mux.HandleFunc("/internal/release", srv.handleRelease)
	mux.HandleFunc("/internal/chunk/intake", srv.handleChunkIntake)
	mux.HandleFunc("/internal/chunk/acknowledge", srv.handleChunkAcknowledge)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("castord listening on %s (master=%v)", cfg.ListenAddr, cfg.Master)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Println("castord stopped")
}

// server adapts reservationsvc.Service and chunkintake.Service to the
// internal replication HTTP surface a master uses to reach its slaves.
type server struct {
	svc    *reservationsvc.Service
	intake *chunkintake.Service
}

func newServer(svc *reservationsvc.Service, intake *chunkintake.Service) *server {
	return &server{svc: svc, intake: intake}
}

func (s *server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req replication.ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if err := s.svc.ApplyReservation(r.Context(), req.Reservation); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req replication.ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if err := s.svc.Activate(r.Context(), req.ReservationID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req replication.ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if err := s.svc.Release(r.Context(), req.ReservationID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chunkIntakeRequest struct {
	ChunkID        uuid.UUID           `json:"chunkId"`
	TupleType      tupletype.TupleType `json:"tupleType"`
	NumberOfTuples int64               `json:"numberOfTuples"`
}

func (s *server) handleChunkIntake(w http.ResponseWriter, r *http.Request) {
	var req chunkIntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if _, err := s.intake.Intake(r.Context(), req.ChunkID, req.TupleType, req.NumberOfTuples); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chunkAcknowledgeRequest struct {
	ChunkID uuid.UUID `json:"chunkId"`
}

func (s *server) handleChunkAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req chunkAcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if _, err := s.intake.Acknowledge(r.Context(), req.ChunkID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
