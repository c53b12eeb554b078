package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRI-EU/castor/internal/chunkintake"
	"github.com/HRI-EU/castor/internal/consumption/memcounter"
	"github.com/HRI-EU/castor/internal/fragment"
	"github.com/HRI-EU/castor/internal/fragment/memrepo"
	"github.com/HRI-EU/castor/internal/fragmentstore"
	"github.com/HRI-EU/castor/internal/replication"
	"github.com/HRI-EU/castor/internal/reservation"
	"github.com/HRI-EU/castor/internal/reservation/memcache"
	"github.com/HRI-EU/castor/internal/reservationsvc"
	"github.com/HRI-EU/castor/internal/tupletype"
)

func newTestServer() (*server, *memrepo.Repository) {
	repo := memrepo.New()
	store := fragmentstore.New(repo)
	svc := reservationsvc.New(store, memcache.New(), memcounter.New(), nil, reservationsvc.Config{Master: true})
	return newServer(svc, chunkintake.New(store)), repo
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data)).WithContext(context.Background())
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleChunkIntakeThenAcknowledge(t *testing.T) {
	srv, repo := newTestServer()
	chunkID := uuid.New()

	rec := postJSON(t, srv.handleChunkIntake, chunkIntakeRequest{
		ChunkID:        chunkID,
		TupleType:      tupletype.MultiplicationTripleGFP,
		NumberOfTuples: 100,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, repo.Snapshot(), 1)
	assert.Equal(t, fragment.Locked, repo.Snapshot()[0].Status)

	rec = postJSON(t, srv.handleChunkAcknowledge, chunkAcknowledgeRequest{ChunkID: chunkID})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, fragment.Unlocked, repo.Snapshot()[0].Status)
}

func TestHandleApplyRejectsUnsatisfiableReservation(t *testing.T) {
	srv, _ := newTestServer()

	rec := postJSON(t, srv.handleApply, replication.ApplyRequest{
		Reservation: reservation.Reservation{
			ID:        "R1",
			TupleType: tupletype.MultiplicationTripleGFP,
			Elements: []reservation.Element{
				{ChunkID: uuid.New(), StartIndex: 0, ReservedTuples: 10},
			},
		},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleActivateUnknownReservation(t *testing.T) {
	srv, _ := newTestServer()

	rec := postJSON(t, srv.handleActivate, replication.ActivateRequest{ReservationID: "nope"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleBadJSONReturns400(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not json"))).WithContext(context.Background())
	rec := httptest.NewRecorder()
	srv.handleRelease(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
