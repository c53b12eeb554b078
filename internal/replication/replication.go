// Package replication propagates a master's reservation decisions to its
// slaves over HTTP/JSON, adapted directly from the PostJSON/GetJSON
// helpers the teacher uses for coordinator-to-node communication: a
// shared timeout-bounded client, context-based cancellation, and a
// non-2xx status treated as a transport failure.
package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/HRI-EU/castor/internal/castorerr"
	"github.com/HRI-EU/castor/internal/reservation"
)

// ApplyRequest tells a slave to record a reservation verbatim, bypassing
// the allocation algorithm the master already ran.
type ApplyRequest struct {
	Reservation reservation.Reservation `json:"reservation"`
}

// ActivateRequest tells a slave to transition a reservation's cache
// status from LOCKED to UNLOCKED, mirroring the master's own activation
// once every slave has acknowledged applying the reservation.
type ActivateRequest struct {
	ReservationID string `json:"reservationId"`
}

// ReleaseRequest tells a slave to drop a reservation's fragments.
type ReleaseRequest struct {
	ReservationID string `json:"reservationId"`
}

// Transport is what the master-side reservation service uses to reach
// each configured slave. A real deployment uses HTTPTransport; tests use
// an in-memory fake that calls straight into a slave's service methods.
type Transport interface {
	Apply(ctx context.Context, slaveURI string, req ApplyRequest) error
	Activate(ctx context.Context, slaveURI string, req ActivateRequest) error
	Release(ctx context.Context, slaveURI string, req ReleaseRequest) error
}

// HTTPTransport is the production Transport, POSTing JSON bodies to fixed
// slave-side endpoints.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns an HTTPTransport whose requests are bounded by
// timeout, the same pattern as the teacher's package-level httpClient.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) postJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "marshal replication request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "build replication request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return castorerr.Wrap(castorerr.TransportFailure, "send replication request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return castorerr.New(castorerr.TransportFailure, fmt.Sprintf("replication http %s: status %d", url, resp.StatusCode))
	}
	return nil
}

// Apply implements Transport.
func (t *HTTPTransport) Apply(ctx context.Context, slaveURI string, req ApplyRequest) error {
	return t.postJSON(ctx, slaveURI+"/internal/apply", req)
}

// Activate implements Transport.
func (t *HTTPTransport) Activate(ctx context.Context, slaveURI string, req ActivateRequest) error {
	return t.postJSON(ctx, slaveURI+"/internal/activate", req)
}

// Release implements Transport.
func (t *HTTPTransport) Release(ctx context.Context, slaveURI string, req ReleaseRequest) error {
	return t.postJSON(ctx, slaveURI+"/internal/release", req)
}
