package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pendingAlert is the backlog size reported as an error.
const pendingAlert = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	ChangesRelayed    uint64    `json:"changes_relayed"`
	PendingChanges    int64     `json:"pending_changes"`
	LastChangeTime    time.Time `json:"last_change_time"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	RelayActive       bool      `json:"relay_active"`
	Errors            []string  `json:"errors"`
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type readier interface {
	Ready() bool
}

type HealthChecker struct {
	relay     *Relay
	db        Pinger
	clock     clockwork.Clock
	threshold time.Duration
}

// NewHealthChecker reports the relay unhealthy when changes are pending and
// nothing has gone out for threshold.
func NewHealthChecker(relay *Relay, db Pinger, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		db:        db,
		clock:     relay.clock,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Errors: []string{}}
	status.ChangesRelayed, status.LastChangeTime = h.relay.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	status.NATSConnected = true
	if r, ok := h.relay.publisher.(readier); ok && !r.Ready() {
		status.NATSConnected = false
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	status.RelayActive = h.relay.Running()
	if !status.RelayActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "relay not active")
	}

	if status.DatabaseConnected {
		pending, err := h.relay.source.CountPendingChanges(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending changes: %v", err))
		} else {
			status.PendingChanges = pending
			if pending > pendingAlert {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending change count: %d", pending))
			}
		}
	}

	if status.PendingChanges > 0 && !status.LastChangeTime.IsZero() {
		if since := h.clock.Since(status.LastChangeTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no changes relayed for %s", since))
		}
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
