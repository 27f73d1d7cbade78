package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/whack/internal/manager"
	"github.com/rickgao/whack/internal/version"
)

// pinger is satisfied by the preference database pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// componentStatus is one entry of the health report.
type componentStatus struct {
	JID       string `json:"jid"`
	ConnID    string `json:"conn_id"`
	Connected bool   `json:"connected"`
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
// db may be nil when preferences are held in memory.
func createHealthHandler(mgr *manager.Manager, db pinger, metricsHandler http.Handler, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                     `json:"status"`
			Version    version.Info               `json:"version"`
			Domain     string                     `json:"domain"`
			Pending    int                        `json:"pending"`
			Components map[string]componentStatus `json:"components"`
			Database   string                     `json:"database,omitempty"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Domain:     mgr.Domain(),
			Pending:    mgr.Stats().Pending,
			Components: make(map[string]componentStatus),
		}

		// Check components
		for _, sub := range mgr.Subdomains() {
			conn, ok := mgr.Lookup(sub)
			if !ok {
				continue
			}
			st := componentStatus{
				JID:       conn.JID().String(),
				ConnID:    conn.ID(),
				Connected: conn.IsConnected(),
			}
			if !st.Connected {
				health.Status = "degraded"
			}
			health.Components[sub] = st
		}

		// Check database
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Database = "disconnected: " + err.Error()
			} else {
				health.Database = "connected"
			}
		}

		if mgr.Closed() {
			health.Status = "unhealthy"
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	if metricsHandler != nil {
		mux.Handle(metricsPath, metricsHandler)
	}

	return mux
}
