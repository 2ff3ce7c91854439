package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// healthStore is what the health endpoint reads. store.Store implements it.
type healthStore interface {
	Ping(ctx context.Context) error
	LastBeat(ctx context.Context, source, service string) (int64, bool, error)
}

type beatStatus struct {
	LastTS     int64   `json:"last_ts,omitempty"`
	AgeSeconds float64 `json:"age_seconds,omitempty"`
	Status     string  `json:"status"`
}

type healthReport struct {
	Status     string                `json:"status"`
	Database   map[string]string     `json:"database"`
	Heartbeats map[string]beatStatus `json:"heartbeats"`
}

// newHealthHandler serves GET /health: database reachability and the age of
// each service's last heartbeat. A down database answers 503; a service that
// never beat marks the report degraded.
func newHealthHandler(st healthStore, source string, services []string, logger *slog.Logger) http.Handler {
	return healthMux(st, source, services, logger, time.Now)
}

func healthMux(st healthStore, source string, services []string, logger *slog.Logger, now func() time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := healthReport{
			Status:     "healthy",
			Database:   map[string]string{"status": "connected"},
			Heartbeats: make(map[string]beatStatus, len(services)),
		}

		if err := st.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Database = map[string]string{"status": "disconnected", "error": err.Error()}
		} else {
			for _, svc := range services {
				ts, ok, err := st.LastBeat(ctx, source, svc)
				switch {
				case err != nil:
					logger.Warn("failed to read heartbeat", "service", svc, "error", err)
					report.Heartbeats[svc] = beatStatus{Status: "unknown"}
					report.Status = "degraded"
				case !ok:
					report.Heartbeats[svc] = beatStatus{Status: "missing"}
					report.Status = "degraded"
				default:
					report.Heartbeats[svc] = beatStatus{
						LastTS:     ts,
						AgeSeconds: now().Sub(time.UnixMilli(ts)).Seconds(),
						Status:     "ok",
					}
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if report.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})

	return mux
}
