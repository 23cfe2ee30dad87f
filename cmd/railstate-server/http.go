package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/railstate-go/internal/infra/buildinfo"
	"github.com/yndnr/railstate-go/internal/state"
)

// healthTimeout bounds the store ping issued by /healthz.
const healthTimeout = 2 * time.Second

// Health statuses reported by /healthz.
const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
)

// storeView is the part of the State Store the endpoints read.
type storeView interface {
	Health() state.Health
	Ping(ctx context.Context) error
	Stats(ctx context.Context) state.Stats
}

type healthResponse struct {
	Status string `json:"status"`
	state.Health
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// newMux routes the daemon endpoints.
func newMux(st storeView, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(w, r, st, logger)
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, st.Stats(r.Context()), logger)
	})
	return recoverMiddleware(logger)(mux)
}

// handleHealth pings the routed backend. A store serving from the fallback
// is degraded but still healthy.
func handleHealth(w http.ResponseWriter, r *http.Request, st storeView, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: statusOK, Version: buildinfo.Get().Version}
	code := http.StatusOK
	if err := st.Ping(ctx); err != nil {
		resp.Status = statusUnavailable
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	}
	resp.Health = st.Health()
	if resp.Status == statusOK && resp.Degraded {
		resp.Status = statusDegraded
	}
	writeJSON(w, code, resp, logger)
}

func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func recoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					writeJSON(w, http.StatusInternalServerError, map[string]string{
						"code":    "RS-SYS-5000",
						"message": "internal server error",
					}, logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
