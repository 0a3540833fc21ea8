package handlers

import (
	"net/http"
	"time"

	"github.com/hongminglow/youfin-be/internal/http/respond"
)

// HealthHandler returns uptime and basic status.
type HealthHandler struct {
	startedAt   time.Time
	environment string
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, environment string) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, environment: environment}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handle)
	mux.HandleFunc("GET /api/health", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, "ok", map[string]string{
		"status":      "ok",
		"environment": h.environment,
		"uptime":      time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
