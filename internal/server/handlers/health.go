package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/pkg/api"
)

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger     *slog.Logger
	instanceID string
	links      LinkProvider
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, instanceID string, links LinkProvider) *HealthHandler {
	return &HealthHandler{
		logger:     logger,
		instanceID: instanceID,
		links:      links,
	}
}

// Health обрабатывает GET /api/v1/health
// Health check endpoint для мониторинга
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.links != nil && h.links.AggregateState() != models.LinkActive {
		status = "degraded"
	}

	resp := api.HealthResponse{
		Status:   status,
		Instance: h.instanceID,
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}
