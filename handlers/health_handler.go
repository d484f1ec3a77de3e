package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/farbook/far-chat/utils"
)

const (
	serviceName    = "far-chat"
	serviceVersion = "1.0.0"
)

// HealthResponse is the body of both probe endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Service   string            `json:"service,omitempty"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Checker reports the health of one dependency
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	database    Checker
	vectorIndex Checker
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Either checker may be nil
// when the dependency is not configured.
func NewHealthHandler(database, vectorIndex Checker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		database:    database,
		vectorIndex: vectorIndex,
		logger:      logger,
	}
}

// HandleHealth handles GET /healthz. Liveness depends only on the process
// being up, so this always answers 200.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Version:   serviceVersion,
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz. The service is ready only when both
// the database and the vector index respond.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	dbStatus, dbHealthy := h.check(ctx, "database", h.database)
	checks["database"] = dbStatus

	indexStatus, indexHealthy := h.check(ctx, "vector_index", h.vectorIndex)
	checks["vector_index"] = indexStatus

	status, httpStatus := "healthy", http.StatusOK
	if !dbHealthy || !indexHealthy {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) check(ctx context.Context, name string, checker Checker) (string, bool) {
	if checker == nil {
		return "not_configured", true
	}
	if err := checker.HealthCheck(ctx); err != nil {
		h.logger.Warn("dependency health check failed",
			zap.String("dependency", name),
			zap.Error(err))
		return "unhealthy", false
	}
	return "healthy", true
}
