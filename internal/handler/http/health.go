package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Check проверка доступности зависимости (PostgreSQL, Redis)
type Check func(ctx context.Context) error

// HealthHandler обработчик health checks
type HealthHandler struct {
	checks  map[string]Check
	version string
	log     *zap.Logger
}

// NewHealthHandler создает новый health handler
func NewHealthHandler(checks map[string]Check, version string, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		log:     log,
	}
}

// HealthResponse структура ответа health check
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Uptime       string            `json:"uptime,omitempty"`
}

var startTime = time.Now()

// Health liveness probe: процесс жив и отвечает
//
//	@Summary	Liveness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}, http.StatusOK)
}

// Ready readiness probe: проверяет все зависимости
//
//	@Summary	Readiness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ready"
	statusCode := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Error("readiness check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = "unhealthy"
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	writeJSON(w, HealthResponse{
		Status:       status,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: deps,
		Uptime:       time.Since(startTime).String(),
	}, statusCode)
}
