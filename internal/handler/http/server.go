package http

import (
	"SLINK-Backend/internal/config"
	"SLINK-Backend/internal/repository"
	"SLINK-Backend/internal/service"
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Version версия API, отдается в health checks
const Version = "1.0.0"

// Server HTTP сервер с обработчиками
type Server struct {
	linksHandler  *LinksHandler
	healthHandler *HealthHandler
	limiter       *ipRateLimiter
	log           *zap.Logger
}

// NewServer создает новый HTTP сервер
func NewServer(
	links *service.LinkService,
	storage repository.Storage,
	checks map[string]Check,
	rateLimit config.RateLimit,
	log *zap.Logger,
) *Server {
	return &Server{
		linksHandler:  NewLinksHandler(links, storage, log),
		healthHandler: NewHealthHandler(checks, Version, log),
		limiter:       newIPRateLimiter(rateLimit, log),
		log:           log,
	}
}

// StartBackground запускает фоновую очистку rate limiter до отмены ctx
func (s *Server) StartBackground(ctx context.Context) {
	s.limiter.StartJanitor(ctx)
}

// SetupRoutes настраивает маршруты
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Health checks и метрики (без лимитов)
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Swagger документация
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// Links API
	mux.HandleFunc("POST /api/links", s.api(s.linksHandler.CreateLink))
	mux.HandleFunc("GET /api/links", s.api(s.linksHandler.ListLinks))
	mux.HandleFunc("POST /api/links/bulk", s.api(s.linksHandler.BulkCreateLinks))
	mux.HandleFunc("GET /api/links/count", s.api(s.linksHandler.CountLinks))
	mux.HandleFunc("GET /api/links/{id}", s.api(s.linksHandler.GetLink))
	mux.HandleFunc("PATCH /api/links/{id}", s.api(s.linksHandler.EditLink))
	mux.HandleFunc("DELETE /api/links/{id}", s.api(s.linksHandler.DeleteLink))
	mux.HandleFunc("POST /api/links/{id}/archive", s.api(s.linksHandler.ArchiveLink))
	mux.HandleFunc("POST /api/links/{id}/transfer", s.api(s.linksHandler.TransferLink))
	mux.HandleFunc("POST /api/links/{id}/sync", s.api(s.linksHandler.SyncLink))

	// Preflight запросы для всего API
	mux.HandleFunc("OPTIONS /api/", withCORS(func(w http.ResponseWriter, r *http.Request) {}))

	return withMetrics(mux)
}

// api оборачивает обработчик API в CORS и rate limit
func (s *Server) api(handler http.HandlerFunc) http.HandlerFunc {
	return withCORS(s.limiter.Wrap(handler))
}
