package http

import (
	"SLINK-Backend/internal/config"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// statusRecorder запоминает код ответа для метрик
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withMetrics записывает prometheus метрики по каждому запросу.
// В качестве route используется шаблон маршрута ServeMux, а не сырой путь.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// ipRateLimiter ограничивает частоту запросов для каждого IP отдельно.
// Неактивные записи удаляются через idleTTL.
type ipRateLimiter struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	trustProxy   bool
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	log          *zap.Logger
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(cfg config.RateLimit, log *zap.Logger) *ipRateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 15 * time.Minute
	}
	return &ipRateLimiter{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(cfg.RPS),
		burst:        burst,
		trustProxy:   cfg.TrustXFF,
		idleTTL:      idleTTL,
		cleanupEvery: cfg.CleanupEvery,
		now:          time.Now,
		log:          log,
	}
}

func (l *ipRateLimiter) limiter(ip string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if ent, ok := l.entries[ip]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[ip] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup удаляет лимитеры, не использованные дольше idleTTL
func (l *ipRateLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
		}
	}
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartJanitor периодически вызывает Cleanup, пока ctx не отменен
func (l *ipRateLimiter) StartJanitor(ctx context.Context) {
	if l == nil || l.rps <= 0 || l.cleanupEvery <= 0 {
		return
	}
	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// Wrap применяет лимит к обработчику. Нулевой rps отключает ограничение.
func (l *ipRateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil || l.rps <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ip := extractIPAddress(r, l.trustProxy)
		if !l.limiter(ip).Allow() {
			l.log.Debug("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "1")
			writeError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// extractIPAddress извлекает IP адрес из запроса. Заголовки прокси
// учитываются только при trustProxy, иначе используется RemoteAddr.
func extractIPAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
			// X-Forwarded-For может содержать список IP через запятую
			ips := strings.Split(ip, ",")
			if first := strings.TrimSpace(ips[0]); first != "" {
				return first
			}
		}

		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return strings.TrimSpace(ip)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// withCORS добавляет CORS headers к обработчику
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-User-ID")

		// Обработка preflight OPTIONS запросов
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
