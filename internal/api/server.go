package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bit2swaz/sfg-rotate/internal/api/ratelimit"
	"github.com/bit2swaz/sfg-rotate/internal/engine"
	"github.com/bit2swaz/sfg-rotate/pkg/observability"
	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// Options configure a Server. A nil Limiter disables rate limiting on
// manual runs and an empty Token leaves /v1 open.
type Options struct {
	Token    string
	Limiter  *ratelimit.Limiter
	Gatherer prometheus.Gatherer
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Server exposes the scheduler's plan, manual runs and last report over HTTP.
type Server struct {
	scheduler *engine.Scheduler
	limiter   *ratelimit.Limiter
	token     string
	logger    *slog.Logger
	router    chi.Router
}

// NewServer constructs a new Server instance.
func NewServer(scheduler *engine.Scheduler, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		scheduler: scheduler,
		limiter:   opts.Limiter,
		token:     opts.Token,
		logger:    logger.With("component", "api"),
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Route("/v1", func(r chi.Router) {
		r.Use(srv.AuthMiddleware)
		r.Get("/plan", srv.HandlePlan)
		r.Post("/runs", srv.HandleRun)
		r.Get("/runs/last", srv.HandleLastRun)
	})

	srv.router = router
	return srv
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AuthMiddleware checks the bearer token when one is configured.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type planResponse struct {
	Mode      string               `json:"mode"`
	Today     retention.Date       `json:"today"`
	Decisions []retention.Decision `json:"decisions"`
}

// HandlePlan reports, per tier, whether the date triggers pruning and the
// cutoff that would apply. It touches no storage.
func (s *Server) HandlePlan(w http.ResponseWriter, r *http.Request) {
	today, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	policy := s.scheduler.Runner().Policy()
	respondJSON(w, http.StatusOK, planResponse{
		Mode:      policy.Mode().String(),
		Today:     today,
		Decisions: policy.Evaluate(today).Decisions(),
	})
}

type runResponse struct {
	*engine.Report
	Error string `json:"error,omitempty"`
}

// HandleRun triggers a run immediately. Dry runs are not recorded as the
// last report.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		if ok, retryAfter := s.limiter.Allow(clientIP(r)); !ok {
			if retryAfter > 0 {
				w.Header().Set("Retry-After", formatRetryAfter(retryAfter))
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	today, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	dryRun := false
	if raw := strings.TrimSpace(r.URL.Query().Get("dry_run")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid query param: dry_run", http.StatusBadRequest)
			return
		}
		dryRun = parsed
	}

	var (
		report *engine.Report
		err    error
	)
	if dryRun {
		report, err = s.scheduler.Runner().WithDryRun(true).Run(r.Context(), today)
	} else {
		report, err = s.scheduler.RunNow(r.Context(), today)
	}

	if report == nil {
		s.logger.Error("manual run failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := runResponse{Report: report}
	status := http.StatusOK
	if err != nil {
		s.logger.Warn("manual run finished with failures", "run_id", report.ID, "error", err)
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	respondJSON(w, status, resp)
}

func (s *Server) HandleLastRun(w http.ResponseWriter, _ *http.Request) {
	report := s.scheduler.LastReport()
	if report == nil {
		http.Error(w, "no run recorded yet", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today in the scheduler's
// time zone.
func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (retention.Date, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return s.scheduler.Today(), true
	}
	d, err := retention.ParseDate(raw)
	if err != nil {
		http.Error(w, "invalid query param: date", http.StatusBadRequest)
		return retention.Date{}, false
	}
	return d, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode json response", "error", err)
	}
}

func clientIP(r *http.Request) string {
	hdr := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if hdr != "" {
		parts := strings.Split(hdr, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func formatRetryAfter(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// StartLimiterJanitor prunes stale limiter entries until stop is closed.
func StartLimiterJanitor(limiter *ratelimit.Limiter, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			limiter.Cleanup()
		case <-stop:
			return
		}
	}
}
