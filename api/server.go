/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     One zap access-log line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Request count and latency per route pattern
  6. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus scrape endpoint
  /api/teachers/*       Teachers, payroll and per-teacher leave
  /api/vacations/*      Leave records by id
  /api/stats/*          Cross-teacher reports
  /api/reference        Rate tables
  /api/scenarios/*      Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/metrics"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	AllowedOrigins []string
	// Metrics, when set, instruments every request and serves /metrics.
	Metrics *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(h.logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Teacher routes
		r.Route("/teachers", func(r chi.Router) {
			r.Get("/", h.ListTeachers)
			r.Post("/", h.CreateTeacher)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTeacher)

				// Payroll
				r.Post("/salary", h.CalculateSalary)
				r.Get("/calculations", h.ListCalculations)
				r.Post("/vacation-pay", h.QuoteVacationPay)
				r.Post("/sick-leave", h.QuoteSickLeave)
				r.Get("/statistics", h.GetStatistics)

				// Leave
				r.Get("/vacations", h.ListTeacherVacations)
				r.Post("/vacations", h.ScheduleVacation)
				r.Get("/vacation-balance", h.GetVacationBalance)
				r.Get("/transfers", h.ListTransfers)
				r.Post("/transfers", h.CreateTransfer)
				r.Get("/audit", h.GetAuditTrail)
			})
		})

		// Vacation record routes
		r.Route("/vacations", func(r chi.Router) {
			r.Get("/current", h.ListCurrentVacations)
			r.Get("/{id}", h.GetVacation)
			r.Post("/{id}/cancel", h.CancelVacation)
			r.Post("/{id}/use", h.MarkVacationUsed)
			r.Post("/{id}/pay", h.PayVacation)
		})

		// Statistics routes
		r.Route("/stats", func(r chi.Router) {
			r.Get("/vacations", h.GetVacationStatistics)
			r.Get("/payroll", h.GetMonthlyPayroll)
		})

		r.Get("/reference", h.GetReference)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// instrument records every request under its route pattern so ids in the
// path don't explode label cardinality.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTPRequest(r.Method, route, status, time.Since(start))
		})
	}
}
