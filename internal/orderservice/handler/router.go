package handler

import (
	"context"
	"net/http"
	"time"

	"wheres-my-laundry/internal/metrics"
	"wheres-my-laundry/internal/orderservice/auth"
	"wheres-my-laundry/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

func NewRouter(h *OrderHandler, authMiddleware *auth.Middleware, m *metrics.Metrics, health HealthCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogging)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.InstrumentHandler)
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Get("/health", healthHandler(health))

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handler)

		r.Get("/branches/{branchID}/orders", h.ListBranchOrders)
		r.Post("/branches/{branchID}/orders", h.CreateOrder)
		r.Post("/orders/{orderID}/weight", h.RecordWeight)
		r.Post("/items/{itemID}/advance", h.AdvanceStatus)
	})
	return r
}

// RequestLogging carries chi's request id into the logger context.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
