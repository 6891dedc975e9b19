package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/internal/orderservice/auth"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Tracker interface {
	GetOrderStatusLog(ctx context.Context, actor, orderID string) ([]models.OrderHistoryEntry, error)
	GetBranchHistory(ctx context.Context, actor, branchID string, limit, offset int) ([]models.OrderHistory, error)
}

type TrackingHandler struct {
	service Tracker
	logger  *logger.Logger
}

func NewTrackingHandler(service Tracker, logger *logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		service: service,
		logger:  logger,
	}
}

func NewRouter(h *TrackingHandler, authMiddleware *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "tracking-service"})
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Get("/orders/{orderID}/status-log", h.GetOrderStatusLog)
		r.Get("/branches/{branchID}/history", h.GetBranchHistory)
	})
	return r
}

func (h *TrackingHandler) GetOrderStatusLog(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r.Context())
	orderID := chi.URLParam(r, "orderID")

	h.logger.Debug(requestID, "request_received", "Get status log request for order: "+orderID)

	entries, err := h.service.GetOrderStatusLog(r.Context(), auth.Actor(r.Context()), orderID)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *TrackingHandler) GetBranchHistory(w http.ResponseWriter, r *http.Request) {
	requestID := logger.RequestID(r.Context())
	branchID := chi.URLParam(r, "branchID")

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
		return
	}

	history, err := h.service.GetBranchHistory(r.Context(), auth.Actor(r.Context()), branchID, limit, offset)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *TrackingHandler) writeError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not assigned to this branch"})
	case errors.Is(err, lifecycle.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	default:
		h.logger.Error(requestID, "db_query_failed", "Tracking query failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
