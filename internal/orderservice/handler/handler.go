package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/internal/orderservice/auth"
	"wheres-my-laundry/internal/orderservice/idempotency"
	"wheres-my-laundry/internal/orderservice/validation"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Lifecycle is the engine surface the HTTP layer drives.
type Lifecycle interface {
	ListBranchOrders(ctx context.Context, actor, branchID string) (lifecycle.Queues, error)
	CreateManualOrder(ctx context.Context, actor, branchID string, req models.CreateOrderRequest) (*models.Order, error)
	RecordWeight(ctx context.Context, actor, orderID string, weight decimal.Decimal, serviceID string, pricePerUnit decimal.Decimal) (*models.OrderItem, error)
	AdvanceStatus(ctx context.Context, actor, itemID string) (models.Status, error)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type OrderHandler struct {
	engine    Lifecycle
	validator *validation.OrderValidator
	cache     idempotency.Cache
	logger    *logger.Logger
}

// NewOrderHandler builds the handler. cache may be nil, which disables
// idempotent replay of manual orders.
func NewOrderHandler(engine Lifecycle, cache idempotency.Cache, logger *logger.Logger) *OrderHandler {
	return &OrderHandler{
		engine:    engine,
		validator: validation.NewOrderValidator(),
		cache:     cache,
		logger:    logger,
	}
}

func (h *OrderHandler) ListBranchOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	branchID := chi.URLParam(r, "branchID")

	q, err := h.engine.ListBranchOrders(ctx, auth.Actor(ctx), branchID)
	if err != nil {
		h.writeEngineError(w, r, "list_orders_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, models.BranchOrdersResponse{
		Pending:        q.Pending,
		AwaitingPickup: q.AwaitingPickup,
		Ongoing:        q.Ongoing,
		History:        q.History,
	})
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := logger.RequestID(ctx)
	branchID := chi.URLParam(r, "branchID")
	actor := auth.Actor(ctx)

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error(requestID, "validation_failed", "Invalid JSON payload", err)
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON payload")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.logger.Warn(requestID, "validation_failed", err.Error())
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cacheKey := h.idempotencyKey(r, branchID, actor)
	if cacheKey != "" {
		claimed, cached, err := h.claim(ctx, cacheKey)
		switch {
		case err != nil:
			h.logger.Error(requestID, "idempotency_lookup_failed", "Failed to claim idempotency key", err)
			cacheKey = ""
		case claimed:
		case cached == "" || cached == idempotency.Pending:
			h.logger.Warn(requestID, "order_in_progress", "Another request with this idempotency key is still running")
			writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is still in progress")
			return
		default:
			h.logger.Debug(requestID, "order_replayed", "Returning order created by an earlier attempt")
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(cached))
			return
		}
	}

	h.logger.Debug(requestID, "order_received", fmt.Sprintf("Manual %s order received for branch %s", req.Method, branchID))

	order, err := h.engine.CreateManualOrder(ctx, actor, branchID, req)
	if err != nil {
		h.release(ctx, cacheKey)
		h.writeEngineError(w, r, "order_processing_failed", err)
		return
	}

	body, err := json.Marshal(order)
	if err != nil {
		h.release(ctx, cacheKey)
		h.logger.Error(requestID, "response_encoding_failed", "Failed to encode order", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if cacheKey != "" {
		if err := h.cache.Set(ctx, cacheKey, body, idempotency.DefaultTTL); err != nil {
			h.logger.Error(requestID, "idempotency_store_failed", "Failed to remember idempotency key", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
}

func (h *OrderHandler) RecordWeight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := logger.RequestID(ctx)
	orderID := chi.URLParam(r, "orderID")

	var req models.RecordWeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error(requestID, "validation_failed", "Invalid JSON payload", err)
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON payload")
		return
	}
	if err := h.validator.ValidateWeight(&req); err != nil {
		h.logger.Warn(requestID, "validation_failed", err.Error())
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	item, err := h.engine.RecordWeight(ctx, auth.Actor(ctx), orderID, req.Weight, req.ServiceID, req.PricePerUnit)
	if err != nil {
		h.writeEngineError(w, r, "weighing_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := chi.URLParam(r, "itemID")

	status, err := h.engine.AdvanceStatus(ctx, auth.Actor(ctx), itemID)
	if err != nil {
		h.writeEngineError(w, r, "advance_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, models.AdvanceStatusResponse{ItemID: itemID, Status: status})
}

func (h *OrderHandler) idempotencyKey(r *http.Request, branchID, actor string) string {
	key := r.Header.Get(idempotency.Header)
	if key == "" || h.cache == nil {
		return ""
	}
	return h.cache.GenerateKey("create_order", branchID+":"+actor+":"+key)
}

// claim reserves key for this request. When the key is already taken it
// returns what the earlier attempt stored: its response or the pending marker.
func (h *OrderHandler) claim(ctx context.Context, key string) (bool, string, error) {
	ok, err := h.cache.SetNX(ctx, key, idempotency.Pending, idempotency.PendingTTL)
	if err != nil || ok {
		return ok, "", err
	}
	cached, err := h.cache.Get(ctx, key)
	return false, cached, err
}

// release frees a claimed key so a failed attempt can be retried.
func (h *OrderHandler) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := h.cache.Delete(ctx, key); err != nil {
		h.logger.Error(logger.RequestID(ctx), "idempotency_release_failed", "Failed to release idempotency key", err)
	}
}

// writeEngineError maps lifecycle errors to HTTP responses.
func (h *OrderHandler) writeEngineError(w http.ResponseWriter, r *http.Request, action string, err error) {
	requestID := logger.RequestID(r.Context())

	switch {
	case errors.Is(err, lifecycle.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", "not assigned to this branch")
	case errors.Is(err, lifecycle.ErrPrecondition):
		h.logger.Warn(requestID, action, err.Error())
		writeError(w, http.StatusUnprocessableEntity, "precondition_failed", reason(err, lifecycle.ErrPrecondition))
	case errors.Is(err, lifecycle.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		h.logger.Error(requestID, action, "Request failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// reason strips the sentinel prefix from a wrapped error message.
func reason(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
