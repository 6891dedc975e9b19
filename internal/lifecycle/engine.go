package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultHistoryLimit = 20

// Engine moves orders through intake, active work and history. It keeps no
// state between calls; concurrent requests for the same item are reconciled by
// the store's conditional updates.
type Engine struct {
	store        Store
	notifier     Notifier
	guard        Guard
	logger       *logger.Logger
	observer     Observer
	now          func() time.Time
	newID        func() string
	historyLimit int
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithHistoryLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.historyLimit = limit
		}
	}
}

func NewEngine(store Store, notifier Notifier, guard Guard, logger *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		notifier:     notifier,
		guard:        guard,
		logger:       logger,
		observer:     noopObserver{},
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListBranchOrders returns the intake, active and archived queues of a branch.
func (e *Engine) ListBranchOrders(ctx context.Context, actor, branchID string) (Queues, error) {
	if err := e.authorize(ctx, actor, branchID); err != nil {
		return Queues{}, err
	}

	orders, err := e.store.ListOrders(ctx, branchID)
	if err != nil {
		return Queues{}, e.storeErr(ctx, "list_orders_failed", "Failed to list branch orders", err)
	}
	items, err := e.store.ListItems(ctx, models.ActiveStatuses)
	if err != nil {
		return Queues{}, e.storeErr(ctx, "list_items_failed", "Failed to list active items", err)
	}
	history, err := e.store.ListHistory(ctx, branchID, e.historyLimit)
	if err != nil {
		return Queues{}, e.storeErr(ctx, "list_history_failed", "Failed to list order history", err)
	}

	return Classify(branchID, orders, items, history, e.historyLimit), nil
}

// CreateManualOrder registers an order taken at the counter. Pickup orders also
// get a placeholder item the courier workflow tracks until collection.
func (e *Engine) CreateManualOrder(ctx context.Context, actor, branchID string, req models.CreateOrderRequest) (*models.Order, error) {
	requestID := logger.RequestID(ctx)

	if err := e.authorize(ctx, actor, branchID); err != nil {
		return nil, err
	}
	if err := checkOrderRequest(req); err != nil {
		return nil, err
	}
	if _, err := e.branchService(ctx, *req.ServiceID, branchID); err != nil {
		return nil, err
	}

	now := e.now()
	order := &models.Order{
		ID:               e.newID(),
		BranchID:         branchID,
		CustomerID:       req.CustomerID,
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerContact:  strings.TrimSpace(req.CustomerContact),
		Method:           req.Method,
		ServiceID:        req.ServiceID,
		Detergent:        req.Detergent,
		Softener:         req.Softener,
		DeliveryLocation: req.DeliveryLocation,
		CreatedAt:        now,
	}

	var placeholder *models.OrderItem
	if order.Method == models.MethodPickup {
		placeholder = &models.OrderItem{
			ID:        e.newID(),
			OrderID:   order.ID,
			ServiceID: req.ServiceID,
			Status:    models.StatusWaitingForPickup,
		}
	}

	if err := e.store.CreateOrder(ctx, order, placeholder); err != nil {
		return nil, e.storeErr(ctx, "order_creation_failed", "Failed to create order", err)
	}
	order.Item = placeholder

	e.logger.Debug(requestID, "order_created", fmt.Sprintf("Order %s created for branch %s (%s)", order.ID, branchID, order.Method))
	initial := "received"
	if placeholder != nil {
		initial = string(placeholder.Status)
	}
	e.logStatus(ctx, order.ID, initial, actor, "Order created")
	return order, nil
}

// RecordWeight attaches weight and price to an order, moving it into active work.
func (e *Engine) RecordWeight(ctx context.Context, actor, orderID string, weight decimal.Decimal, serviceID string, pricePerUnit decimal.Decimal) (*models.OrderItem, error) {
	requestID := logger.RequestID(ctx)

	if !weight.IsPositive() {
		return nil, fmt.Errorf("%w: weight must be greater than zero", ErrPrecondition)
	}
	if pricePerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: price per unit cannot be negative", ErrPrecondition)
	}
	if strings.TrimSpace(serviceID) == "" {
		return nil, fmt.Errorf("%w: service is required", ErrPrecondition)
	}

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, e.lookupErr(ctx, "order", orderID, err)
	}
	if err := e.authorize(ctx, actor, order.BranchID); err != nil {
		return nil, err
	}
	archived, err := e.store.IsArchived(ctx, order.ID)
	if err != nil {
		return nil, e.storeErr(ctx, "history_lookup_failed", "Failed to check order history", err)
	}
	if archived {
		return nil, fmt.Errorf("%w: order %s has already been completed", ErrPrecondition, order.ID)
	}
	if _, err := e.branchService(ctx, serviceID, order.BranchID); err != nil {
		return nil, err
	}

	w := Weighing{
		ServiceID:    serviceID,
		Quantity:     weight,
		PricePerUnit: pricePerUnit,
		Subtotal:     weight.Mul(pricePerUnit).Round(2),
		StartedAt:    e.now(),
	}

	var item *models.OrderItem
	if source, ok := WeighingSource(order.Method); ok {
		item, err = e.weighPlaceholder(ctx, order, source, w)
	} else {
		item, err = e.createWeighedItem(ctx, order, w)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug(requestID, "order_weighed", fmt.Sprintf("Order %s weighed: %s kg, subtotal %s", order.ID, w.Quantity.StringFixed(2), w.Subtotal.StringFixed(2)))
	e.observer.Transitioned(order.Method, item.Status)
	e.logStatus(ctx, order.ID, string(item.Status), actor, "Weight recorded")
	e.notify(ctx, TriggerWeighed, *order, *item)
	return item, nil
}

func (e *Engine) weighPlaceholder(ctx context.Context, order *models.Order, source models.Status, w Weighing) (*models.OrderItem, error) {
	item, err := e.store.GetItemByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: pickup order %s has no placeholder item", ErrPrecondition, order.ID)
		}
		return nil, e.storeErr(ctx, "item_lookup_failed", "Failed to load placeholder item", err)
	}
	if item.Status != source {
		return nil, weighingRefusal(item.Status)
	}

	updated, err := e.store.WeighItem(ctx, item.ID, source, w)
	if err != nil {
		return nil, e.storeErr(ctx, "weighing_failed", "Failed to record weight", err)
	}
	if !updated {
		current, err := e.store.GetItem(ctx, item.ID)
		if err != nil {
			return nil, e.lookupErr(ctx, "item", item.ID, err)
		}
		return nil, weighingRefusal(current.Status)
	}

	applyWeighing(item, w)
	return item, nil
}

func (e *Engine) createWeighedItem(ctx context.Context, order *models.Order, w Weighing) (*models.OrderItem, error) {
	item := &models.OrderItem{
		ID:      e.newID(),
		OrderID: order.ID,
	}
	applyWeighing(item, w)

	if err := e.store.CreateItem(ctx, item); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: order %s has already been weighed", ErrPrecondition, order.ID)
		}
		return nil, e.storeErr(ctx, "item_creation_failed", "Failed to create order item", err)
	}
	return item, nil
}

func applyWeighing(item *models.OrderItem, w Weighing) {
	serviceID := w.ServiceID
	quantity, price, subtotal := w.Quantity, w.PricePerUnit, w.Subtotal
	startedAt := w.StartedAt

	item.ServiceID = &serviceID
	item.Quantity = &quantity
	item.PricePerUnit = &price
	item.Subtotal = &subtotal
	item.Status = models.StatusInProgress
	item.StartedAt = &startedAt
}

func weighingRefusal(status models.Status) error {
	if status == models.StatusWaitingForPickup {
		return fmt.Errorf("%w: not yet collected by courier", ErrPrecondition)
	}
	return fmt.Errorf("%w: order has already been weighed (status %s)", ErrPrecondition, status)
}

// AdvanceStatus moves an item one step along its method's sequence. Statuses
// with no engine-driven successor are returned unchanged.
func (e *Engine) AdvanceStatus(ctx context.Context, actor, itemID string) (models.Status, error) {
	requestID := logger.RequestID(ctx)

	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return "", e.lookupErr(ctx, "item", itemID, err)
	}
	order, err := e.store.GetOrder(ctx, item.OrderID)
	if err != nil {
		return "", e.lookupErr(ctx, "order", item.OrderID, err)
	}
	if err := e.authorize(ctx, actor, order.BranchID); err != nil {
		return "", err
	}
	if item.Status == models.StatusCompleted {
		return "", archivingErr(item.ID)
	}

	current, err := NewState(order.Method, item.Status)
	if err != nil {
		e.logger.Error(requestID, "invalid_state", fmt.Sprintf("Item %s holds an unknown state", item.ID), err)
		return item.Status, nil
	}
	next, changed := current.Advance()
	if !changed {
		e.logger.Debug(requestID, "advance_noop", fmt.Sprintf("Item %s stays at %s", item.ID, item.Status))
		return item.Status, nil
	}

	var completedAt *time.Time
	if next.Terminal() {
		t := e.now()
		completedAt = &t
	}

	updated, err := e.store.UpdateItemStatus(ctx, item.ID, current.Status(), next.Status(), completedAt)
	if err != nil {
		return "", e.storeErr(ctx, "status_update_failed", "Failed to update item status", err)
	}
	if !updated {
		// Another request moved the item first.
		latest, err := e.store.GetItem(ctx, item.ID)
		if err != nil {
			return "", e.lookupErr(ctx, "item", item.ID, err)
		}
		e.logger.Debug(requestID, "advance_raced", fmt.Sprintf("Item %s already moved to %s", item.ID, latest.Status))
		if latest.Status == models.StatusCompleted {
			return "", archivingErr(item.ID)
		}
		return latest.Status, nil
	}

	item.Status = next.Status()
	item.CompletedAt = completedAt

	if next.Terminal() {
		if err := e.complete(ctx, actor, order, item, current.Status()); err != nil {
			return "", err
		}
		return item.Status, nil
	}

	e.logger.Debug(requestID, "status_advanced", fmt.Sprintf("Item %s: %s -> %s", item.ID, current.Status(), next.Status()))
	e.observer.Transitioned(order.Method, item.Status)
	e.logStatus(ctx, order.ID, string(item.Status), actor, "")
	e.notify(ctx, TriggerAdvanced, *order, *item)
	return item.Status, nil
}

// complete archives an item that has just been marked completed. Only the
// history insert is allowed to fail the request; on failure the item is moved
// back to previous so the completion can be retried.
func (e *Engine) complete(ctx context.Context, actor string, order *models.Order, item *models.OrderItem, previous models.Status) error {
	requestID := logger.RequestID(ctx)

	history, err := e.snapshot(ctx, order, item)
	if err == nil {
		err = e.store.InsertHistory(ctx, history)
	}
	if err != nil {
		e.logger.Error(requestID, "history_insert_failed", fmt.Sprintf("Failed to archive order %s", order.ID), err)
		if _, rbErr := e.store.UpdateItemStatus(ctx, item.ID, models.StatusCompleted, previous, nil); rbErr != nil {
			e.observer.SideEffectFailed("completion_rollback")
			e.logger.Error(requestID, "completion_rollback_failed", fmt.Sprintf("CRITICAL: item %s left completed without history", item.ID), rbErr)
		}
		return fmt.Errorf("%w: archive order %s: %v", ErrStore, order.ID, err)
	}
	e.logger.Debug(requestID, "history_created", fmt.Sprintf("Order %s archived as %s", order.ID, history.ID))
	e.observer.Transitioned(order.Method, models.StatusCompleted)

	e.notify(ctx, TriggerAdvanced, *order, *item)

	if err := e.store.DeleteItem(ctx, item.ID); err != nil && !errors.Is(err, ErrNotFound) {
		e.observer.SideEffectFailed("delete_item")
		e.logger.Error(requestID, "item_cleanup_failed", fmt.Sprintf("Failed to delete item %s after archival", item.ID), err)
	}
	if err := e.store.DeleteOrder(ctx, order.ID); err != nil && !errors.Is(err, ErrNotFound) {
		e.observer.SideEffectFailed("delete_order")
		e.logger.Error(requestID, "order_cleanup_failed", fmt.Sprintf("Failed to delete order %s after archival", order.ID), err)
	}

	e.logStatus(ctx, order.ID, string(models.StatusCompleted), actor, "Order archived")
	return nil
}

func (e *Engine) snapshot(ctx context.Context, order *models.Order, item *models.OrderItem) (*models.OrderHistory, error) {
	if !item.Weighed() || item.PricePerUnit == nil || item.Subtotal == nil {
		return nil, fmt.Errorf("item %s has no recorded weight", item.ID)
	}

	h := &models.OrderHistory{
		ID:               e.newID(),
		OrderID:          order.ID,
		BranchID:         order.BranchID,
		CustomerID:       order.CustomerID,
		CustomerName:     order.CustomerName,
		CustomerContact:  order.CustomerContact,
		Method:           order.Method,
		ServiceID:        item.ServiceID,
		Detergent:        order.Detergent,
		Softener:         order.Softener,
		DeliveryLocation: order.DeliveryLocation,
		Weight:           *item.Quantity,
		PricePerUnit:     *item.PricePerUnit,
		Price:            *item.Subtotal,
		CreatedAt:        order.CreatedAt,
		CompletedAt:      e.now(),
	}
	if item.CompletedAt != nil {
		h.CompletedAt = *item.CompletedAt
	}

	if item.ServiceID != nil {
		svc, err := e.store.GetService(ctx, *item.ServiceID)
		switch {
		case err == nil:
			h.ServiceName = svc.Name
		case errors.Is(err, ErrNotFound):
			// Service removed since weighing; keep the id only.
		default:
			return nil, err
		}
	}
	return h, nil
}

func (e *Engine) authorize(ctx context.Context, actor, branchID string) error {
	if err := e.guard.Authorize(ctx, actor, branchID); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			e.logger.Warn(logger.RequestID(ctx), "authorization_denied", fmt.Sprintf("Actor %q refused for branch %s", actor, branchID))
			return err
		}
		return e.storeErr(ctx, "authorization_failed", "Failed to verify branch assignment", err)
	}
	return nil
}

func (e *Engine) branchService(ctx context.Context, serviceID, branchID string) (*models.Service, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown service %s", ErrPrecondition, serviceID)
		}
		return nil, e.storeErr(ctx, "service_lookup_failed", "Failed to load service", err)
	}
	if svc.BranchID != branchID {
		return nil, fmt.Errorf("%w: service %s is not offered by branch %s", ErrPrecondition, serviceID, branchID)
	}
	return svc, nil
}

func (e *Engine) notify(ctx context.Context, trigger Trigger, order models.Order, item models.OrderItem) {
	n, ok := BuildNotification(trigger, order, item)
	if !ok {
		return
	}
	n.ID = e.newID()
	n.CreatedAt = e.now()

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.observer.SideEffectFailed("notify")
		e.logger.Error(logger.RequestID(ctx), "notification_failed", fmt.Sprintf("Failed to send %q for order %s", n.Title, order.ID), err)
		return
	}
	e.observer.Notified(n.Title)
}

func (e *Engine) logStatus(ctx context.Context, orderID, status, actor, notes string) {
	entry := models.OrderStatusLog{
		OrderID:   orderID,
		Status:    status,
		ChangedBy: actor,
		ChangedAt: e.now(),
	}
	if notes != "" {
		entry.Notes = &notes
	}
	if err := e.store.LogStatus(ctx, entry); err != nil {
		e.observer.SideEffectFailed("status_log")
		e.logger.Error(logger.RequestID(ctx), "status_logging_failed", fmt.Sprintf("Failed to log status %s for order %s", status, orderID), err)
	}
}

// archivingErr is returned for a completed item: its archival is either done
// or still running, and in both cases the caller should refresh.
func archivingErr(itemID string) error {
	return fmt.Errorf("item %s is archived or being archived: %w", itemID, ErrNotFound)
}

func (e *Engine) lookupErr(ctx context.Context, kind, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return e.storeErr(ctx, kind+"_lookup_failed", fmt.Sprintf("Failed to load %s %s", kind, id), err)
}

func (e *Engine) storeErr(ctx context.Context, action, message string, err error) error {
	e.logger.Error(logger.RequestID(ctx), action, message, err)
	return fmt.Errorf("%w: %v", ErrStore, err)
}

func checkOrderRequest(req models.CreateOrderRequest) error {
	if strings.TrimSpace(req.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrPrecondition)
	}
	if !req.Method.Valid() {
		return fmt.Errorf("%w: method must be one of dropoff, pickup, delivery", ErrPrecondition)
	}
	if req.ServiceID == nil || strings.TrimSpace(*req.ServiceID) == "" {
		return fmt.Errorf("%w: service is required", ErrPrecondition)
	}
	if req.Method.RequiresLocation() {
		if req.DeliveryLocation == nil || strings.TrimSpace(req.DeliveryLocation.Address) == "" {
			return fmt.Errorf("%w: delivery location is required for %s orders", ErrPrecondition, req.Method)
		}
	}
	return nil
}
