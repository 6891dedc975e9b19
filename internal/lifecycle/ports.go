package lifecycle

import (
	"context"
	"time"

	"wheres-my-laundry/pkg/models"

	"github.com/shopspring/decimal"
)

// Store is the order backend. Implementations return ErrNotFound for missing
// rows and ErrConflict when a uniqueness rule rejects a write; any other error
// is treated as an infrastructure failure.
type Store interface {
	OrderStore
	ItemStore
	HistoryStore

	GetService(ctx context.Context, id string) (*models.Service, error)
	LogStatus(ctx context.Context, entry models.OrderStatusLog) error
}

type OrderStore interface {
	// CreateOrder inserts the order and, when placeholder is non-nil, its item
	// in the same write.
	CreateOrder(ctx context.Context, order *models.Order, placeholder *models.OrderItem) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// ListOrders returns the branch's orders that have no history row, each with
	// its item attached.
	ListOrders(ctx context.Context, branchID string) ([]models.Order, error)
	// DeleteOrder returns nil when the order is already gone.
	DeleteOrder(ctx context.Context, id string) error
}

type ItemStore interface {
	// CreateItem fails with ErrConflict if the order already has an item.
	CreateItem(ctx context.Context, item *models.OrderItem) error
	GetItem(ctx context.Context, id string) (*models.OrderItem, error)
	GetItemByOrder(ctx context.Context, orderID string) (*models.OrderItem, error)
	// ListItems returns items in any of statuses, each with its order attached.
	ListItems(ctx context.Context, statuses []models.Status) ([]models.OrderItem, error)
	// WeighItem records w on the item only if its status is still expect, moving
	// it to in_progress. It reports whether the row was updated.
	WeighItem(ctx context.Context, itemID string, expect models.Status, w Weighing) (bool, error)
	// UpdateItemStatus moves the item from one status to another only if it still
	// holds from. completedAt is written as given, including nil.
	UpdateItemStatus(ctx context.Context, itemID string, from, to models.Status, completedAt *time.Time) (bool, error)
	DeleteItem(ctx context.Context, id string) error
}

type HistoryStore interface {
	// InsertHistory fails with ErrConflict if the order is already archived.
	InsertHistory(ctx context.Context, h *models.OrderHistory) error
	ListHistory(ctx context.Context, branchID string, limit int) ([]models.OrderHistory, error)
	IsArchived(ctx context.Context, orderID string) (bool, error)
}

type Weighing struct {
	ServiceID    string
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	Subtotal     decimal.Decimal
	StartedAt    time.Time
}

// Notifier hands one customer message to the delivery gateway.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Guard checks that actor is assigned to branchID. A refusal wraps ErrUnauthorized.
type Guard interface {
	Authorize(ctx context.Context, actor, branchID string) error
}

// Observer receives lifecycle events for metrics.
type Observer interface {
	Transitioned(method models.Method, status models.Status)
	SideEffectFailed(step string)
	Notified(title string)
}

type noopObserver struct{}

func (noopObserver) Transitioned(models.Method, models.Status) {}
func (noopObserver) SideEffectFailed(string)                   {}
func (noopObserver) Notified(string)                           {}
