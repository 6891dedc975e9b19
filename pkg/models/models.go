package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodDropoff  Method = "dropoff"
	MethodPickup   Method = "pickup"
	MethodDelivery Method = "delivery"
)

// RequiresLocation reports whether a courier needs the customer's address.
func (m Method) RequiresLocation() bool {
	return m == MethodPickup || m == MethodDelivery
}

func (m Method) Valid() bool {
	switch m {
	case MethodDropoff, MethodPickup, MethodDelivery:
		return true
	}
	return false
}

type Status string

const (
	StatusWaitingForPickup Status = "waiting_for_pickup"
	StatusCollected        Status = "collected"
	StatusInProgress       Status = "in_progress"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusCompleted        Status = "completed"
)

// ActiveStatuses are the item statuses shown in the ongoing work queue.
var ActiveStatuses = []Status{
	StatusInProgress,
	StatusReadyForDelivery,
	StatusOutForDelivery,
}

type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Order struct {
	ID               string    `json:"id"`
	BranchID         string    `json:"branch_id"`
	CustomerID       *string   `json:"customer_id,omitempty"`
	CustomerName     string    `json:"customer_name"`
	CustomerContact  string    `json:"customer_contact"`
	Method           Method    `json:"method"`
	ServiceID        *string   `json:"service_id,omitempty"`
	Detergent        *string   `json:"detergent,omitempty"`
	Softener         *string   `json:"softener,omitempty"`
	DeliveryLocation *Location `json:"delivery_location,omitempty"`
	CreatedAt        time.Time `json:"created_at"`

	// Item is attached by list queries; nil when the order has not been weighed
	// and carries no placeholder.
	Item *OrderItem `json:"item,omitempty"`
}

type OrderItem struct {
	ID           string           `json:"id"`
	OrderID      string           `json:"order_id"`
	ServiceID    *string          `json:"service_id,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	PricePerUnit *decimal.Decimal `json:"price_per_unit,omitempty"`
	Subtotal     *decimal.Decimal `json:"subtotal,omitempty"`
	Status       Status           `json:"status"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`

	// Order is attached by active-item queries so callers can filter by branch.
	Order *Order `json:"order,omitempty"`
}

// Weighed reports whether a quantity has been recorded on the item.
func (i *OrderItem) Weighed() bool {
	return i != nil && i.Quantity != nil
}

type OrderHistory struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	BranchID         string          `json:"branch_id"`
	CustomerID       *string         `json:"customer_id,omitempty"`
	CustomerName     string          `json:"customer_name"`
	CustomerContact  string          `json:"customer_contact"`
	Method           Method          `json:"method"`
	ServiceID        *string         `json:"service_id,omitempty"`
	ServiceName      string          `json:"service_name"`
	Detergent        *string         `json:"detergent,omitempty"`
	Softener         *string         `json:"softener,omitempty"`
	DeliveryLocation *Location       `json:"delivery_location,omitempty"`
	Weight           decimal.Decimal `json:"weight"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"`
	Price            decimal.Decimal `json:"price"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      time.Time       `json:"completed_at"`
}

type Service struct {
	ID         string          `json:"id"`
	BranchID   string          `json:"branch_id"`
	Name       string          `json:"name"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
}

type Notification struct {
	ID        string              `json:"id"`
	Recipient string              `json:"recipient"`
	Title     string              `json:"title"`
	Body      string              `json:"body"`
	Payload   NotificationPayload `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
}

type NotificationPayload struct {
	OrderID          string           `json:"order_id"`
	ItemID           string           `json:"item_id,omitempty"`
	Method           Method           `json:"method"`
	Status           Status           `json:"status"`
	Weight           *decimal.Decimal `json:"weight,omitempty"`
	Total            *decimal.Decimal `json:"total,omitempty"`
	DeliveryLocation *Location        `json:"delivery_location,omitempty"`
}

type OrderStatusLog struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Notes     *string   `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	CustomerID       *string   `json:"customer_id,omitempty"`
	CustomerName     string    `json:"customer_name"`
	CustomerContact  string    `json:"customer_contact"`
	Method           Method    `json:"method"`
	ServiceID        *string   `json:"service_id,omitempty"`
	Detergent        *string   `json:"detergent,omitempty"`
	Softener         *string   `json:"softener,omitempty"`
	DeliveryLocation *Location `json:"delivery_location,omitempty"`
}

type RecordWeightRequest struct {
	Weight       decimal.Decimal `json:"weight"`
	ServiceID    string          `json:"service_id"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

type AdvanceStatusResponse struct {
	ItemID string `json:"item_id"`
	Status Status `json:"status"`
}

type BranchOrdersResponse struct {
	Pending        []Order        `json:"pending"`
	AwaitingPickup []Order        `json:"awaiting_pickup"`
	Ongoing        []OrderItem    `json:"ongoing"`
	History        []OrderHistory `json:"history"`
}

type OrderHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ChangedBy string    `json:"changed_by"`
	Notes     *string   `json:"notes,omitempty"`
}
