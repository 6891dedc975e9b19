package lifecycle

import (
	"fmt"

	"wheres-my-laundry/pkg/models"

	"github.com/shopspring/decimal"
)

const currencySymbol = "₱"

// Trigger is the engine action that produced a state change.
type Trigger int

const (
	TriggerWeighed Trigger = iota
	TriggerAdvanced
)

// BuildNotification decides whether a state change is visible to the customer
// and, if so, builds the message. item must already carry the new status. Walk-in
// orders without a customer reference have nobody to notify.
func BuildNotification(trigger Trigger, order models.Order, item models.OrderItem) (models.Notification, bool) {
	if order.CustomerID == nil || *order.CustomerID == "" {
		return models.Notification{}, false
	}

	title, body, ok := message(trigger, order, item)
	if !ok {
		return models.Notification{}, false
	}

	payload := models.NotificationPayload{
		OrderID: order.ID,
		ItemID:  item.ID,
		Method:  order.Method,
		Status:  item.Status,
		Weight:  item.Quantity,
		Total:   item.Subtotal,
	}
	if item.Status == models.StatusOutForDelivery {
		payload.DeliveryLocation = order.DeliveryLocation
	}

	return models.Notification{
		Recipient: *order.CustomerID,
		Title:     title,
		Body:      body,
		Payload:   payload,
	}, true
}

func message(trigger Trigger, order models.Order, item models.OrderItem) (string, string, bool) {
	if trigger == TriggerWeighed {
		return "Order Confirmed", fmt.Sprintf("Your laundry weighs %s kg. Total: %s%s.",
			fixed(item.Quantity), currencySymbol, fixed(item.Subtotal)), true
	}

	switch item.Status {
	case models.StatusReadyForDelivery:
		switch order.Method {
		case models.MethodPickup:
			return "Ready for Return", "Your laundry is clean and will be returned to you shortly.", true
		case models.MethodDelivery:
			return "Ready for Delivery", "Your laundry is clean and waiting for a driver.", true
		}
	case models.StatusOutForDelivery:
		if order.Method == models.MethodDelivery {
			return "Order is Being Delivered", fmt.Sprintf("Your laundry is on its way to %s.", address(order.DeliveryLocation)), true
		}
	case models.StatusCompleted:
		switch order.Method {
		case models.MethodDropoff:
			return "Order Completed", "Your laundry is ready. You may pick it up in the shop.", true
		case models.MethodPickup:
			return "Order Completed", "Your laundry has been returned to you. Thank you!", true
		case models.MethodDelivery:
			return "Order Completed", "Your laundry has been delivered to you. Thank you!", true
		}
	}
	return "", "", false
}

func fixed(d *decimal.Decimal) string {
	if d == nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

func address(loc *models.Location) string {
	if loc == nil || loc.Address == "" {
		return "your address"
	}
	return loc.Address
}
