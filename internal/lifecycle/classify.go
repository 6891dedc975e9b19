package lifecycle

import (
	"sort"

	"wheres-my-laundry/pkg/models"
)

// Queues is the employee view of one branch.
type Queues struct {
	Pending        []models.Order
	AwaitingPickup []models.Order
	Ongoing        []models.OrderItem
	History        []models.OrderHistory
}

// Classify partitions a branch's records into display queues. It never mutates
// its inputs beyond sorting copies, so polling it is side-effect free.
//
// orders carry their item (if any) in Order.Item; items carry their order in
// OrderItem.Order and are filtered to branchID through it.
func Classify(branchID string, orders []models.Order, items []models.OrderItem, history []models.OrderHistory, historyLimit int) Queues {
	q := Queues{
		Pending:        []models.Order{},
		AwaitingPickup: []models.Order{},
		Ongoing:        []models.OrderItem{},
		History:        []models.OrderHistory{},
	}

	archived := make(map[string]bool)
	for _, h := range history {
		if h.BranchID != branchID {
			continue
		}
		archived[h.OrderID] = true
		q.History = append(q.History, h)
	}
	sort.SliceStable(q.History, func(i, j int) bool {
		return q.History[i].CompletedAt.After(q.History[j].CompletedAt)
	})
	if historyLimit > 0 && len(q.History) > historyLimit {
		q.History = q.History[:historyLimit]
	}

	active := make(map[string]bool)
	for _, item := range items {
		if item.Order == nil || item.Order.BranchID != branchID {
			continue
		}
		if !isActive(item.Status) || archived[item.OrderID] {
			continue
		}
		active[item.OrderID] = true
		q.Ongoing = append(q.Ongoing, item)
	}
	sort.SliceStable(q.Ongoing, func(i, j int) bool {
		return startedBefore(q.Ongoing[i], q.Ongoing[j])
	})

	for _, order := range orders {
		if order.BranchID != branchID || archived[order.ID] || active[order.ID] {
			continue
		}
		if StageOf(order.Item) != StageIntake {
			continue
		}
		if awaitingCourier(order) {
			q.AwaitingPickup = append(q.AwaitingPickup, order)
			continue
		}
		q.Pending = append(q.Pending, order)
	}
	byCreation := func(list []models.Order) func(i, j int) bool {
		return func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) }
	}
	sort.SliceStable(q.Pending, byCreation(q.Pending))
	sort.SliceStable(q.AwaitingPickup, byCreation(q.AwaitingPickup))

	return q
}

// awaitingCourier reports a pickup order whose placeholder has not been
// collected from the customer yet.
func awaitingCourier(order models.Order) bool {
	return order.Method == models.MethodPickup &&
		order.Item != nil &&
		order.Item.Status == models.StatusWaitingForPickup
}

func startedBefore(a, b models.OrderItem) bool {
	switch {
	case a.StartedAt == nil:
		return false
	case b.StartedAt == nil:
		return true
	}
	return a.StartedAt.Before(*b.StartedAt)
}
