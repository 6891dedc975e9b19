// Package memstore keeps orders in process memory. It is used for local runs
// with --store=memory and as the backing store in tests.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/pkg/models"
)

type Store struct {
	mu          sync.Mutex
	orders      map[string]models.Order
	items       map[string]models.OrderItem
	history     map[string]models.OrderHistory // by order id
	services    map[string]models.Service
	assignments map[string]map[string]bool // branch -> employees
	statusLog   []models.OrderStatusLog
}

func New() *Store {
	return &Store{
		orders:      make(map[string]models.Order),
		items:       make(map[string]models.OrderItem),
		history:     make(map[string]models.OrderHistory),
		services:    make(map[string]models.Service),
		assignments: make(map[string]map[string]bool),
	}
}

// AddService registers a service a branch offers.
func (s *Store) AddService(svc models.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// Assign records that employee works at branch.
func (s *Store) Assign(branchID, employeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignments[branchID] == nil {
		s.assignments[branchID] = make(map[string]bool)
	}
	s.assignments[branchID][employeeID] = true
}

func (s *Store) IsAssigned(_ context.Context, employeeID, branchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[branchID][employeeID], nil
}

func (s *Store) CreateOrder(_ context.Context, order *models.Order, placeholder *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return lifecycle.ErrConflict
	}
	if placeholder != nil {
		if _, ok := s.items[placeholder.ID]; ok {
			return lifecycle.ErrConflict
		}
	}

	stored := *order
	stored.Item = nil
	s.orders[order.ID] = stored
	if placeholder != nil {
		item := *placeholder
		item.Order = nil
		s.items[item.ID] = item
	}
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return &order, nil
}

func (s *Store) ListOrders(_ context.Context, branchID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Order
	for _, order := range s.orders {
		if order.BranchID != branchID {
			continue
		}
		if _, archived := s.history[order.ID]; archived {
			continue
		}
		if item, ok := s.itemByOrderLocked(order.ID); ok {
			order.Item = &item
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.orders, id)
	for itemID, item := range s.items {
		if item.OrderID == id {
			delete(s.items, itemID)
		}
	}
	return nil
}

func (s *Store) CreateItem(_ context.Context, item *models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[item.OrderID]; !ok {
		return lifecycle.ErrNotFound
	}
	if _, ok := s.itemByOrderLocked(item.OrderID); ok {
		return lifecycle.ErrConflict
	}
	if _, ok := s.items[item.ID]; ok {
		return lifecycle.ErrConflict
	}

	stored := *item
	stored.Order = nil
	s.items[item.ID] = stored
	return nil
}

func (s *Store) GetItem(_ context.Context, id string) (*models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return &item, nil
}

func (s *Store) GetItemByOrder(_ context.Context, orderID string) (*models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.itemByOrderLocked(orderID)
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListItems(_ context.Context, statuses []models.Status) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.OrderItem
	for _, item := range s.items {
		if !slices.Contains(statuses, item.Status) {
			continue
		}
		order, ok := s.orders[item.OrderID]
		if !ok {
			continue
		}
		item.Order = &order
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) WeighItem(_ context.Context, itemID string, expect models.Status, w lifecycle.Weighing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Status != expect || item.Weighed() {
		return false, nil
	}

	serviceID := w.ServiceID
	quantity, price, subtotal := w.Quantity, w.PricePerUnit, w.Subtotal
	startedAt := w.StartedAt
	item.ServiceID = &serviceID
	item.Quantity = &quantity
	item.PricePerUnit = &price
	item.Subtotal = &subtotal
	item.StartedAt = &startedAt
	item.Status = models.StatusInProgress
	s.items[itemID] = item
	return true, nil
}

func (s *Store) UpdateItemStatus(_ context.Context, itemID string, from, to models.Status, completedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = to
	item.CompletedAt = nil
	if completedAt != nil {
		t := *completedAt
		item.CompletedAt = &t
	}
	s.items[itemID] = item
	return true, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) InsertHistory(_ context.Context, h *models.OrderHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.history[h.OrderID]; ok {
		return lifecycle.ErrConflict
	}
	s.history[h.OrderID] = *h
	return nil
}

func (s *Store) IsArchived(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.history[orderID]
	return ok, nil
}

func (s *Store) ListHistory(_ context.Context, branchID string, limit int) ([]models.OrderHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.OrderHistory
	for _, h := range s.history {
		if h.BranchID == branchID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetService(_ context.Context, id string) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return &svc, nil
}

func (s *Store) LogStatus(_ context.Context, entry models.OrderStatusLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = int64(len(s.statusLog) + 1)
	s.statusLog = append(s.statusLog, entry)
	return nil
}

// StatusLog returns the entries recorded for orderID in insertion order.
func (s *Store) StatusLog(orderID string) []models.OrderStatusLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.OrderStatusLog
	for _, entry := range s.statusLog {
		if entry.OrderID == orderID {
			out = append(out, entry)
		}
	}
	return out
}

// Counts reports how many orders, items and history rows are stored.
func (s *Store) Counts() (orders, items, history int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders), len(s.items), len(s.history)
}

func (s *Store) itemByOrderLocked(orderID string) (models.OrderItem, bool) {
	for _, item := range s.items {
		if item.OrderID == orderID {
			return item, true
		}
	}
	return models.OrderItem{}, false
}
