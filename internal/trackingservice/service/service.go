package service

import (
	"context"
	"errors"
	"fmt"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Repository interface {
	// GetOrderBranch resolves the branch of a live or archived order.
	GetOrderBranch(ctx context.Context, orderID string) (string, error)
	GetOrderStatusLog(ctx context.Context, orderID string) ([]models.OrderStatusLog, error)
	GetBranchHistory(ctx context.Context, branchID string, limit, offset int) ([]models.OrderHistory, error)
}

type TrackingService struct {
	repo   Repository
	guard  lifecycle.Guard
	logger *logger.Logger
}

func NewTrackingService(repo Repository, guard lifecycle.Guard, logger *logger.Logger) *TrackingService {
	return &TrackingService{
		repo:   repo,
		guard:  guard,
		logger: logger,
	}
}

// GetOrderStatusLog returns every status an order passed through, oldest first.
// The log outlives the order row, so archived orders still resolve. Only
// employees of the order's branch may read it.
func (s *TrackingService) GetOrderStatusLog(ctx context.Context, actor, orderID string) ([]models.OrderHistoryEntry, error) {
	branchID, err := s.repo.GetOrderBranch(ctx, orderID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, lifecycle.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrStore, err)
	}
	if err := s.guard.Authorize(ctx, actor, branchID); err != nil {
		return nil, err
	}

	log, err := s.repo.GetOrderStatusLog(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrStore, err)
	}
	if len(log) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, lifecycle.ErrNotFound)
	}

	entries := make([]models.OrderHistoryEntry, 0, len(log))
	for _, entry := range log {
		entries = append(entries, models.OrderHistoryEntry{
			Status:    entry.Status,
			Timestamp: entry.ChangedAt,
			ChangedBy: entry.ChangedBy,
			Notes:     entry.Notes,
		})
	}
	return entries, nil
}

// GetBranchHistory pages through a branch's archived orders, newest first.
func (s *TrackingService) GetBranchHistory(ctx context.Context, actor, branchID string, limit, offset int) ([]models.OrderHistory, error) {
	if err := s.guard.Authorize(ctx, actor, branchID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	history, err := s.repo.GetBranchHistory(ctx, branchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrStore, err)
	}
	if history == nil {
		history = []models.OrderHistory{}
	}
	return history, nil
}
