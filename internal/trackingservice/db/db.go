package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TrackingDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewTrackingDB(dbPool *pgxpool.Pool, logger *logger.Logger) *TrackingDB {
	return &TrackingDB{
		dbPool: dbPool,
		logger: logger,
	}
}

func (d *TrackingDB) GetOrderBranch(ctx context.Context, orderID string) (string, error) {
	var branchID string
	err := d.dbPool.QueryRow(ctx, `
        SELECT branch_id FROM orders WHERE id = $1
        UNION ALL
        SELECT branch_id FROM order_history WHERE order_id = $1
        LIMIT 1
    `, orderID).Scan(&branchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", lifecycle.ErrNotFound
	}
	return branchID, err
}

func (d *TrackingDB) GetOrderStatusLog(ctx context.Context, orderID string) ([]models.OrderStatusLog, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT id, order_id, status, changed_by, changed_at, notes
        FROM order_status_log
        WHERE order_id = $1
        ORDER BY changed_at ASC, id ASC
    `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var log []models.OrderStatusLog
	for rows.Next() {
		var entry models.OrderStatusLog
		err := rows.Scan(
			&entry.ID, &entry.OrderID, &entry.Status,
			&entry.ChangedBy, &entry.ChangedAt, &entry.Notes,
		)
		if err != nil {
			return nil, err
		}
		log = append(log, entry)
	}

	return log, rows.Err()
}

func (d *TrackingDB) GetBranchHistory(ctx context.Context, branchID string, limit, offset int) ([]models.OrderHistory, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT id, order_id, branch_id, customer_id, customer_name, customer_contact, method,
               service_id, service_name, detergent, softener, delivery_location,
               weight, price_per_unit, price, created_at, completed_at
        FROM order_history
        WHERE branch_id = $1
        ORDER BY completed_at DESC
        LIMIT $2 OFFSET $3
    `, branchID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.OrderHistory
	for rows.Next() {
		var h models.OrderHistory
		var location []byte
		err := rows.Scan(
			&h.ID, &h.OrderID, &h.BranchID, &h.CustomerID, &h.CustomerName, &h.CustomerContact, &h.Method,
			&h.ServiceID, &h.ServiceName, &h.Detergent, &h.Softener, &location,
			&h.Weight, &h.PricePerUnit, &h.Price, &h.CreatedAt, &h.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(location) > 0 {
			h.DeliveryLocation = &models.Location{}
			if err := json.Unmarshal(location, h.DeliveryLocation); err != nil {
				return nil, fmt.Errorf("decode delivery location: %w", err)
			}
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

func (d *TrackingDB) IsAssigned(ctx context.Context, employeeID, branchID string) (bool, error) {
	var ok bool
	err := d.dbPool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM branch_employees WHERE branch_id = $1 AND employee_id = $2)
    `, branchID, employeeID).Scan(&ok)
	return ok, err
}
