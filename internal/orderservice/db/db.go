package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wheres-my-laundry/internal/lifecycle"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const orderColumns = `o.id, o.branch_id, o.customer_id, o.customer_name, o.customer_contact, o.method,
	o.service_id, o.detergent, o.softener, o.delivery_location, o.created_at`

const itemColumns = `i.id, i.order_id, i.service_id, i.quantity, i.price_per_unit, i.subtotal,
	i.status, i.started_at, i.completed_at`

type OrderDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewOrderDB(dbPool *pgxpool.Pool, logger *logger.Logger) *OrderDB {
	return &OrderDB{
		dbPool: dbPool,
		logger: logger,
	}
}

func (d *OrderDB) CreateOrder(ctx context.Context, order *models.Order, placeholder *models.OrderItem) error {
	location, err := encodeLocation(order.DeliveryLocation)
	if err != nil {
		return err
	}

	// The order and its pickup placeholder are written together
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO orders (id, branch_id, customer_id, customer_name, customer_contact, method,
                            service_id, detergent, softener, delivery_location, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, order.ID, order.BranchID, order.CustomerID, order.CustomerName, order.CustomerContact, order.Method,
		order.ServiceID, order.Detergent, order.Softener, location, order.CreatedAt)
	if err != nil {
		return mapErr(err)
	}

	if placeholder != nil {
		_, err = tx.Exec(ctx, `
            INSERT INTO order_items (id, order_id, service_id, status)
            VALUES ($1, $2, $3, $4)
        `, placeholder.ID, placeholder.OrderID, placeholder.ServiceID, placeholder.Status)
		if err != nil {
			return mapErr(err)
		}
	}

	return tx.Commit(ctx)
}

func (d *OrderDB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := d.dbPool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return order, nil
}

func (d *OrderDB) ListOrders(ctx context.Context, branchID string) ([]models.Order, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT `+orderColumns+`, `+itemColumns+`
        FROM orders o
        LEFT JOIN order_items i ON i.order_id = o.id
        WHERE o.branch_id = $1
          AND NOT EXISTS (SELECT 1 FROM order_history h WHERE h.order_id = o.id)
        ORDER BY o.created_at ASC
    `, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o orderRow
		var i nullableItemRow
		if err := rows.Scan(append(o.dest(), i.dest()...)...); err != nil {
			return nil, err
		}
		order, err := o.model()
		if err != nil {
			return nil, err
		}
		order.Item = i.model()
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (d *OrderDB) DeleteOrder(ctx context.Context, id string) error {
	_, err := d.dbPool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	return err
}

func (d *OrderDB) CreateItem(ctx context.Context, item *models.OrderItem) error {
	_, err := d.dbPool.Exec(ctx, `
        INSERT INTO order_items (id, order_id, service_id, quantity, price_per_unit, subtotal, status, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, item.ID, item.OrderID, item.ServiceID, item.Quantity, item.PricePerUnit, item.Subtotal, item.Status, item.StartedAt)
	return mapErr(err)
}

func (d *OrderDB) GetItem(ctx context.Context, id string) (*models.OrderItem, error) {
	return d.getItem(ctx, `SELECT `+itemColumns+` FROM order_items i WHERE i.id = $1`, id)
}

func (d *OrderDB) GetItemByOrder(ctx context.Context, orderID string) (*models.OrderItem, error) {
	return d.getItem(ctx, `SELECT `+itemColumns+` FROM order_items i WHERE i.order_id = $1`, orderID)
}

func (d *OrderDB) getItem(ctx context.Context, query, arg string) (*models.OrderItem, error) {
	var i nullableItemRow
	if err := d.dbPool.QueryRow(ctx, query, arg).Scan(i.dest()...); err != nil {
		return nil, mapErr(err)
	}
	return i.model(), nil
}

func (d *OrderDB) ListItems(ctx context.Context, statuses []models.Status) ([]models.OrderItem, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := d.dbPool.Query(ctx, `
        SELECT `+itemColumns+`, `+orderColumns+`
        FROM order_items i
        JOIN orders o ON o.id = i.order_id
        WHERE i.status = ANY($1)
        ORDER BY i.started_at ASC
    `, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var i nullableItemRow
		var o orderRow
		if err := rows.Scan(append(i.dest(), o.dest()...)...); err != nil {
			return nil, err
		}
		order, err := o.model()
		if err != nil {
			return nil, err
		}
		item := i.model()
		item.Order = order
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (d *OrderDB) WeighItem(ctx context.Context, itemID string, expect models.Status, w lifecycle.Weighing) (bool, error) {
	tag, err := d.dbPool.Exec(ctx, `
        UPDATE order_items
        SET service_id = $3, quantity = $4, price_per_unit = $5, subtotal = $6,
            started_at = $7, status = $8
        WHERE id = $1 AND status = $2 AND quantity IS NULL
    `, itemID, expect, w.ServiceID, w.Quantity, w.PricePerUnit, w.Subtotal, w.StartedAt, models.StatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (d *OrderDB) UpdateItemStatus(ctx context.Context, itemID string, from, to models.Status, completedAt *time.Time) (bool, error) {
	tag, err := d.dbPool.Exec(ctx, `
        UPDATE order_items
        SET status = $3, completed_at = $4
        WHERE id = $1 AND status = $2
    `, itemID, from, to, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (d *OrderDB) DeleteItem(ctx context.Context, id string) error {
	_, err := d.dbPool.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, id)
	return err
}

func (d *OrderDB) InsertHistory(ctx context.Context, h *models.OrderHistory) error {
	location, err := encodeLocation(h.DeliveryLocation)
	if err != nil {
		return err
	}

	_, err = d.dbPool.Exec(ctx, `
        INSERT INTO order_history (id, order_id, branch_id, customer_id, customer_name, customer_contact,
                                   method, service_id, service_name, detergent, softener, delivery_location,
                                   weight, price_per_unit, price, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
    `, h.ID, h.OrderID, h.BranchID, h.CustomerID, h.CustomerName, h.CustomerContact,
		h.Method, h.ServiceID, h.ServiceName, h.Detergent, h.Softener, location,
		h.Weight, h.PricePerUnit, h.Price, h.CreatedAt, h.CompletedAt)
	return mapErr(err)
}

func (d *OrderDB) ListHistory(ctx context.Context, branchID string, limit int) ([]models.OrderHistory, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT id, order_id, branch_id, customer_id, customer_name, customer_contact, method,
               service_id, service_name, detergent, softener, delivery_location,
               weight, price_per_unit, price, created_at, completed_at
        FROM order_history
        WHERE branch_id = $1
        ORDER BY completed_at DESC
        LIMIT $2
    `, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.OrderHistory
	for rows.Next() {
		var h models.OrderHistory
		var location []byte
		if err := rows.Scan(&h.ID, &h.OrderID, &h.BranchID, &h.CustomerID, &h.CustomerName, &h.CustomerContact,
			&h.Method, &h.ServiceID, &h.ServiceName, &h.Detergent, &h.Softener, &location,
			&h.Weight, &h.PricePerUnit, &h.Price, &h.CreatedAt, &h.CompletedAt); err != nil {
			return nil, err
		}
		if h.DeliveryLocation, err = decodeLocation(location); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (d *OrderDB) GetService(ctx context.Context, id string) (*models.Service, error) {
	var svc models.Service
	err := d.dbPool.QueryRow(ctx, `
        SELECT id, branch_id, name, price_per_kg FROM services WHERE id = $1
    `, id).Scan(&svc.ID, &svc.BranchID, &svc.Name, &svc.PricePerKg)
	if err != nil {
		return nil, mapErr(err)
	}
	return &svc, nil
}

func (d *OrderDB) LogStatus(ctx context.Context, entry models.OrderStatusLog) error {
	_, err := d.dbPool.Exec(ctx, `
        INSERT INTO order_status_log (order_id, status, changed_by, changed_at, notes)
        VALUES ($1, $2, $3, $4, $5)
    `, entry.OrderID, entry.Status, entry.ChangedBy, entry.ChangedAt, entry.Notes)
	return err
}

// IsAssigned reports whether the employee works at the branch.
func (d *OrderDB) IsArchived(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := d.dbPool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM order_history WHERE order_id = $1)
    `, orderID).Scan(&ok)
	return ok, err
}

func (d *OrderDB) IsAssigned(ctx context.Context, employeeID, branchID string) (bool, error) {
	var ok bool
	err := d.dbPool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM branch_employees WHERE branch_id = $1 AND employee_id = $2)
    `, branchID, employeeID).Scan(&ok)
	return ok, err
}

type orderRow struct {
	order    models.Order
	location []byte
}

func (r *orderRow) dest() []any {
	o := &r.order
	return []any{&o.ID, &o.BranchID, &o.CustomerID, &o.CustomerName, &o.CustomerContact, &o.Method,
		&o.ServiceID, &o.Detergent, &o.Softener, &r.location, &o.CreatedAt}
}

func (r *orderRow) model() (*models.Order, error) {
	loc, err := decodeLocation(r.location)
	if err != nil {
		return nil, err
	}
	order := r.order
	order.DeliveryLocation = loc
	return &order, nil
}

// nullableItemRow scans an item that may come from the outer side of a join.
type nullableItemRow struct {
	id, orderID, status *string
	serviceID           *string
	quantity, price     decimal.NullDecimal
	subtotal            decimal.NullDecimal
	startedAt           *time.Time
	completedAt         *time.Time
}

func (r *nullableItemRow) dest() []any {
	return []any{&r.id, &r.orderID, &r.serviceID, &r.quantity, &r.price, &r.subtotal,
		&r.status, &r.startedAt, &r.completedAt}
}

func (r *nullableItemRow) model() *models.OrderItem {
	if r.id == nil {
		return nil
	}
	item := &models.OrderItem{
		ID:          *r.id,
		OrderID:     *r.orderID,
		ServiceID:   r.serviceID,
		Status:      models.Status(*r.status),
		StartedAt:   r.startedAt,
		CompletedAt: r.completedAt,
	}
	item.Quantity = nullable(r.quantity)
	item.PricePerUnit = nullable(r.price)
	item.Subtotal = nullable(r.subtotal)
	return item
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o orderRow
	if err := row.Scan(o.dest()...); err != nil {
		return nil, err
	}
	return o.model()
}

func encodeLocation(loc *models.Location) ([]byte, error) {
	if loc == nil {
		return nil, nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("encode delivery location: %w", err)
	}
	return data, nil
}

func decodeLocation(data []byte) (*models.Location, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var loc models.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("decode delivery location: %w", err)
	}
	return &loc, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return lifecycle.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", lifecycle.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
