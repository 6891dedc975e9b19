package db

import (
	"context"
	"encoding/json"
	"time"

	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewNotificationDB(dbPool *pgxpool.Pool, logger *logger.Logger) *NotificationDB {
	return &NotificationDB{
		dbPool: dbPool,
		logger: logger,
	}
}

// SaveNotification stores n once. A redelivered message reports false.
func (d *NotificationDB) SaveNotification(ctx context.Context, n *models.Notification) (bool, error) {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return false, err
	}

	tag, err := d.dbPool.Exec(ctx, `
        INSERT INTO notifications (id, recipient, title, body, payload, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING
    `, n.ID, n.Recipient, n.Title, n.Body, payload, n.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (d *NotificationDB) MarkPushed(ctx context.Context, id string, at time.Time) error {
	_, err := d.dbPool.Exec(ctx, `UPDATE notifications SET pushed_at = $2 WHERE id = $1`, id, at)
	return err
}
