package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"
)

// Notifier performs the push attempt. The push transport is a console line per
// notification; device delivery lives outside this system.
type Notifier struct {
	out    io.Writer
	logger *logger.Logger
}

func NewNotifier(logger *logger.Logger) *Notifier {
	return NewNotifierTo(os.Stdout, logger)
}

func NewNotifierTo(out io.Writer, logger *logger.Logger) *Notifier {
	return &Notifier{
		out:    out,
		logger: logger,
	}
}

func (n *Notifier) Push(ctx context.Context, notification *models.Notification) error {
	message := fmt.Sprintf("Notification for %s [order %s, %s]: %s - %s",
		notification.Recipient,
		notification.Payload.OrderID,
		notification.Payload.Status,
		notification.Title,
		notification.Body,
	)

	if loc := notification.Payload.DeliveryLocation; loc != nil {
		message += fmt.Sprintf(". Deliver to %s (%.5f, %.5f)", loc.Address, loc.Latitude, loc.Longitude)
	}
	if !notification.CreatedAt.IsZero() {
		message += fmt.Sprintf(" at %s", notification.CreatedAt.Format(time.RFC3339))
	}

	if _, err := fmt.Fprintln(n.out, message); err != nil {
		return err
	}
	n.logger.Debug(logger.RequestID(ctx), "notification_pushed", "Pushed notification "+notification.ID)
	return nil
}
