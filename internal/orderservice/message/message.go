package message

import (
	"context"
	"encoding/json"
	"fmt"

	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"
	"wheres-my-laundry/pkg/rabbitmq"
)

// Publisher is the part of the broker connection used to send notifications.
type Publisher interface {
	PublishMessage(ctx context.Context, exchange, routingKey string, message []byte) error
}

type MessageService struct {
	publisher Publisher
	logger    *logger.Logger
}

func NewMessageService(publisher Publisher, logger *logger.Logger) *MessageService {
	return &MessageService{
		publisher: publisher,
		logger:    logger,
	}
}

// Notify publishes the notification to the fanout exchange the gateway consumes.
func (m *MessageService) Notify(ctx context.Context, n models.Notification) error {
	messageBytes, err := json.Marshal(n)
	if err != nil {
		return err
	}

	routingKey := fmt.Sprintf("notification.%s.%s", n.Payload.Method, n.Payload.Status)
	if err := m.publisher.PublishMessage(ctx, rabbitmq.NotificationsExchange, routingKey, messageBytes); err != nil {
		return err
	}

	m.logger.Debug(logger.RequestID(ctx), "notification_published",
		fmt.Sprintf("Notification %q for order %s published with routing key: %s", n.Title, n.Payload.OrderID, routingKey))
	return nil
}

// LogNotifier writes notifications to the service log. Used when the service
// runs without a broker.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n models.Notification) error {
	l.logger.Info(logger.RequestID(ctx), "notification_logged",
		fmt.Sprintf("%s -> %s: %s", n.Title, n.Recipient, n.Body))
	return nil
}
