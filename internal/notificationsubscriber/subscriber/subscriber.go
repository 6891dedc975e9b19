package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wheres-my-laundry/internal/notificationsubscriber/message"
	"wheres-my-laundry/pkg/config"
	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"
	"wheres-my-laundry/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

const consumerTag = "notification-subscriber"

type Store interface {
	SaveNotification(ctx context.Context, n *models.Notification) (bool, error)
	MarkPushed(ctx context.Context, id string, at time.Time) error
}

type Pusher interface {
	Push(ctx context.Context, n *models.Notification) error
}

type NotificationSubscriber struct {
	config      *config.Config
	logger      *logger.Logger
	rabbitMQ    *rabbitmq.RabbitMQ
	store       Store
	pusher      Pusher
	msgParser   *message.MessageParser
	concurrency int
	now         func() time.Time
}

func NewNotificationSubscriber(cfg *config.Config, store Store, pusher Pusher, logger *logger.Logger, concurrency int) *NotificationSubscriber {
	if concurrency < 1 {
		concurrency = 1
	}
	return &NotificationSubscriber{
		config:      cfg,
		logger:      logger,
		store:       store,
		pusher:      pusher,
		msgParser:   message.NewMessageParser(logger),
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start consumes the notifications queue until ctx is cancelled. Deliveries are
// processed concurrently up to the configured limit and acknowledged manually.
func (s *NotificationSubscriber) Start(ctx context.Context) error {
	rmq, err := rabbitmq.ConnectRabbitMQ(&s.config.RabbitMQ, s.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	s.rabbitMQ = rmq

	if err := rmq.Channel.Qos(s.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	messages, err := rmq.Channel.Consume(
		rabbitmq.NotificationsQueue, // queue
		consumerTag,                 // consumer
		false,                       // auto-ack
		false,                       // exclusive
		false,                       // no-local
		false,                       // no-wait
		nil,                         // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	s.logger.Info("startup", "subscriber_started", "Notification subscriber started successfully")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case msg, ok := <-messages:
			if !ok {
				g.Wait()
				return fmt.Errorf("message channel closed")
			}
			g.Go(func() error {
				s.handleDelivery(gctx, msg)
				return nil
			})
		}
	}
}

func (s *NotificationSubscriber) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	err := s.Process(ctx, msg.Body)
	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			s.logger.Error("message_processing", "ack_failed", "Failed to acknowledge message", ackErr)
		}
	case errors.Is(err, message.ErrMalformed):
		s.logger.Error("message_processing", "message_rejected", "Dead-lettering malformed notification", err)
		msg.Nack(false, false)
	default:
		s.logger.Error("message_processing", "process_failed", "Failed to process message, requeueing", err)
		msg.Nack(false, !msg.Redelivered)
	}
}

// Process persists one notification and performs the push attempt. A push
// failure leaves the row unpushed and is not returned; only parse and storage
// failures are.
func (s *NotificationSubscriber) Process(ctx context.Context, body []byte) error {
	n, err := s.msgParser.ParseNotification(body)
	if err != nil {
		return err
	}

	inserted, err := s.store.SaveNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("persist notification %s: %w", n.ID, err)
	}
	if !inserted {
		s.logger.Debug("message_processing", "notification_duplicate",
			fmt.Sprintf("Notification %s already stored, skipping push", n.ID))
		return nil
	}

	if err := s.pusher.Push(ctx, n); err != nil {
		s.logger.Error("message_processing", "push_failed",
			fmt.Sprintf("Failed to push notification %s to %s", n.ID, n.Recipient), err)
		return nil
	}

	if err := s.store.MarkPushed(ctx, n.ID, s.now()); err != nil {
		s.logger.Error("message_processing", "mark_pushed_failed",
			fmt.Sprintf("Failed to mark notification %s as pushed", n.ID), err)
	}

	s.logger.Debug("message_processing", "notification_displayed",
		fmt.Sprintf("Displayed notification %q for order %s", n.Title, n.Payload.OrderID))
	return nil
}

func (s *NotificationSubscriber) Stop() {
	if s.rabbitMQ != nil {
		s.rabbitMQ.Close()
	}
}
