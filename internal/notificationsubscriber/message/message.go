package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"wheres-my-laundry/pkg/logger"
	"wheres-my-laundry/pkg/models"
)

// ErrMalformed marks a message that can never be processed and should be
// dead-lettered instead of requeued.
var ErrMalformed = errors.New("malformed notification")

type MessageParser struct {
	logger *logger.Logger
}

func NewMessageParser(logger *logger.Logger) *MessageParser {
	return &MessageParser{
		logger: logger,
	}
}

func (p *MessageParser) ParseNotification(messageBytes []byte) (*models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(messageBytes, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case n.ID == "":
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	case n.Recipient == "":
		return nil, fmt.Errorf("%w: missing recipient", ErrMalformed)
	case n.Title == "":
		return nil, fmt.Errorf("%w: missing title", ErrMalformed)
	case n.Payload.OrderID == "":
		return nil, fmt.Errorf("%w: missing payload order id", ErrMalformed)
	}
	return &n, nil
}
