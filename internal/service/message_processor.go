package service

import (
	"errors"
	"fmt"

	"go-bus/internal/observability"
	"go-bus/pkg/bus"

	"github.com/sirupsen/logrus"
)

// ConsumerType is the consumer type name MessageProcessor registers under.
const ConsumerType = "message-processor"

// ErrEmptyMessage is returned for payloads without any field.
var ErrEmptyMessage = errors.New("empty message")

// MessageProcessor handles business logic for processing messages
type MessageProcessor struct {
	logger *logrus.Entry
}

var _ bus.Consumer[map[string]any] = (*MessageProcessor)(nil)

func NewMessageProcessor() *MessageProcessor {
	return &MessageProcessor{
		logger: observability.Component(ConsumerType),
	}
}

// Consume handles the business logic for a consumed message
func (p *MessageProcessor) Consume(ctx *bus.ConsumeContext[map[string]any]) error {
	fields := logrus.Fields{
		"message_type": ctx.MessageType,
		"fields":       len(ctx.Message),
	}
	if tc, ok := ctx.Transport(); ok {
		fields["partition_key"] = tc.PartitionKey()
		fields["redelivered"] = tc.Redelivered()
	}
	p.logger.WithFields(fields).Info("Processing message")

	// Err carries the cancellation cause, e.g. shutdown or consume timeout
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("processing cancelled: %w", err)
	}
	if len(ctx.Message) == 0 {
		return ErrEmptyMessage
	}

	// Example business logic
	// In a real application, this would:
	// - Validate data
	// - Store in database
	// - Call external APIs

	p.logger.WithFields(logrus.Fields{
		"message_type": ctx.MessageType,
		"data":         ctx.Message,
	}).Debug("Message processed successfully")

	return nil
}
