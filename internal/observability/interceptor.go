package observability

import (
	"github.com/sirupsen/logrus"

	"go-bus/pkg/bus"
)

// LoggingInterceptor logs every dispatch phase of a message type.
type LoggingInterceptor[T any] struct {
	logger *logrus.Entry
}

// NewLoggingInterceptor returns a LoggingInterceptor writing to the bus logger
// when logger is nil.
func NewLoggingInterceptor[T any](logger *logrus.Entry) *LoggingInterceptor[T] {
	if logger == nil {
		logger = Component("interceptor")
	}
	return &LoggingInterceptor[T]{logger: logger}
}

func (i *LoggingInterceptor[T]) PreDispatch(ctx *bus.ConsumeContext[T]) error {
	i.entry(ctx).Debug("Dispatching message")
	return nil
}

func (i *LoggingInterceptor[T]) PostDispatch(ctx *bus.ConsumeContext[T]) error {
	i.entry(ctx).WithField("elapsed", ctx.ElapsedTime()).Info("Message dispatched")
	return nil
}

func (i *LoggingInterceptor[T]) DispatchFaulted(ctx *bus.ConsumeContext[T], fault error) error {
	i.entry(ctx).WithField("elapsed", ctx.ElapsedTime()).WithError(fault).Warn("Message dispatch faulted")
	return nil
}

func (i *LoggingInterceptor[T]) entry(ctx *bus.ConsumeContext[T]) *logrus.Entry {
	fields := logrus.Fields{
		"message_type":  ctx.MessageType,
		"consumer_type": ctx.ConsumerType,
	}
	if tc, ok := ctx.Transport(); ok {
		fields["delivery_count"] = tc.DeliveryCount()
		fields["redelivered"] = tc.Redelivered()
		fields["sequence_number"] = tc.SequenceNumber()
	}
	return i.logger.WithFields(fields)
}
