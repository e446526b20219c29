package dispatch

import (
	"time"

	"github.com/sirupsen/logrus"

	"go-bus/pkg/bus"
)

// OnConsumedFunc is called after a consumer type completed.
type OnConsumedFunc func(rc *bus.ReceiveContext, messageType, consumerType string, duration time.Duration)

// OnFaultedFunc is called after a consumer type faulted, in any phase.
type OnFaultedFunc func(rc *bus.ReceiveContext, messageType, consumerType string, fault error)

// OnPostDispatchFaultFunc is called for each failed PostDispatch hook.
type OnPostDispatchFaultFunc func(rc *bus.ReceiveContext, messageType, consumerType string, err error)

// OnFaultHandlerFaultFunc is called for each failed DispatchFaulted hook,
// with the original consumer fault.
type OnFaultHandlerFaultFunc func(rc *bus.ReceiveContext, messageType, consumerType string, fault, err error)

type hooks struct {
	onConsumed          []OnConsumedFunc
	onFaulted           []OnFaultedFunc
	onPostDispatchFault []OnPostDispatchFaultFunc
	onFaultHandlerFault []OnFaultHandlerFaultFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to the bus logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// Metrics receives the coordinator's counters.
type Metrics interface {
	IncDispatched()
	ObserveDispatch(elapsed time.Duration)
	IncConsumed()
	IncConsumeFaulted()
	IncPostDispatchFaulted()
	IncFaultHandlerFaulted()
}

// WithMetrics sets the metrics collector. Defaults to in-memory metrics.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithConsumeTimeout cancels the receive context once d has elapsed.
// Cancellation is cooperative; running hooks are not interrupted.
func WithConsumeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithConcurrency bounds how many consumer types of one message run at once.
// Zero or less means unbounded.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		c.concurrency = n
	}
}

// WithOnConsumed adds a hook called after each consumer type completes.
// Multiple hooks are called in order.
//
//	dispatch.WithOnConsumed(func(rc *bus.ReceiveContext, mt, ct string, d time.Duration) {
//	    logger.WithField("consumer", ct).Info("consumed")
//	})
func WithOnConsumed(fn OnConsumedFunc) Option {
	return func(c *Coordinator) {
		c.hooks.onConsumed = append(c.hooks.onConsumed, fn)
	}
}

// WithOnFaulted adds a hook called after each consumer type faults.
func WithOnFaulted(fn OnFaultedFunc) Option {
	return func(c *Coordinator) {
		c.hooks.onFaulted = append(c.hooks.onFaulted, fn)
	}
}

// WithOnPostDispatchFault adds a hook called for each PostDispatch failure.
func WithOnPostDispatchFault(fn OnPostDispatchFaultFunc) Option {
	return func(c *Coordinator) {
		c.hooks.onPostDispatchFault = append(c.hooks.onPostDispatchFault, fn)
	}
}

// WithOnFaultHandlerFault adds a hook called for each DispatchFaulted failure.
func WithOnFaultHandlerFault(fn OnFaultHandlerFaultFunc) Option {
	return func(c *Coordinator) {
		c.hooks.onFaultHandlerFault = append(c.hooks.onFaultHandlerFault, fn)
	}
}
