package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-bus/internal/observability"
	"go-bus/pkg/bus"
)

// Coordinator builds the receive context of each delivered message, runs
// the interceptor chain around every consumer type registered for the
// message's types, and reports one outcome back to the transport.
//
// Coordinator is safe for concurrent use; each Dispatch is independent.
type Coordinator struct {
	registry    *Registry
	logger      *logrus.Entry
	metrics     Metrics
	timeout     time.Duration
	concurrency int
	hooks       hooks

	mu       sync.Mutex
	closed   bool
	inflight map[*bus.ReceiveContext]struct{}
}

// New creates a Coordinator over registry and freezes it.
func New(registry *Registry, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		logger:   observability.Component("dispatch"),
		metrics:  observability.NewInMemoryMetrics(),
		inflight: make(map[*bus.ReceiveContext]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	registry.freeze()
	return c
}

// Dispatch processes one native message and returns its outcome.
//
// The processing flow:
//  1. Build the receive context (starts the elapsed-time clock)
//  2. Resolve content type, encoding and message types; malformed headers
//     fault the message without dispatching
//  3. Run every consumer type registered for those message types, each with
//     its own PreDispatch -> consume -> PostDispatch|DispatchFaulted sequence
//  4. Aggregate: faulted if any consumer type faulted
//
// Cancelling ctx, the consume timeout and Close all cancel the receive
// context; consumers and interceptors observe it cooperatively.
func (c *Coordinator) Dispatch(ctx context.Context, msg bus.NativeMessage, inputAddress *url.URL) *Outcome {
	rc := bus.NewReceiveContext(msg, inputAddress)
	c.metrics.IncDispatched()

	outcome := c.dispatch(ctx, rc)
	outcome.Elapsed = rc.ElapsedTime()
	c.metrics.ObserveDispatch(outcome.Elapsed)

	// released; nothing observes the context past this point
	rc.Cancel(context.Canceled)
	return outcome
}

func (c *Coordinator) dispatch(ctx context.Context, rc *bus.ReceiveContext) *Outcome {
	if !c.track(rc) {
		return messageFault(ErrCoordinatorClosed)
	}
	defer c.untrack(rc)

	stop := context.AfterFunc(ctx, func() {
		rc.Cancel(fmt.Errorf("%w: %w", ErrShutdown, context.Cause(ctx)))
	})
	defer stop()

	if c.timeout > 0 {
		timer := time.AfterFunc(c.timeout, func() { rc.Cancel(ErrConsumeTimeout) })
		defer timer.Stop()
	}

	logger := c.logger
	if addr := rc.InputAddress(); addr != nil {
		logger = logger.WithField("input_address", addr.String())
	}

	ct, err := rc.ContentType()
	if err == nil {
		_, err = rc.ContentEncoding()
	}
	if err != nil {
		logger.WithError(err).Error("Malformed message headers, message not dispatched")
		return messageFault(err)
	}

	raw, err := io.ReadAll(rc.Body())
	if err != nil {
		return messageFault(err)
	}

	messageTypes, err := resolveMessageTypes(rc.Headers(), ct, raw)
	if err != nil {
		logger.WithError(err).Error("Malformed message type, message not dispatched")
		return messageFault(err)
	}

	logger = logger.WithFields(logrus.Fields{
		"content_type":  ct.String(),
		"message_types": messageTypes,
	})

	targets := c.registry.targets(messageTypes)
	if len(targets) == 0 {
		logger.Warn("No consumers registered for message")
		out := messageFault(ErrNoConsumers)
		out.MessageTypes = messageTypes
		return out
	}

	results := make([]ConsumerResult, len(targets))
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = t.pipe.run(rc, t.consumer, ct, raw)
			return nil
		})
	}
	_ = g.Wait()

	outcome := &Outcome{
		Status:       StatusCompleted,
		MessageTypes: messageTypes,
		Results:      results,
	}

	var faults []error
	for _, res := range results {
		c.report(rc, logger, res)
		if res.Status == StatusFaulted {
			faults = append(faults, res.Fault)
		}
	}
	if len(faults) > 0 {
		outcome.Status = StatusFaulted
		outcome.Fault = errors.Join(faults...)
	}
	return outcome
}

// report surfaces one consumer result through logs, metrics and hooks.
func (c *Coordinator) report(rc *bus.ReceiveContext, logger *logrus.Entry, res ConsumerResult) {
	logger = logger.WithFields(logrus.Fields{
		"message_type":  res.MessageType,
		"consumer_type": res.ConsumerType,
		"duration":      res.Duration,
	})

	switch res.Status {
	case StatusCompleted:
		c.metrics.IncConsumed()
		logger.Debug("Message consumed")
		for _, fn := range c.hooks.onConsumed {
			c.runHook(logger, "OnConsumed", func() { fn(rc, res.MessageType, res.ConsumerType, res.Duration) })
		}
	case StatusFaulted:
		c.metrics.IncConsumeFaulted()
		entry := logger.WithField("phase", res.Phase.String()).WithError(res.Fault)
		var perr *PanicError
		if errors.As(res.Fault, &perr) {
			entry = entry.WithField("stack", string(perr.Stack))
		}
		entry.Error("Message consumption faulted")
		for _, fn := range c.hooks.onFaulted {
			c.runHook(logger, "OnFaulted", func() { fn(rc, res.MessageType, res.ConsumerType, res.Fault) })
		}
	}

	for _, err := range res.PostDispatchFaults {
		c.metrics.IncPostDispatchFaulted()
		logger.WithError(err).Warn("PostDispatch interceptor failed")
		for _, fn := range c.hooks.onPostDispatchFault {
			c.runHook(logger, "OnPostDispatchFault", func() { fn(rc, res.MessageType, res.ConsumerType, err) })
		}
	}

	for _, err := range res.FaultHandlerFaults {
		c.metrics.IncFaultHandlerFaulted()
		logger.WithError(err).Warn("DispatchFaulted interceptor failed")
		for _, fn := range c.hooks.onFaultHandlerFault {
			c.runHook(logger, "OnFaultHandlerFault", func() { fn(rc, res.MessageType, res.ConsumerType, res.Fault, err) })
		}
	}
}

// runHook calls a user hook; a panic is logged and does not escape dispatch.
func (c *Coordinator) runHook(logger *logrus.Entry, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"hook":  name,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Dispatch hook panicked")
		}
	}()
	fn()
}

// Close stops accepting dispatches and cancels the receive context of every
// in-flight message. It does not wait for them to finish.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for rc := range c.inflight {
		rc.Cancel(ErrShutdown)
	}
	c.logger.WithField("inflight", len(c.inflight)).Info("Coordinator closed")
	return nil
}

// InFlight returns the number of messages being dispatched.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Coordinator) track(rc *bus.ReceiveContext) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.inflight[rc] = struct{}{}
	return true
}

func (c *Coordinator) untrack(rc *bus.ReceiveContext) {
	c.mu.Lock()
	delete(c.inflight, rc)
	c.mu.Unlock()
}
