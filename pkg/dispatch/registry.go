package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go-bus/pkg/bus"
)

var (
	// ErrRegistryFrozen is returned when registering after a coordinator was built.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrTypeMismatch is returned when a message type is registered with two Go types.
	ErrTypeMismatch = errors.New("message type bound to a different Go type")

	// ErrDuplicateConsumer is returned when a consumer type is registered twice
	// for the same message type.
	ErrDuplicateConsumer = errors.New("duplicate consumer type")
)

// pipe is the type-erased view of a typedPipe.
type pipe interface {
	consumerCount() int
	run(rc *bus.ReceiveContext, consumer int, ct *bus.ContentType, raw []byte) ConsumerResult
}

// Registry maps message types to their ordered interceptors and consumers.
//
// Registration must complete before the registry is passed to New; the
// coordinator freezes it and reads it without locking afterwards.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	pipes  map[string]pipe
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipes: make(map[string]pipe)}
}

// AddInterceptor appends i to the interceptors of messageType. Interceptors
// run in the order they were added.
//
// This is a package-level function because methods cannot have type parameters.
//
//	dispatch.AddInterceptor(r, "urn:message:OrderSubmitted", &TracingInterceptor[Order]{})
func AddInterceptor[T any](r *Registry, messageType string, i bus.Interceptor[T]) error {
	if i == nil {
		return errors.New("interceptor is nil")
	}
	return withPipe(r, messageType, func(p *typedPipe[T]) error {
		p.interceptors = append(p.interceptors, i)
		return nil
	})
}

// AddConsumer registers c as consumerType for messageType.
//
//	dispatch.AddConsumer(r, "urn:message:OrderSubmitted", "billing", billingConsumer)
func AddConsumer[T any](r *Registry, messageType, consumerType string, c bus.Consumer[T]) error {
	if c == nil {
		return errors.New("consumer is nil")
	}
	if strings.TrimSpace(consumerType) == "" {
		return errors.New("consumer type cannot be empty")
	}
	return withPipe(r, messageType, func(p *typedPipe[T]) error {
		for _, existing := range p.consumers {
			if existing.name == consumerType {
				return fmt.Errorf("%w: %s for %s", ErrDuplicateConsumer, consumerType, messageType)
			}
		}
		p.consumers = append(p.consumers, namedConsumer[T]{name: consumerType, consumer: c})
		return nil
	})
}

// AddConsumerFunc is a convenience wrapper around AddConsumer.
func AddConsumerFunc[T any](r *Registry, messageType, consumerType string, fn func(ctx *bus.ConsumeContext[T]) error) error {
	return AddConsumer(r, messageType, consumerType, bus.ConsumerFunc[T](fn))
}

func withPipe[T any](r *Registry, messageType string, fn func(p *typedPipe[T]) error) error {
	if strings.TrimSpace(messageType) == "" {
		return errors.New("message type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	existing, ok := r.pipes[messageType]
	if !ok {
		p := &typedPipe[T]{messageType: messageType}
		if err := fn(p); err != nil {
			return err
		}
		r.pipes[messageType] = p
		return nil
	}

	p, ok := existing.(*typedPipe[T])
	if !ok {
		return fmt.Errorf("%w: %s", ErrTypeMismatch, messageType)
	}
	return fn(p)
}

// MessageTypes returns the registered message types, sorted.
func (r *Registry) MessageTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.pipes))
	for t := range r.pipes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// target is one consumer type of one message type.
type target struct {
	pipe     pipe
	consumer int
}

// targets lists the consumer types for the given message types, in message
// type order and then registration order. Must only be called once frozen.
func (r *Registry) targets(messageTypes []string) []target {
	var out []target
	seen := make(map[string]bool, len(messageTypes))
	for _, mt := range messageTypes {
		if seen[mt] {
			continue
		}
		seen[mt] = true

		p, ok := r.pipes[mt]
		if !ok {
			continue
		}
		for i := 0; i < p.consumerCount(); i++ {
			out = append(out, target{pipe: p, consumer: i})
		}
	}
	return out
}
