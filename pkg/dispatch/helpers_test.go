package dispatch

import (
	"fmt"
	"sync"

	"go-bus/pkg/bus"
)

const orderSubmitted = "urn:message:OrderSubmitted"

type order struct {
	ID string `json:"order_id"`
}

type testMessage struct {
	body  []byte
	props map[string]any
}

func (m *testMessage) Body() []byte               { return m.body }
func (m *testMessage) Properties() map[string]any { return m.props }

// jsonMessage is a plain JSON message declaring its type in the header.
func jsonMessage(body string, messageTypes string) *testMessage {
	return &testMessage{
		body: []byte(body),
		props: map[string]any{
			bus.HeaderContentType: "application/json",
			HeaderMessageType:     messageTypes,
		},
	}
}

// envelopeMessage is a bus envelope without headers.
func envelopeMessage(body string) *testMessage {
	return &testMessage{body: []byte(body), props: map[string]any{}}
}

// recorder collects hook events in call order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// recordingInterceptor records its hooks under name and fails the ones asked to.
func recordingInterceptor[T any](rec *recorder, name string, failPre, failPost, failFault bool) bus.InterceptorFuncs[T] {
	return bus.InterceptorFuncs[T]{
		Pre: func(ctx *bus.ConsumeContext[T]) error {
			rec.add("%s.Pre", name)
			if failPre {
				return fmt.Errorf("%s pre failed", name)
			}
			return nil
		},
		Post: func(ctx *bus.ConsumeContext[T]) error {
			rec.add("%s.Post", name)
			if failPost {
				return fmt.Errorf("%s post failed", name)
			}
			return nil
		},
		Fault: func(ctx *bus.ConsumeContext[T], fault error) error {
			rec.add("%s.Fault(%v)", name, fault)
			if failFault {
				return fmt.Errorf("%s fault handler failed", name)
			}
			return nil
		},
	}
}
