package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/tidwall/gjson"

	"go-bus/pkg/bus"
)

// envelopeMessagePath is where the payload sits inside a bus envelope.
const envelopeMessagePath = "message"

type namedConsumer[T any] struct {
	name     string
	consumer bus.Consumer[T]
}

// typedPipe holds the interceptors and consumers of one message type.
type typedPipe[T any] struct {
	messageType  string
	interceptors []bus.Interceptor[T]
	consumers    []namedConsumer[T]
}

func (p *typedPipe[T]) consumerCount() int {
	return len(p.consumers)
}

// run drives one consumer type through PreDispatch, the consumer, and then
// either PostDispatch or DispatchFaulted. Exactly one terminal status is set.
func (p *typedPipe[T]) run(rc *bus.ReceiveContext, consumer int, ct *bus.ContentType, raw []byte) (res ConsumerResult) {
	c := p.consumers[consumer]
	res = ConsumerResult{MessageType: p.messageType, ConsumerType: c.name}

	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	fault := func(phase Phase, err error) {
		res.Status = StatusFaulted
		res.Phase = phase
		res.Fault = &FaultError{Phase: phase, MessageType: p.messageType, ConsumerType: c.name, Err: err}
	}

	msg, err := decode[T](ct, raw)
	if err != nil {
		fault(PhaseDeserialize, err)
		return res
	}

	cc := &bus.ConsumeContext[T]{
		ReceiveContext: rc,
		MessageType:    p.messageType,
		ConsumerType:   c.name,
		Message:        msg,
	}

	for _, ic := range p.interceptors {
		if err := call(func() error { return ic.PreDispatch(cc) }); err != nil {
			fault(PhasePreDispatch, err)
			return res
		}
	}

	if err := call(func() error { return c.consumer.Consume(cc) }); err != nil {
		fault(PhaseDispatch, err)
		for _, ic := range p.interceptors {
			if herr := call(func() error { return ic.DispatchFaulted(cc, err) }); herr != nil {
				res.FaultHandlerFaults = append(res.FaultHandlerFaults, herr)
			}
		}
		return res
	}

	res.Status = StatusCompleted
	for _, ic := range p.interceptors {
		if err := call(func() error { return ic.PostDispatch(cc) }); err != nil {
			res.PostDispatchFaults = append(res.PostDispatchFaults, err)
		}
	}
	return res
}

// call runs fn, turning a panic into a *PanicError.
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// decode turns the raw body into T. Envelope bodies carry the payload under
// "message"; []byte and json.RawMessage targets receive the payload as is.
func decode[T any](ct *bus.ContentType, raw []byte) (T, error) {
	var msg T

	payload := raw
	if ct.IsEnvelope() {
		if r := gjson.GetBytes(raw, envelopeMessagePath); r.Exists() {
			payload = []byte(r.Raw)
		}
	}

	switch p := any(&msg).(type) {
	case *[]byte:
		*p = bytes.Clone(payload)
		return msg, nil
	case *json.RawMessage:
		*p = bytes.Clone(payload)
		return msg, nil
	}

	if !ct.IsJSON() {
		return msg, fmt.Errorf("%w: unsupported content type %s", ErrDeserialize, ct.MediaType)
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return msg, nil
}
