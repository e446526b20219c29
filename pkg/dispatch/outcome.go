package dispatch

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoConsumers is reported when no consumer is registered for any of the
	// message's types.
	ErrNoConsumers = errors.New("no consumers for message")

	// ErrCoordinatorClosed is reported for dispatches after Close.
	ErrCoordinatorClosed = errors.New("coordinator closed")

	// ErrShutdown is the cancellation cause when the coordinator stops a dispatch.
	ErrShutdown = errors.New("dispatch shutdown")

	// ErrConsumeTimeout is the cancellation cause when the consume timeout elapses.
	ErrConsumeTimeout = errors.New("consume timeout")

	// ErrDeserialize wraps payload decoding failures.
	ErrDeserialize = errors.New("deserialize message")
)

// Status is the terminal state of a dispatch.
type Status int

const (
	StatusCompleted Status = iota
	StatusFaulted
)

func (s Status) String() string {
	if s == StatusCompleted {
		return "completed"
	}
	return "faulted"
}

// Phase identifies where a fault happened.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseReceive
	PhaseDeserialize
	PhasePreDispatch
	PhaseDispatch
)

func (p Phase) String() string {
	switch p {
	case PhaseReceive:
		return "receive"
	case PhaseDeserialize:
		return "deserialize"
	case PhasePreDispatch:
		return "pre-dispatch"
	case PhaseDispatch:
		return "dispatch"
	default:
		return "none"
	}
}

// FaultError describes a fault of one consumer type, or of the whole message
// when MessageType is empty.
type FaultError struct {
	Phase        Phase
	MessageType  string
	ConsumerType string
	Err          error
}

func (e *FaultError) Error() string {
	if e.MessageType == "" {
		return fmt.Sprintf("%s fault: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s fault in %s for %s: %v", e.Phase, e.ConsumerType, e.MessageType, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// PanicError is returned in place of a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error, so errors.Is sees
// through panic(err).
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// ConsumerResult is the outcome for one (message, consumer type) pair.
type ConsumerResult struct {
	MessageType  string
	ConsumerType string
	Status       Status

	// Phase and Fault are set when Status is StatusFaulted.
	Phase Phase
	Fault error

	// PostDispatchFaults are PostDispatch failures after a successful consume.
	// They do not change Status.
	PostDispatchFaults []error

	// FaultHandlerFaults are DispatchFaulted failures. They never replace Fault.
	FaultHandlerFaults []error

	Duration time.Duration
}

// Outcome is reported to the transport once per delivered message.
type Outcome struct {
	Status Status

	// Fault joins the faults of every faulted consumer type, or holds the
	// message-level fault.
	Fault error

	Elapsed      time.Duration
	MessageTypes []string
	Results      []ConsumerResult
}

// Completed reports whether every consumer type completed.
func (o *Outcome) Completed() bool {
	return o.Status == StatusCompleted
}

// SecondaryFaults returns every post-dispatch and fault-handler failure.
func (o *Outcome) SecondaryFaults() []error {
	var errs []error
	for _, r := range o.Results {
		errs = append(errs, r.PostDispatchFaults...)
		errs = append(errs, r.FaultHandlerFaults...)
	}
	return errs
}

func messageFault(err error) *Outcome {
	return &Outcome{
		Status: StatusFaulted,
		Fault:  &FaultError{Phase: PhaseReceive, Err: err},
	}
}
