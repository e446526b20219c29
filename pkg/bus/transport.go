package bus

import (
	"time"

	"github.com/google/uuid"
)

// MessageState is the broker-reported lifecycle state of a message.
type MessageState int

const (
	MessageStateActive MessageState = iota
	MessageStateDeferred
	MessageStateScheduled
)

func (s MessageState) String() string {
	switch s {
	case MessageStateActive:
		return "active"
	case MessageStateDeferred:
		return "deferred"
	case MessageStateScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// TransportMessage is implemented by native messages that expose broker
// lifecycle fields. Label and To are read/write on the native message itself.
type TransportMessage interface {
	DeliveryCount() int
	SequenceNumber() int64
	EnqueuedSequenceNumber() int64
	LockToken() uuid.UUID
	LockedUntil() time.Time
	SessionID() string
	ReplyToSessionID() string
	ReplyTo() string
	PartitionKey() string
	ViaPartitionKey() string
	Size() int64
	State() MessageState
	ForcePersistence() bool
	EnqueuedTime() time.Time
	ScheduledEnqueueTime() time.Time

	Label() string
	SetLabel(label string)
	To() string
	SetTo(to string)
}

// TransportContext exposes the transport fields of a delivered message.
// Writes go straight to the native message; nothing is buffered here.
type TransportContext struct {
	TransportMessage
}

// Redelivered reports whether the broker has delivered the message before.
func (t *TransportContext) Redelivered() bool {
	return t.DeliveryCount() > 1
}
