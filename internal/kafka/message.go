package kafka

import (
	"fmt"
	"strconv"
	"time"

	"go-bus/pkg/bus"
	"go-bus/pkg/models"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
)

// lockNamespace scopes the lock tokens derived from Kafka coordinates.
var lockNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kafka://go-bus/lock"))

// Message adapts a kafka-go message to the bus native message contract.
// Label and To are stored in, and written to, the Kafka header slice.
type Message struct {
	msg *kafka.Message
}

var (
	_ bus.NativeMessage    = (*Message)(nil)
	_ bus.TransportMessage = (*Message)(nil)
)

// NewMessage wraps msg. Mutations through SetLabel and SetTo modify msg.
func NewMessage(msg *kafka.Message) *Message {
	return &Message{msg: msg}
}

// Kafka returns the wrapped kafka-go message.
func (m *Message) Kafka() *kafka.Message {
	return m.msg
}

func (m *Message) Body() []byte {
	return m.msg.Value
}

// Properties returns the Kafka headers as a property bag. A header present
// more than once keeps its last value.
func (m *Message) Properties() map[string]any {
	props := make(map[string]any, len(m.msg.Headers))
	for _, h := range m.msg.Headers {
		props[h.Key] = string(h.Value)
	}
	return props
}

func (m *Message) header(key string) (string, bool) {
	for i := len(m.msg.Headers) - 1; i >= 0; i-- {
		if m.msg.Headers[i].Key == key {
			return string(m.msg.Headers[i].Value), true
		}
	}
	return "", false
}

func (m *Message) setHeader(key, value string) {
	for i := len(m.msg.Headers) - 1; i >= 0; i-- {
		if m.msg.Headers[i].Key == key {
			m.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	m.msg.Headers = append(m.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

// RetryCount returns the number of times the message was republished for retry.
func (m *Message) RetryCount() int {
	if v, ok := m.header(models.HeaderRetryCount); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// DeliveryCount counts the original delivery plus every retry.
func (m *Message) DeliveryCount() int {
	return m.RetryCount() + 1
}

func (m *Message) SequenceNumber() int64 {
	return m.msg.Offset
}

func (m *Message) EnqueuedSequenceNumber() int64 {
	return m.msg.Offset
}

// LockToken is derived from topic, partition and offset; Kafka has no
// message locks, so the token only identifies the delivery.
func (m *Message) LockToken() uuid.UUID {
	return uuid.NewSHA1(lockNamespace, []byte(fmt.Sprintf("%s/%d/%d", m.msg.Topic, m.msg.Partition, m.msg.Offset)))
}

func (m *Message) LockedUntil() time.Time {
	return time.Time{}
}

func (m *Message) SessionID() string {
	v, _ := m.header(models.HeaderSessionID)
	return v
}

func (m *Message) ReplyToSessionID() string {
	v, _ := m.header(models.HeaderReplyToSessionID)
	return v
}

func (m *Message) ReplyTo() string {
	v, _ := m.header(models.HeaderReplyTo)
	return v
}

func (m *Message) PartitionKey() string {
	return string(m.msg.Key)
}

func (m *Message) ViaPartitionKey() string {
	v, _ := m.header(models.HeaderViaPartitionKey)
	return v
}

// Size approximates the record size: key, value and headers.
func (m *Message) Size() int64 {
	n := len(m.msg.Key) + len(m.msg.Value)
	for _, h := range m.msg.Headers {
		n += len(h.Key) + len(h.Value)
	}
	return int64(n)
}

func (m *Message) State() bus.MessageState {
	if t := m.ScheduledEnqueueTime(); !t.IsZero() && t.After(m.msg.Time) {
		return bus.MessageStateScheduled
	}
	return bus.MessageStateActive
}

// ForcePersistence is always true; Kafka records are written to the log.
func (m *Message) ForcePersistence() bool {
	return true
}

func (m *Message) EnqueuedTime() time.Time {
	return m.msg.Time
}

func (m *Message) ScheduledEnqueueTime() time.Time {
	v, ok := m.header(models.HeaderScheduledEnqueueTime)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (m *Message) Label() string {
	v, _ := m.header(models.HeaderLabel)
	return v
}

func (m *Message) SetLabel(label string) {
	m.setHeader(models.HeaderLabel, label)
}

func (m *Message) To() string {
	v, _ := m.header(models.HeaderTo)
	return v
}

func (m *Message) SetTo(to string) {
	m.setHeader(models.HeaderTo, to)
}
