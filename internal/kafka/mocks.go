package kafka

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"go-bus/pkg/bus"
	"go-bus/pkg/dispatch"

	kafka "github.com/segmentio/kafka-go"
)

// MockProducer is a mock implementation of ProducerClient for testing
type MockProducer struct {
	mu                sync.RWMutex
	PublishedMessages []PublishedMessage
	PublishFunc       func(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
	CloseFunc         func() error
	FailCount         int
	failureCounter    int
}

type PublishedMessage struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func NewMockProducer() *MockProducer {
	return &MockProducer{
		PublishedMessages: make([]PublishedMessage, 0),
	}
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, key, value, headers)
	}

	// Simulate failures for testing retry logic
	if m.FailCount > 0 {
		m.failureCounter++
		if m.failureCounter <= m.FailCount {
			return fmt.Errorf("simulated publish failure %d", m.failureCounter)
		}
	}

	m.PublishedMessages = append(m.PublishedMessages, PublishedMessage{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
	})

	return nil
}

func (m *MockProducer) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockProducer) GetPublishedMessages() []PublishedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := make([]PublishedMessage, len(m.PublishedMessages))
	copy(messages, m.PublishedMessages)
	return messages
}

func (m *MockProducer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishedMessages = make([]PublishedMessage, 0)
	m.failureCounter = 0
}

// MockDedupeStore is a mock implementation of DedupeStore for testing
type MockDedupeStore struct {
	mu          sync.RWMutex
	ExistsFunc  func(messageID string) bool
	AddFunc     func(messageID string) error
	existingIDs map[string]bool
}

func NewMockDedupeStore() *MockDedupeStore {
	return &MockDedupeStore{
		existingIDs: make(map[string]bool),
	}
}

func (m *MockDedupeStore) Exists(messageID string) bool {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(messageID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.existingIDs[messageID]
}

func (m *MockDedupeStore) Add(messageID string) error {
	if m.AddFunc != nil {
		return m.AddFunc(messageID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingIDs[messageID] = true
	return nil
}

func (m *MockDedupeStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingIDs = make(map[string]bool)
}

// MockReader is a MessageReader that serves queued messages and then
// returns io.EOF.
type MockReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
	CommitErr error
	closed    bool
}

func NewMockReader(msgs ...kafka.Message) *MockReader {
	return &MockReader{messages: msgs}
}

func (m *MockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if m.closed || len(m.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, nil
}

func (m *MockReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockReader) Committed() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]kafka.Message, len(m.committed))
	copy(out, m.committed)
	return out
}

// MockWriter is a MessageWriter recording written messages.
type MockWriter struct {
	mu        sync.Mutex
	Written   []kafka.Message
	FailCount int
	calls     int
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.FailCount {
		return fmt.Errorf("simulated write failure %d", m.calls)
	}
	m.Written = append(m.Written, msgs...)
	return nil
}

func (m *MockWriter) Close() error {
	return nil
}

func (m *MockWriter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockDispatcher returns a fixed outcome, or the result of DispatchFunc.
type MockDispatcher struct {
	mu           sync.Mutex
	DispatchFunc func(ctx context.Context, msg bus.NativeMessage, inputAddress *url.URL) *dispatch.Outcome
	Outcome      *dispatch.Outcome
	calls        int
}

func (m *MockDispatcher) Dispatch(ctx context.Context, msg bus.NativeMessage, inputAddress *url.URL) *dispatch.Outcome {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, msg, inputAddress)
	}
	if m.Outcome != nil {
		return m.Outcome
	}
	return &dispatch.Outcome{Status: dispatch.StatusCompleted}
}

func (m *MockDispatcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
