package observability

import (
	"sync/atomic"
	"time"
)

// MetricsCollector provides hooks for metrics collection
// Can be implemented to integrate with Prometheus, StatsD, etc.
type MetricsCollector interface {
	// transport
	IncReceived()
	IncProcessed()
	IncFailed()
	IncRetried()
	IncSentToDLQ()
	IncDuplicate()
	IncPublished()
	IncPublishFailed()

	// dispatch
	IncDispatched()
	IncConsumed()
	IncConsumeFaulted()
	IncPostDispatchFaulted()
	IncFaultHandlerFaulted()
	ObserveDispatch(elapsed time.Duration)
}

// InMemoryMetrics is a simple in-memory implementation for testing/demo
type InMemoryMetrics struct {
	Received      atomic.Int64
	Processed     atomic.Int64
	Failed        atomic.Int64
	Retried       atomic.Int64
	SentToDLQ     atomic.Int64
	Duplicates    atomic.Int64
	Published     atomic.Int64
	PublishFailed atomic.Int64

	Dispatched           atomic.Int64
	Consumed             atomic.Int64
	ConsumeFaulted       atomic.Int64
	PostDispatchFaulted  atomic.Int64
	FaultHandlerFaulted  atomic.Int64
	dispatchElapsedNanos atomic.Int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) IncReceived()      { m.Received.Add(1) }
func (m *InMemoryMetrics) IncProcessed()     { m.Processed.Add(1) }
func (m *InMemoryMetrics) IncFailed()        { m.Failed.Add(1) }
func (m *InMemoryMetrics) IncRetried()       { m.Retried.Add(1) }
func (m *InMemoryMetrics) IncSentToDLQ()     { m.SentToDLQ.Add(1) }
func (m *InMemoryMetrics) IncDuplicate()     { m.Duplicates.Add(1) }
func (m *InMemoryMetrics) IncPublished()     { m.Published.Add(1) }
func (m *InMemoryMetrics) IncPublishFailed() { m.PublishFailed.Add(1) }

func (m *InMemoryMetrics) IncDispatched()          { m.Dispatched.Add(1) }
func (m *InMemoryMetrics) IncConsumed()            { m.Consumed.Add(1) }
func (m *InMemoryMetrics) IncConsumeFaulted()      { m.ConsumeFaulted.Add(1) }
func (m *InMemoryMetrics) IncPostDispatchFaulted() { m.PostDispatchFaulted.Add(1) }
func (m *InMemoryMetrics) IncFaultHandlerFaulted() { m.FaultHandlerFaulted.Add(1) }

func (m *InMemoryMetrics) ObserveDispatch(elapsed time.Duration) {
	m.dispatchElapsedNanos.Add(int64(elapsed))
}

func (m *InMemoryMetrics) GetReceived() int64 {
	return m.Received.Load()
}

func (m *InMemoryMetrics) GetProcessed() int64 {
	return m.Processed.Load()
}

func (m *InMemoryMetrics) GetFailed() int64 {
	return m.Failed.Load()
}

func (m *InMemoryMetrics) GetRetried() int64 {
	return m.Retried.Load()
}

func (m *InMemoryMetrics) GetSentToDLQ() int64 {
	return m.SentToDLQ.Load()
}

func (m *InMemoryMetrics) GetDuplicates() int64 {
	return m.Duplicates.Load()
}

func (m *InMemoryMetrics) GetPublished() int64 {
	return m.Published.Load()
}

func (m *InMemoryMetrics) GetPublishFailed() int64 {
	return m.PublishFailed.Load()
}

func (m *InMemoryMetrics) GetDispatched() int64 {
	return m.Dispatched.Load()
}

func (m *InMemoryMetrics) GetConsumed() int64 {
	return m.Consumed.Load()
}

func (m *InMemoryMetrics) GetConsumeFaulted() int64 {
	return m.ConsumeFaulted.Load()
}

func (m *InMemoryMetrics) GetPostDispatchFaulted() int64 {
	return m.PostDispatchFaulted.Load()
}

func (m *InMemoryMetrics) GetFaultHandlerFaulted() int64 {
	return m.FaultHandlerFaulted.Load()
}

// AverageDispatch returns the mean dispatch time over all observed dispatches.
func (m *InMemoryMetrics) AverageDispatch() time.Duration {
	n := m.Dispatched.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.dispatchElapsedNanos.Load() / n)
}
