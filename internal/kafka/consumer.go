package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go-bus/internal/observability"
	"go-bus/pkg/bus"
	"go-bus/pkg/dispatch"
	"go-bus/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Dispatcher hands a native message to the bus and reports its outcome.
// *dispatch.Coordinator implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg bus.NativeMessage, inputAddress *url.URL) *dispatch.Outcome
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerClient defines the interface for Kafka consumer operations
type ConsumerClient interface {
	Start(ctx context.Context, dispatcher Dispatcher) error
	Close() error
}

// Consumer feeds Kafka messages to a Dispatcher with a worker pool and turns
// each outcome into commit, retry or DLQ
type Consumer struct {
	reader           MessageReader
	producer         ProducerClient
	logger           *logrus.Entry
	metrics          observability.MetricsCollector
	workers          int
	retryMax         int
	retryTopicPrefix string
	dlqTopic         string
	dedupeStore      DedupeStore
	inputAddress     *url.URL
	wg               sync.WaitGroup
}

type ConsumerConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	Workers          int
	RetryMax         int
	FetchMinBytes    int
	FetchMaxBytes    int
	RetryTopicPrefix string
	DLQTopic         string
	Metrics          observability.MetricsCollector
	DedupeStore      DedupeStore
	Logger           *logrus.Entry

	// Reader overrides the kafka-go reader built from the fields above.
	Reader MessageReader
}

// DedupeStore provides interface for message deduplication
type DedupeStore interface {
	Exists(messageID string) bool
	Add(messageID string) error
}

// InMemoryDedupeStore is a simple in-memory implementation
type InMemoryDedupeStore struct {
	mu    sync.RWMutex
	store map[string]time.Time
	ttl   time.Duration
	stop  chan struct{}
}

func NewInMemoryDedupeStore(ttl time.Duration) *InMemoryDedupeStore {
	store := &InMemoryDedupeStore{
		store: make(map[string]time.Time),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go store.cleanup()
	return store
}

// Exists reports whether messageID was added and has not expired.
func (s *InMemoryDedupeStore) Exists(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, exists := s.store[messageID]
	return exists && time.Now().Before(expiry)
}

func (s *InMemoryDedupeStore) Add(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[messageID] = time.Now().Add(s.ttl)
	return nil
}

// Close stops the cleanup goroutine.
func (s *InMemoryDedupeStore) Close() {
	close(s.stop)
}

func (s *InMemoryDedupeStore) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		now := time.Now()
		for id, expiry := range s.store {
			if now.After(expiry) {
				delete(s.store, id)
			}
		}
		s.mu.Unlock()
	}
}

func NewConsumer(cfg ConsumerConfig, producer ProducerClient) *Consumer {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.DedupeStore == nil {
		cfg.DedupeStore = NewInMemoryDedupeStore(1 * time.Hour)
	}
	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Component("kafka-consumer")
	}

	reader := cfg.Reader
	if reader == nil {
		reader = kafka.NewReader(readerConfig(cfg))
	}

	return &Consumer{
		reader:           reader,
		producer:         producer,
		logger:           cfg.Logger.WithField("topic", cfg.Topic),
		metrics:          cfg.Metrics,
		workers:          cfg.Workers,
		retryMax:         cfg.RetryMax,
		retryTopicPrefix: cfg.RetryTopicPrefix,
		dlqTopic:         cfg.DLQTopic,
		dedupeStore:      cfg.DedupeStore,
		inputAddress:     InputAddress(cfg.Brokers, cfg.Topic, cfg.GroupID),
	}
}

// readerConfig builds the kafka-go reader settings. With a consumer group
// the reader also subscribes to every retry topic, so republished messages
// come back with their retry count.
func readerConfig(cfg ConsumerConfig) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.FetchMinBytes,
		MaxBytes:       cfg.FetchMaxBytes,
		CommitInterval: 0, // Manual commits
		StartOffset:    kafka.LastOffset,
	}
	if cfg.GroupID == "" {
		// kafka-go only supports a single topic without a group
		rc.Topic = cfg.Topic
		return rc
	}
	rc.GroupTopics = SubscribedTopics(cfg.Topic, cfg.RetryTopicPrefix, cfg.RetryMax)
	return rc
}

// RetryTopic names the topic a message is republished to on its n-th retry.
func RetryTopic(prefix string, n int) string {
	return fmt.Sprintf("%s-%d", prefix, n)
}

// SubscribedTopics lists the main topic followed by its retry topics
// prefix-1 through prefix-retryMax.
func SubscribedTopics(topic, retryPrefix string, retryMax int) []string {
	topics := []string{topic}
	if retryPrefix == "" {
		return topics
	}
	for n := 1; n <= retryMax; n++ {
		topics = append(topics, RetryTopic(retryPrefix, n))
	}
	return topics
}

// InputAddress is the logical endpoint of a topic consumed by a group,
// e.g. kafka://localhost:9092/orders?group=billing.
func InputAddress(brokers []string, topic, groupID string) *url.URL {
	u := &url.URL{Scheme: "kafka", Path: "/" + topic}
	if len(brokers) > 0 {
		u.Host = brokers[0]
	}
	if groupID != "" {
		u.RawQuery = url.Values{"group": []string{groupID}}.Encode()
	}
	return u
}

// Start begins consuming messages with worker pool
func (c *Consumer) Start(ctx context.Context, dispatcher Dispatcher) error {
	c.logger.WithField("workers", c.workers).Info("Starting consumer")

	// Create worker pool
	msgChan := make(chan kafka.Message, c.workers*2)

	// Start workers
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgChan, dispatcher)
	}

	// Start message fetcher
	c.wg.Add(1)
	go c.fetcher(ctx, msgChan)

	// Wait for all workers to finish
	c.wg.Wait()
	return nil
}

// fetcher reads messages from Kafka and sends to worker pool
func (c *Consumer) fetcher(ctx context.Context, msgChan chan<- kafka.Message) {
	defer c.wg.Done()
	defer close(msgChan)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Fetcher stopping due to context cancellation")
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return
			}
			c.logger.WithError(err).Error("Failed to fetch message")
			continue
		}

		c.metrics.IncReceived()

		select {
		case msgChan <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// worker processes messages from the channel
func (c *Consumer) worker(ctx context.Context, id int, msgChan <-chan kafka.Message, dispatcher Dispatcher) {
	defer c.wg.Done()
	c.logger.WithField("worker_id", id).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Worker stopping due to context cancellation")
			return
		case msg, ok := <-msgChan:
			if !ok {
				c.logger.Info("Worker stopping - channel closed")
				return
			}

			c.processMessage(ctx, msg, dispatcher, id)
		}
	}
}

// processMessage dispatches one message and acts on the outcome
func (c *Consumer) processMessage(ctx context.Context, kafkaMsg kafka.Message, dispatcher Dispatcher, workerID int) {
	msg := NewMessage(&kafkaMsg)
	messageID, hasID := msg.header(models.HeaderMessageID)

	logger := c.logger.WithFields(logrus.Fields{
		"partition":      kafkaMsg.Partition,
		"offset":         kafkaMsg.Offset,
		"message_id":     messageID,
		"delivery_count": msg.DeliveryCount(),
		"worker_id":      workerID,
	})

	// Check for duplicates using message ID
	if hasID && c.dedupeStore.Exists(messageID) {
		c.metrics.IncDuplicate()
		logger.Info("Duplicate message detected, skipping")
		c.commitMessage(kafkaMsg)
		return
	}

	outcome := dispatcher.Dispatch(ctx, msg, c.inputAddress)
	logger = logger.WithFields(logrus.Fields{
		"status":  outcome.Status.String(),
		"elapsed": outcome.Elapsed,
	})

	if outcome.Completed() {
		c.metrics.IncProcessed()
		logger.Debug("Message processed successfully")

		if hasID {
			if err := c.dedupeStore.Add(messageID); err != nil {
				logger.WithError(err).Warn("Failed to record message id")
			}
		}

		c.commitMessage(kafkaMsg)
		return
	}

	// Interrupted by shutdown: leave the offset uncommitted so the group
	// redelivers the message after restart or rebalance.
	if ctx.Err() != nil || errors.Is(outcome.Fault, dispatch.ErrShutdown) {
		logger.WithError(outcome.Fault).Warn("Message processing interrupted by shutdown, not committing")
		return
	}

	// Processing failed
	c.metrics.IncFailed()
	logger.WithError(outcome.Fault).Error("Message processing failed")

	retryCount := msg.RetryCount()
	var err error
	switch {
	case !retryable(outcome):
		err = c.sendToDLQ(ctx, msg, outcome.Fault)
	case retryCount < c.retryMax:
		err = c.sendToRetry(ctx, msg, retryCount+1, outcome.Fault)
	default:
		err = c.sendToDLQ(ctx, msg, outcome.Fault)
	}
	if err != nil {
		// Not written anywhere; without a commit Kafka delivers it again.
		logger.WithError(err).Error("Message not committed")
		return
	}
	c.commitMessage(kafkaMsg) // Commit original message
}

// retryable reports whether redelivering could change the outcome. Malformed
// headers and unroutable messages fail the same way every time.
func retryable(outcome *dispatch.Outcome) bool {
	return !errors.Is(outcome.Fault, bus.ErrMalformedHeader) &&
		!errors.Is(outcome.Fault, dispatch.ErrNoConsumers) &&
		!errors.Is(outcome.Fault, dispatch.ErrDeserialize)
}

// commitMessage commits the message offset
func (c *Consumer) commitMessage(msg kafka.Message) {
	if err := c.reader.CommitMessages(context.Background(), msg); err != nil {
		c.logger.WithError(err).Error("Failed to commit message")
	}
}

// sendToRetry sends message to retry topic
func (c *Consumer) sendToRetry(ctx context.Context, msg *Message, retryCount int, failureErr error) error {
	retryTopic := RetryTopic(c.retryTopicPrefix, retryCount)

	headers := stringHeaders(msg)
	headers[models.HeaderRetryCount] = strconv.Itoa(retryCount)
	headers[models.HeaderOriginalTopic] = originalTopic(msg)
	headers[models.HeaderFailureReason] = failureErr.Error()

	kmsg := msg.Kafka()
	logger := c.logger.WithFields(logrus.Fields{
		"retry_topic": retryTopic,
		"retry_count": retryCount,
	})
	if err := c.producer.Publish(ctx, retryTopic, string(kmsg.Key), kmsg.Value, headers); err != nil {
		logger.WithError(err).Error("Failed to send message to retry topic")
		return fmt.Errorf("send to retry topic %s: %w", retryTopic, err)
	}
	c.metrics.IncRetried()
	logger.Warn("Message sent to retry topic")
	return nil
}

// sendToDLQ sends message to dead letter queue
func (c *Consumer) sendToDLQ(ctx context.Context, msg *Message, failureErr error) error {
	headers := stringHeaders(msg)
	headers[models.HeaderOriginalTopic] = originalTopic(msg)
	headers[models.HeaderFailureReason] = failureErr.Error()
	headers[models.HeaderProcessedAt] = time.Now().Format(time.RFC3339)

	kmsg := msg.Kafka()
	logger := c.logger.WithField("dlq_topic", c.dlqTopic)
	if err := c.producer.Publish(ctx, c.dlqTopic, string(kmsg.Key), kmsg.Value, headers); err != nil {
		logger.WithError(err).Error("Failed to send message to DLQ")
		return fmt.Errorf("send to dlq %s: %w", c.dlqTopic, err)
	}
	c.metrics.IncSentToDLQ()
	logger.Info("Message sent to DLQ")
	return nil
}

func stringHeaders(msg *Message) map[string]string {
	headers := make(map[string]string, len(msg.Kafka().Headers)+4)
	for _, h := range msg.Kafka().Headers {
		headers[h.Key] = string(h.Value)
	}
	return headers
}

func originalTopic(msg *Message) string {
	if t, ok := msg.header(models.HeaderOriginalTopic); ok && t != "" {
		return t
	}
	return msg.Kafka().Topic
}

// Close gracefully shuts down the consumer
func (c *Consumer) Close() error {
	c.logger.Info("Closing consumer")
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}
