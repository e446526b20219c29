package kafka

import (
	"context"
	"fmt"
	"math"
	"time"

	"go-bus/internal/observability"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ProducerClient defines the interface for Kafka producer operations
type ProducerClient interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer implements ProducerClient with delivery guarantees and retry logic
type Producer struct {
	writer      MessageWriter
	logger      *logrus.Entry
	metrics     observability.MetricsCollector
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type ProducerConfig struct {
	Brokers     []string
	Acks        int // -1 for all, 0 for none, 1 for leader
	Retries     int
	Idempotent  bool
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Metrics     observability.MetricsCollector
	Logger      *logrus.Entry

	// Writer overrides the kafka-go writer built from the fields above.
	Writer MessageWriter
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Component("kafka-producer")
	}

	writer := cfg.Writer
	if writer == nil {
		// Configure writer with delivery guarantees
		w := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
			MaxAttempts:            cfg.Retries,
			WriteTimeout:           10 * time.Second,
			ReadTimeout:            10 * time.Second,
			AllowAutoTopicCreation: false,
			Async:                  false, // Synchronous for reliable error handling
		}

		// Enable idempotent producer if requested
		if cfg.Idempotent {
			w.RequiredAcks = kafka.RequireAll // Idempotent requires acks=all
			w.MaxAttempts = 10                // Higher retries for idempotency
		}
		writer = w
	}

	return &Producer{
		writer:      writer,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// Publish sends a message to Kafka with configurable retry logic
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if headers != nil {
		msg.Headers = make([]kafka.Header, 0, len(headers))
		for k, v := range headers {
			msg.Headers = append(msg.Headers, kafka.Header{
				Key:   k,
				Value: []byte(v),
			})
		}
	}

	logger := p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"key":   key,
	})

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.backoff(attempt)
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
			}).Info("Retrying message publish")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			p.metrics.IncPublished()
			logger.WithField("attempt", attempt+1).Debug("Message published successfully")
			return nil
		}

		lastErr = err
		logger.WithField("attempt", attempt+1).WithError(err).Warn("Failed to publish message")
	}

	p.metrics.IncPublishFailed()
	return fmt.Errorf("failed to publish message after %d attempts: %w", p.maxRetries+1, lastErr)
}

// backoff returns the exponential delay before the given retry attempt.
func (p *Producer) backoff(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(p.baseBackoff)*math.Pow(2, float64(attempt-1)),
		float64(p.maxBackoff),
	))
}

// Close gracefully shuts down the producer
func (p *Producer) Close() error {
	p.logger.Info("Closing producer")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	return nil
}
