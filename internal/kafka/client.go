package kafka

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go-bus/internal/observability"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// ErrNoBrokers is returned by HealthCheck when no broker is configured.
var ErrNoBrokers = errors.New("no brokers configured")

// KafkaClient checks broker connectivity and reconnects with backoff
type KafkaClient struct {
	brokers     []string
	logger      *logrus.Entry
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// probe checks a single broker; replaced in tests.
	probe func(ctx context.Context, broker string) error
}

func NewKafkaClient(brokers []string, maxRetries int) *KafkaClient {
	return &KafkaClient{
		brokers:     brokers,
		logger:      observability.Component("kafka-client"),
		maxRetries:  maxRetries,
		baseBackoff: 1 * time.Second,
		maxBackoff:  30 * time.Second,
		probe:       probeBroker,
	}
}

func probeBroker(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", broker, err)
	}
	defer conn.Close()

	// Fetch metadata to verify broker health
	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read partitions from %s: %w", broker, err)
	}
	return nil
}

// HealthCheck succeeds when any configured broker answers a metadata request
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if len(c.brokers) == 0 {
		return ErrNoBrokers
	}

	var errs []error
	for _, broker := range c.brokers {
		err := c.probe(ctx, broker)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HealthCheckLoop runs health checks periodically with reconnection logic
func (c *KafkaClient) HealthCheckLoop(ctx context.Context, interval time.Duration, onReconnect func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			if err := c.HealthCheck(ctx); err != nil {
				c.logger.WithError(err).Warn("Health check failed, attempting reconnection")
				if err := c.reconnectWithBackoff(ctx, onReconnect); err != nil {
					c.logger.WithError(err).Error("Reconnection failed")
				}
			}
		}
	}
}

// reconnectWithBackoff implements exponential backoff reconnection strategy
func (c *KafkaClient) reconnectWithBackoff(ctx context.Context, onReconnect func() error) error {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		backoff := time.Duration(math.Min(
			float64(c.baseBackoff)*math.Pow(2, float64(attempt)),
			float64(c.maxBackoff),
		))

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": backoff,
		}).Info("Attempting reconnection")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := c.HealthCheck(ctx); err != nil {
			c.logger.WithError(err).Warn("Reconnection attempt failed")
			continue
		}

		if onReconnect != nil {
			if err := onReconnect(); err != nil {
				c.logger.WithError(err).Warn("Reconnect callback failed")
				continue
			}
		}

		c.logger.Info("Reconnection successful")
		return nil
	}

	return fmt.Errorf("failed to reconnect after %d attempts", c.maxRetries)
}

// GetBrokers returns the list of brokers
func (c *KafkaClient) GetBrokers() []string {
	return c.brokers
}
