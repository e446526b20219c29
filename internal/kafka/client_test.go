package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaClient_HealthCheck(t *testing.T) {
	client := NewKafkaClient([]string{"b1:9092", "b2:9092"}, 3)

	var probed []string
	client.probe = func(ctx context.Context, broker string) error {
		probed = append(probed, broker)
		if broker == "b1:9092" {
			return errors.New("connection refused")
		}
		return nil
	}

	require.NoError(t, client.HealthCheck(context.Background()))
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, probed)
}

func TestKafkaClient_HealthCheckAllDown(t *testing.T) {
	client := NewKafkaClient([]string{"b1:9092", "b2:9092"}, 3)
	client.probe = func(ctx context.Context, broker string) error {
		return errors.New(broker + " down")
	}

	err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b1:9092 down")
	assert.Contains(t, err.Error(), "b2:9092 down")
}

func TestKafkaClient_NoBrokers(t *testing.T) {
	client := NewKafkaClient(nil, 3)
	assert.ErrorIs(t, client.HealthCheck(context.Background()), ErrNoBrokers)
	assert.Empty(t, client.GetBrokers())
}

func TestKafkaClient_ReconnectWithBackoff(t *testing.T) {
	client := NewKafkaClient([]string{"b1:9092"}, 3)
	client.baseBackoff = time.Millisecond
	client.maxBackoff = 2 * time.Millisecond

	attempts := 0
	client.probe = func(ctx context.Context, broker string) error {
		attempts++
		if attempts < 2 {
			return errors.New("still down")
		}
		return nil
	}

	reconnected := false
	err := client.reconnectWithBackoff(context.Background(), func() error {
		reconnected = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, reconnected)
	assert.Equal(t, 2, attempts)
}

func TestKafkaClient_ReconnectGivesUp(t *testing.T) {
	client := NewKafkaClient([]string{"b1:9092"}, 2)
	client.baseBackoff = time.Millisecond
	client.maxBackoff = time.Millisecond
	client.probe = func(ctx context.Context, broker string) error {
		return errors.New("down")
	}

	err := client.reconnectWithBackoff(context.Background(), nil)
	assert.EqualError(t, err, "failed to reconnect after 2 attempts")
}
