package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Consumer.Workers)
	assert.Equal(t, time.Hour, cfg.Consumer.DedupeTTL)
	assert.Equal(t, -1, cfg.Producer.Acks)
	assert.Equal(t, 30*time.Second, cfg.Bus.ConsumeTimeout)
	assert.Equal(t, []string{"urn:message:OrderSubmitted"}, cfg.Bus.MessageTypes)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("KAFKA_CONSUMER_WORKERS", "8")
	t.Setenv("KAFKA_PRODUCER_ACKS", "1")
	t.Setenv("KAFKA_PRODUCER_IDEMPOTENT", "false")
	t.Setenv("BUS_CONSUME_TIMEOUT", "1500ms")
	t.Setenv("BUS_CONCURRENCY", "4")
	t.Setenv("BUS_MESSAGE_TYPES", "urn:message:A,urn:message:B")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Consumer.Workers)
	assert.Equal(t, 1, cfg.Producer.Acks)
	assert.False(t, cfg.Producer.Idempotent)
	assert.Equal(t, 1500*time.Millisecond, cfg.Bus.ConsumeTimeout)
	assert.Equal(t, 4, cfg.Bus.Concurrency)
	assert.Equal(t, []string{"urn:message:A", "urn:message:B"}, cfg.Bus.MessageTypes)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("KAFKA_CONSUMER_TOPIC=orders\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("KAFKA_CONSUMER_TOPIC")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg := Load(path)

	assert.Equal(t, "orders", cfg.Consumer.Topic)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_WORKERS", "many")
	t.Setenv("BUS_CONSUME_TIMEOUT", "soon")
	t.Setenv("KAFKA_PRODUCER_ACKS", "sometimes")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 5, cfg.Consumer.Workers)
	assert.Equal(t, 30*time.Second, cfg.Bus.ConsumeTimeout)
	assert.Equal(t, -1, cfg.Producer.Acks)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "no brokers", mutate: func(c *Config) { c.Kafka.Brokers = nil }, errMsg: "brokers cannot be empty"},
		{name: "no topic", mutate: func(c *Config) { c.Consumer.Topic = "" }, errMsg: "consumer topic cannot be empty"},
		{name: "no group", mutate: func(c *Config) { c.Consumer.GroupID = "" }, errMsg: "consumer groupID cannot be empty"},
		{name: "no workers", mutate: func(c *Config) { c.Consumer.Workers = 0 }, errMsg: "consumer workers must be greater than zero"},
		{name: "negative retries", mutate: func(c *Config) { c.Consumer.RetryMax = -1 }, errMsg: "consumer retryMax cannot be negative"},
		{name: "no dlq", mutate: func(c *Config) { c.Consumer.DLQTopic = "" }, errMsg: "dlq topic cannot be empty"},
		{name: "negative timeout", mutate: func(c *Config) { c.Bus.ConsumeTimeout = -time.Second }, errMsg: "consume timeout cannot be negative"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Bus.Concurrency = -1 }, errMsg: "concurrency cannot be negative"},
		{name: "no message types", mutate: func(c *Config) { c.Bus.MessageTypes = nil }, errMsg: "at least one message type is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
			tt.mutate(cfg)
			assert.EqualError(t, cfg.Validate(), tt.errMsg)
		})
	}
}
