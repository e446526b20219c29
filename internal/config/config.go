package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-bus/internal/observability"
)

type Config struct {
	Kafka    KafkaConfig
	Logging  LoggingConfig
	Consumer ConsumerConfig
	Producer ProducerConfig
	Bus      BusConfig
}

type KafkaConfig struct {
	Brokers []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ConsumerConfig struct {
	Topic            string
	GroupID          string
	Workers          int
	RetryMax         int
	FetchMinBytes    int
	FetchMaxBytes    int
	RetryTopicPrefix string
	DLQTopic         string
	DedupeTTL        time.Duration
}

type ProducerConfig struct {
	Topic      string
	Acks       int
	Retries    int
	Idempotent bool
}

// BusConfig configures the dispatch coordinator.
type BusConfig struct {
	// ConsumeTimeout cancels a message's receive context after this long; zero disables it.
	ConsumeTimeout time.Duration
	// Concurrency bounds fan-out across consumer types of one message; zero is unbounded.
	Concurrency int
	// MessageTypes are the message types the sample consumer subscribes to.
	MessageTypes []string
}

// Load reads .env (if present) and the environment.
func Load(files ...string) *Config {
	if err := godotenv.Load(files...); err != nil {
		observability.GetLogger().WithError(err).Warn(".env file not loaded, using environment only")
	}
	return &Config{
		Kafka: KafkaConfig{
			Brokers: parseList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Consumer: ConsumerConfig{
			Topic:            getEnv("KAFKA_CONSUMER_TOPIC", "events"),
			GroupID:          getEnv("KAFKA_CONSUMER_GROUP_ID", "event-processor-group"),
			Workers:          getEnvInt("KAFKA_CONSUMER_WORKERS", 5),
			RetryMax:         getEnvInt("KAFKA_CONSUMER_RETRY_MAX", 3),
			FetchMinBytes:    getEnvInt("KAFKA_CONSUMER_FETCH_MIN_BYTES", 1024),
			FetchMaxBytes:    getEnvInt("KAFKA_CONSUMER_FETCH_MAX_BYTES", 10485760),
			RetryTopicPrefix: getEnv("KAFKA_RETRY_TOPIC_PREFIX", "events-retry"),
			DLQTopic:         getEnv("KAFKA_DLQ_TOPIC", "events-dlq"),
			DedupeTTL:        getEnvDuration("KAFKA_CONSUMER_DEDUPE_TTL", time.Hour),
		},
		Producer: ProducerConfig{
			Topic:      getEnv("KAFKA_PRODUCER_TOPIC", "events"),
			Acks:       parseAcks(getEnv("KAFKA_PRODUCER_ACKS", "all")),
			Retries:    getEnvInt("KAFKA_PRODUCER_RETRIES", 3),
			Idempotent: getEnvBool("KAFKA_PRODUCER_IDEMPOTENT", true),
		},
		Bus: BusConfig{
			ConsumeTimeout: getEnvDuration("BUS_CONSUME_TIMEOUT", 30*time.Second),
			Concurrency:    getEnvInt("BUS_CONCURRENCY", 0),
			MessageTypes:   parseList(getEnv("BUS_MESSAGE_TYPES", "urn:message:OrderSubmitted")),
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("brokers cannot be empty")
	}
	if c.Consumer.Topic == "" {
		return errors.New("consumer topic cannot be empty")
	}
	if c.Consumer.GroupID == "" {
		return errors.New("consumer groupID cannot be empty")
	}
	if c.Consumer.Workers <= 0 {
		return errors.New("consumer workers must be greater than zero")
	}
	if c.Consumer.RetryMax < 0 {
		return errors.New("consumer retryMax cannot be negative")
	}
	if c.Consumer.DLQTopic == "" {
		return errors.New("dlq topic cannot be empty")
	}
	if c.Bus.ConsumeTimeout < 0 {
		return errors.New("consume timeout cannot be negative")
	}
	if c.Bus.Concurrency < 0 {
		return errors.New("concurrency cannot be negative")
	}
	if len(c.Bus.MessageTypes) == 0 {
		return errors.New("at least one message type is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseAcks(acks string) int {
	switch strings.ToLower(acks) {
	case "all", "-1":
		return -1
	case "0":
		return 0
	case "1":
		return 1
	default:
		return -1 // default to all
	}
}
