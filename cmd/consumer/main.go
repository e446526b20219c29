package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-bus/internal/config"
	"go-bus/internal/kafka"
	"go-bus/internal/observability"
	"go-bus/internal/service"
	"go-bus/pkg/dispatch"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile     string
		serviceName string
	)

	cmd := &cobra.Command{
		Use:           "consumer",
		Short:         "Consume Kafka messages through the bus dispatch pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg := config.Load(files...)
			if serviceName != "" {
				cfg.Consumer.GroupID = serviceName
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	cmd.Flags().StringVar(&serviceName, "service", "", "consumer group id, overrides KAFKA_CONSUMER_GROUP_ID")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := observability.Component("consumer")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewInMemoryMetrics()

	registry := dispatch.NewRegistry()
	processor := service.NewMessageProcessor()
	for _, messageType := range cfg.Bus.MessageTypes {
		if err := dispatch.AddInterceptor(registry, messageType, observability.NewLoggingInterceptor[map[string]any](nil)); err != nil {
			return err
		}
		if err := dispatch.AddConsumer(registry, messageType, service.ConsumerType, processor); err != nil {
			return err
		}
	}

	coordinator := dispatch.New(registry,
		dispatch.WithMetrics(metrics),
		dispatch.WithConsumeTimeout(cfg.Bus.ConsumeTimeout),
		dispatch.WithConcurrency(cfg.Bus.Concurrency),
	)
	defer coordinator.Close()

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       cfg.Producer.Acks,
		Retries:    cfg.Producer.Retries,
		Idempotent: cfg.Producer.Idempotent,
		Metrics:    metrics,
	})
	defer producer.Close()

	dedupe := kafka.NewInMemoryDedupeStore(cfg.Consumer.DedupeTTL)
	defer dedupe.Close()

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Consumer.Topic,
		GroupID:          cfg.Consumer.GroupID,
		Workers:          cfg.Consumer.Workers,
		RetryMax:         cfg.Consumer.RetryMax,
		FetchMinBytes:    cfg.Consumer.FetchMinBytes,
		FetchMaxBytes:    cfg.Consumer.FetchMaxBytes,
		RetryTopicPrefix: cfg.Consumer.RetryTopicPrefix,
		DLQTopic:         cfg.Consumer.DLQTopic,
		Metrics:          metrics,
		DedupeStore:      dedupe,
	}, producer)
	defer consumer.Close()

	client := kafka.NewKafkaClient(cfg.Kafka.Brokers, cfg.Consumer.RetryMax)
	if err := client.HealthCheck(ctx); err != nil {
		logger.WithError(err).Warn("Kafka not reachable at startup")
	}
	go client.HealthCheckLoop(ctx, 30*time.Second, nil)

	logger.WithField("message_types", cfg.Bus.MessageTypes).Info("Starting bus consumer")
	if err := consumer.Start(ctx, coordinator); err != nil {
		return fmt.Errorf("consumer error: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"received":          metrics.GetReceived(),
		"processed":         metrics.GetProcessed(),
		"failed":            metrics.GetFailed(),
		"retried":           metrics.GetRetried(),
		"dlq":               metrics.GetSentToDLQ(),
		"avg_dispatch":      metrics.AverageDispatch(),
		"post_dispatch_err": metrics.GetPostDispatchFaulted(),
	}).Info("Consumer stopped")
	return nil
}
