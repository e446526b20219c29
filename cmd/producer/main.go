package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go-bus/internal/config"
	"go-bus/internal/kafka"
	"go-bus/internal/observability"
	"go-bus/pkg/bus"
	"go-bus/pkg/models"

	"github.com/google/uuid"
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
		messageType string
		label       string
	)

	cmd := &cobra.Command{
		Use:           "producer",
		Short:         "Publish a sample enveloped order message",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg := config.Load(files...)
			if messageType == "" {
				if len(cfg.Bus.MessageTypes) == 0 {
					return fmt.Errorf("no message type given")
				}
				messageType = cfg.Bus.MessageTypes[0]
			}
			return publish(cmd.Context(), cfg, messageType, label)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	cmd.Flags().StringVar(&messageType, "message-type", "", "message type urn (default first of BUS_MESSAGE_TYPES)")
	cmd.Flags().StringVar(&label, "label", "", "label header for the message")
	return cmd
}

func publish(ctx context.Context, cfg *config.Config, messageType, label string) error {
	observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := observability.Component("producer")

	messageID := uuid.NewString()
	body, err := json.Marshal(models.Envelope{
		MessageID:   messageID,
		MessageType: []string{messageType},
		SentTime:    time.Now().UTC().Format(time.RFC3339Nano),
		Message: map[string]interface{}{
			"order_id":    "ORD-2025-001234",
			"customer_id": "CUST-567890",
			"items": []interface{}{
				map[string]interface{}{
					"product_id": "PROD-111",
					"name":       "iPhone 15 Pro",
					"quantity":   1,
					"price":      42900.00,
				},
			},
			"total_amount": "42900.00",
			"currency":     "THB",
			"status":       "pending",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	headers := map[string]string{
		models.HeaderMessageID:   messageID,
		models.HeaderContentType: bus.EnvelopeMediaType,
	}
	if label != "" {
		headers[models.HeaderLabel] = label
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       cfg.Producer.Acks,
		Retries:    cfg.Producer.Retries,
		Idempotent: cfg.Producer.Idempotent,
		MaxRetries: 5,
	})
	defer producer.Close()

	if err := producer.Publish(ctx, cfg.Producer.Topic, messageID, body, headers); err != nil {
		return err
	}
	logger.WithField("message_id", messageID).Info("Message published")
	return nil
}
