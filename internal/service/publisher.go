package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"

	"github.com/aakar745/stallpay-recon/internal/models"
)

// KafkaActionPublisher writes every applied reconciliation action to the
// recon.action.applied topic, keyed by receipt number.
type KafkaActionPublisher struct {
	writer *kafka.Writer
}

func NewKafkaActionPublisher(writer *kafka.Writer) *KafkaActionPublisher {
	return &KafkaActionPublisher{writer: writer}
}

func (p *KafkaActionPublisher) PublishAction(ctx context.Context, action *models.ReconciliationAction) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(action.ReceiptNumber),
		Value: payload,
	})
}

// NatsReceiptRequester publishes receipt.generate messages for the
// external receipt service.
type NatsReceiptRequester struct {
	nc *nats.Conn
}

func NewNatsReceiptRequester(nc *nats.Conn) *NatsReceiptRequester {
	return &NatsReceiptRequester{nc: nc}
}

func (r *NatsReceiptRequester) RequestReceipt(_ context.Context, receiptNumber string) error {
	payload, err := json.Marshal(map[string]any{
		"receiptNumber": receiptNumber,
		"requestedAt":   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return r.nc.Publish("receipt.generate", payload)
}
