package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishHoldingUpdated publishes a holding updated event keyed by owner and
// symbol so updates to one holding stay ordered.
func (p *Producer) PublishHoldingUpdated(ctx context.Context, h *models.Holding, t *models.Transaction) error {
	event := models.PortfolioEvent{
		EventID:     uuid.NewString(),
		EventType:   models.EventHoldingUpdated,
		OwnerID:     h.OwnerID,
		Symbol:      h.Symbol,
		Holding:     h,
		Transaction: t,
		Timestamp:   time.Now().UTC(),
	}
	return p.publish(ctx, h.OwnerID+":"+h.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.PortfolioEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
