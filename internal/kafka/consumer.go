package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/portfolio"
)

// TradeApplier folds broker trades into holdings
type TradeApplier interface {
	HasTrade(ctx context.Context, orderID, source string) (bool, error)
	Buy(ctx context.Context, ownerID string, req portfolio.BuyRequest) (*models.Holding, *models.Transaction, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

const (
	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 30 * time.Second
)

// Consumer applies TRADE_DETECTED buys from the broker integration.
// Sells are not applied since holdings only track average cost.
//
// An offset is committed only once its message is applied, skipped or found
// unusable. Transient failures are retried until they succeed or the consumer
// stops, so an uncommitted trade is redelivered after a restart.
type Consumer struct {
	reader       messageReader
	trades       TradeApplier
	defaultOwner string
	retryInitial time.Duration
	retryMax     time.Duration
	log          logrus.FieldLogger
}

// NewConsumer creates a new Kafka consumer for trade events. Events without an
// owner_id are attributed to defaultOwner.
func NewConsumer(brokers []string, topic, groupID, defaultOwner string, trades TradeApplier, log logrus.FieldLogger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:       reader,
		trades:       trades,
		defaultOwner: defaultOwner,
		retryInitial: defaultRetryInitial,
		retryMax:     defaultRetryMax,
		log:          log.WithField("component", "trade_consumer"),
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.log.WithField("topic", c.reader.Config().Topic).Info("starting kafka consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("kafka consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.reader.Close()
					return nil // Context cancelled, normal shutdown
				}
				c.log.WithError(err).Error("error fetching message")
				continue
			}

			c.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes msg, retrying transient failures until ctx is done,
// and commits it once it is settled.
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	entry := c.log.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.processMessage(ctx, msg)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			entry.WithError(err).WithField("retry_in", next.String()).Warn("retrying message")
		}),
	)
	var permanent *backoff.PermanentError
	if err != nil && !errors.As(err, &permanent) {
		entry.WithError(err).Info("stopping before message was applied, leaving it uncommitted")
		return
	}
	if err != nil {
		entry.WithError(err).Error("dropping unprocessable message")
	}

	// a settled message is committed even while shutting down
	if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
		entry.WithError(err).Error("failed to commit message")
	}
}

func (c *Consumer) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax
	return b
}

// processMessage handles a single Kafka message. Errors that a retry cannot
// fix are marked with backoff.Permanent.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to unmarshal trade event: %w", err))
	}

	if event.EventType != models.EventTradeDetected {
		c.log.WithField("event_type", event.EventType).Debug("ignoring event")
		return nil
	}

	entry := c.log.WithFields(logrus.Fields{
		"order_id": event.Data.OrderID,
		"symbol":   event.Data.Symbol,
		"side":     event.Data.Side,
	})

	side := strings.ToUpper(strings.TrimSpace(event.Data.Side))
	switch side {
	case models.TradeTypeBuy:
	case models.TradeTypeSell:
		entry.Info("skipping sell trade")
		return nil
	default:
		return backoff.Permanent(fmt.Errorf("invalid trade side: %s", event.Data.Side))
	}

	owner, req, err := c.convertEvent(event)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to convert trade event: %w", err))
	}

	// Check for duplicate (idempotency)
	if req.OrderID != "" {
		exists, err := c.trades.HasTrade(ctx, req.OrderID, req.Source)
		if err != nil {
			return fmt.Errorf("failed to check for duplicate trade: %w", err)
		}
		if exists {
			entry.Info("trade already applied, skipping")
			return nil
		}
	}

	h, _, err := c.trades.Buy(ctx, owner, req)
	if errors.Is(err, database.ErrDuplicateTrade) {
		entry.Info("trade already applied, skipping")
		return nil
	}
	if errors.Is(err, ledger.ErrInvalidTrade) || errors.Is(err, ledger.ErrInvalidInput) {
		return backoff.Permanent(fmt.Errorf("rejected trade: %w", err))
	}
	if err != nil {
		return fmt.Errorf("failed to apply trade: %w", err)
	}

	entry.WithFields(logrus.Fields{
		"owner_id":      owner,
		"shares":        h.Shares.String(),
		"avg_buy_price": h.AvgBuyPrice.String(),
	}).Info("applied broker trade")
	return nil
}

// convertEvent maps a TradeEvent to a buy request
func (c *Consumer) convertEvent(event models.TradeEvent) (string, portfolio.BuyRequest, error) {
	data := event.Data

	owner := data.OwnerID
	if owner == "" {
		owner = c.defaultOwner
	}
	if owner == "" {
		return "", portfolio.BuyRequest{}, errors.New("trade has no owner")
	}

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return "", portfolio.BuyRequest{}, fmt.Errorf("invalid quantity %s: %w", data.Quantity, err)
	}
	price, err := decimal.NewFromString(data.AveragePrice)
	if err != nil {
		return "", portfolio.BuyRequest{}, fmt.Errorf("invalid price %s: %w", data.AveragePrice, err)
	}

	source := event.Source
	if source == "" {
		source = models.SourceKafka
	}

	return owner, portfolio.BuyRequest{
		Symbol:     data.Symbol,
		Quantity:   quantity,
		Price:      price,
		OrderID:    data.OrderID,
		Source:     source,
		ExecutedAt: parseExecutedAt(data.ExecutedAt, event.Timestamp),
	}, nil
}

// parseExecutedAt accepts RFC3339 or a bare local timestamp, falling back to
// the event time and then to now.
func parseExecutedAt(raw *string, fallback time.Time) time.Time {
	if raw != nil && *raw != "" {
		if t, err := time.Parse(time.RFC3339, *raw); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", *raw); err == nil {
			return t
		}
	}
	if !fallback.IsZero() {
		return fallback
	}
	return time.Now()
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
