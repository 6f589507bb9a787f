package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"sensorfleet-cloud/internal/telemetry/application"
)

// message is one device payload delivered through the broker.
type message struct {
	DeviceID string `json:"device_id"`
	Class    string `json:"class"`
	Zone     string `json:"zone"`
	Payload  string `json:"payload"`
	TS       int64  `json:"ts"`
}

// Consumer feeds broker-delivered payloads into the ingest service. The
// consumer is bound to one tenant per deployment; the broker route carries no
// tenant authority of its own.
type Consumer struct {
	channel  *amqp.Channel
	queue    string
	tenantID string
	service  *application.IngestService
	logger   *zap.Logger
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Channel       *amqp.Channel
	Queue         string
	Exchange      string
	RoutingKey    string
	PrefetchCount int
	TenantID      string
	Service       *application.IngestService
	Logger        *zap.Logger
}

// NewConsumer declares the queue topology and builds a consumer.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Channel == nil {
		return nil, errors.New("amqp consumer: nil channel")
	}
	if cfg.Queue == "" {
		return nil, errors.New("amqp consumer: empty queue")
	}
	if cfg.TenantID == "" {
		return nil, errors.New("amqp consumer: empty tenant id")
	}
	if cfg.Service == nil {
		return nil, errors.New("amqp consumer: nil ingest service")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.PrefetchCount > 0 {
		if err := cfg.Channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
			return nil, fmt.Errorf("amqp consumer: set qos: %w", err)
		}
	}
	if cfg.Exchange != "" {
		if err := cfg.Channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("amqp consumer: declare exchange: %w", err)
		}
	}
	if _, err := cfg.Channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqp consumer: declare queue: %w", err)
	}
	if cfg.Exchange != "" {
		if err := cfg.Channel.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("amqp consumer: bind queue: %w", err)
		}
	}

	return &Consumer{
		channel:  cfg.Channel,
		queue:    cfg.Queue,
		tenantID: cfg.TenantID,
		service:  cfg.Service,
		logger:   logger,
	}, nil
}

// Start consumes messages until the context is cancelled. Malformed messages
// are rejected without requeue; the ingest policy handles decode-level
// rejection through the dead-letter sink.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consumer: consume: %w", err)
	}

	c.logger.Info("amqp consumer started",
		zap.String("queue", c.queue),
		zap.String("tenant_id", c.tenantID),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, open := <-deliveries:
			if !open {
				return errors.New("amqp consumer: channel closed")
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var msg message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		c.logger.Warn("amqp message unmarshal failed", zap.Error(err))
		_ = delivery.Nack(false, false)
		return
	}

	row := application.IngestRow{
		DeviceID: msg.DeviceID,
		Class:    msg.Class,
		Zone:     msg.Zone,
		Payload:  msg.Payload,
	}
	if msg.TS > 0 {
		if msg.TS > 1_000_000_000_000 {
			row.CapturedAt = time.UnixMilli(msg.TS).UTC()
		} else {
			row.CapturedAt = time.Unix(msg.TS, 0).UTC()
		}
	}

	result, err := c.service.Ingest(ctx, c.tenantID, "", "amqp:"+c.queue, []application.IngestRow{row})
	if err != nil {
		c.logger.Error("amqp ingest failed", zap.Error(err))
		_ = delivery.Nack(false, true)
		return
	}
	if len(result.Errors) > 0 {
		c.logger.Warn("amqp ingest row rejected",
			zap.String("device_id", msg.DeviceID),
			zap.String("reason", result.Errors[0].Err),
		)
		_ = delivery.Nack(false, false)
		return
	}
	_ = delivery.Ack(false)
}
