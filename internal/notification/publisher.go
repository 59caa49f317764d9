package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/notification/domain"
	"github.com/streadway/amqp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultExchange = "settlement"

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("notification.log_publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.SettlementEvent) error {
	p.log.Info("settlement event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.String("owner_id", event.OwnerID.String()),
		zap.String("dedupe_key", event.DedupeKey),
	)
	return nil
}

// AMQPPublisher publishes events to a durable direct exchange, routed by event type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp url is required")
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, ch: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event domain.SettlementEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notification.Publish: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(
		p.exchange,
		event.EventType,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.DedupeKey,
			Timestamp:    event.CreatedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("notification.Publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}

type PublisherParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// ProvidePublisher picks the AMQP publisher when a broker URL is set.
func ProvidePublisher(p PublisherParams) (domain.Publisher, error) {
	if strings.TrimSpace(p.Config.Broker.URL) == "" {
		p.Log.Info("no broker configured, settlement events will be logged")
		return NewLogPublisher(p.Log), nil
	}
	publisher, err := NewAMQPPublisher(p.Config.Broker.URL, p.Config.Broker.Exchange)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}
