// Package events fans record lifecycle notifications out to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/logger"
)

const producer = "nunti"

const (
	TypeRecordCreated = "nunti.record.created.v1"
	TypeRecordDeleted = "nunti.record.deleted.v1"
)

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Record describes a created or deleted registry record.
type Record struct {
	Kind      string   `json:"kind"` // share|reply
	RecordKey string   `json:"record_key"`
	URL       string   `json:"url,omitempty"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// NewEnvelope stamps data with a fresh id and the current time.
func NewEnvelope(eventType string, data any) Envelope {
	id := uuid.NewString()
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: id,
			Producer:      producer,
			Time:          time.Now().UTC(),
			Type:          eventType,
		},
		Data: data,
	}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                              { return nil }

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends persistent JSON envelopes to a topic exchange.
type AMQPPublisher struct {
	conn        *amqp.Connection
	openChannel func() (publishChannel, error)
	exchange    string
	routingKey  string
}

func NewAMQPPublisher(cfg config.EventsConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &AMQPPublisher{
		conn: conn,
		openChannel: func() (publishChannel, error) {
			return conn.Channel()
		},
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	env := NewEnvelope(eventType, data)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ch, err := p.openChannel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          eventType,
		Timestamp:     env.Meta.Time,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	logger.DebugCF("events", "Event published", map[string]interface{}{
		"type":     eventType,
		"exchange": p.exchange,
		"id":       env.Meta.ID,
	})
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// New returns an AMQP publisher when events are enabled, otherwise a no-op.
func New(cfg config.EventsConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NopPublisher{}, nil
	}
	return NewAMQPPublisher(cfg)
}
