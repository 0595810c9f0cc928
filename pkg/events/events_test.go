package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nomland/nunti/pkg/config"
)

type fakeChannel struct {
	published []amqp.Publishing
	exchange  string
	key       string
	err       error
	closed    int
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key = exchange, key
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed++
	return nil
}

func newTestPublisher(ch *fakeChannel) *AMQPPublisher {
	return &AMQPPublisher{
		openChannel: func() (publishChannel, error) { return ch, nil },
		exchange:    "nunti.records",
		routingKey:  "record.lifecycle",
	}
}

func TestAMQPPublisherEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	err := p.Publish(context.Background(), TypeRecordCreated, Record{Kind: "share", RecordKey: "7-1", Tags: []string{"Tag1"}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(ch.published))
	}
	msg := ch.published[0]
	if ch.exchange != "nunti.records" || ch.key != "record.lifecycle" {
		t.Errorf("routed to %s/%s", ch.exchange, ch.key)
	}
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" || msg.Type != TypeRecordCreated {
		t.Errorf("unexpected publishing headers: %+v", msg)
	}
	if msg.MessageId == "" || msg.CorrelationId == "" {
		t.Error("missing message/correlation id")
	}
	if ch.closed != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closed)
	}

	var env struct {
		Meta Meta   `json:"meta"`
		Data Record `json:"data"`
	}
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Meta.ID != msg.MessageId || env.Meta.Producer != "nunti" || env.Data.RecordKey != "7-1" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestAMQPPublisherError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newTestPublisher(ch)
	if err := p.Publish(context.Background(), TypeRecordDeleted, Record{}); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestNewDisabledIsNop(t *testing.T) {
	p, err := New(config.EventsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := p.(NopPublisher); !ok {
		t.Fatalf("New returned %T, want NopPublisher", p)
	}
	if err := p.Publish(context.Background(), TypeRecordCreated, nil); err != nil {
		t.Fatalf("Nop Publish: %v", err)
	}
}
