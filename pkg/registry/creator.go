package registry

import (
	"context"

	"github.com/nomland/nunti/pkg/events"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/metrics"
)

// Creator wraps record creation. Every failure is logged and reported as a
// nil key so callers never write a mapping for a record that does not exist.
type Creator struct {
	reg       Registry
	publisher events.Publisher
	parser    string
}

func NewCreator(reg Registry, publisher events.Publisher, parser string) *Creator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Creator{reg: reg, publisher: publisher, parser: parser}
}

func (c *Creator) Registry() Registry {
	return c.reg
}

func (c *Creator) CreateShare(ctx context.Context, in ShareInput) *RecordKey {
	if in.Parser == "" {
		in.Parser = c.parser
	}
	key, err := c.reg.CreateShare(ctx, in)
	if err != nil {
		metrics.Records.WithLabelValues("share", "error").Inc()
		logger.ErrorCF("registry", "Failed to create share", map[string]interface{}{
			"url":    in.EntityURL,
			"author": in.Author.String(),
			"error":  err.Error(),
		})
		return nil
	}
	metrics.Records.WithLabelValues("share", "ok").Inc()
	logger.InfoCF("registry", "Share created", map[string]interface{}{
		"record": key.String(),
		"url":    in.EntityURL,
	})

	ev := events.Record{Kind: "share", RecordKey: key.String(), URL: in.EntityURL, Tags: in.Details.Tags}
	if in.ReplyTo != nil {
		ev.ReplyTo = in.ReplyTo.String()
	}
	c.publish(ctx, events.TypeRecordCreated, ev)
	return &key
}

func (c *Creator) CreateReply(ctx context.Context, in ReplyInput) *RecordKey {
	key, err := c.reg.CreateReply(ctx, in)
	if err != nil {
		metrics.Records.WithLabelValues("reply", "error").Inc()
		logger.ErrorCF("registry", "Failed to create reply", map[string]interface{}{
			"reply_to": in.ReplyTo.String(),
			"author":   in.Author.String(),
			"error":    err.Error(),
		})
		return nil
	}
	metrics.Records.WithLabelValues("reply", "ok").Inc()
	logger.InfoCF("registry", "Reply created", map[string]interface{}{
		"record":   key.String(),
		"reply_to": in.ReplyTo.String(),
	})
	c.publish(ctx, events.TypeRecordCreated, events.Record{
		Kind:      "reply",
		RecordKey: key.String(),
		ReplyTo:   in.ReplyTo.String(),
	})
	return &key
}

func (c *Creator) Delete(ctx context.Context, key RecordKey) error {
	if err := c.reg.DeleteRecord(ctx, key); err != nil {
		metrics.Records.WithLabelValues("delete", "error").Inc()
		logger.ErrorCF("registry", "Failed to delete record", map[string]interface{}{
			"record": key.String(),
			"error":  err.Error(),
		})
		return err
	}
	metrics.Records.WithLabelValues("delete", "ok").Inc()
	c.publish(ctx, events.TypeRecordDeleted, events.Record{RecordKey: key.String()})
	return nil
}

func (c *Creator) publish(ctx context.Context, eventType string, ev events.Record) {
	if err := c.publisher.Publish(ctx, eventType, ev); err != nil {
		logger.WarnCF("registry", "Failed to publish record event", map[string]interface{}{
			"type":   eventType,
			"record": ev.RecordKey,
			"error":  err.Error(),
		})
	}
}
