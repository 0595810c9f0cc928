package curation

import (
	"context"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/metrics"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
)

type shareRequest struct {
	url string
	// source supplies content, tags, date and attachments. It is the
	// triggering message or the message it replies to.
	source  *bus.InboundMessage
	replyTo *registry.RecordKey
	// keys are mapped to the new record; any of them already mapped makes
	// the request a no-op.
	keys []string
}

// existing returns the record already mapped for any of keys.
func (r *Router) existing(keys []string) (string, bool) {
	for _, k := range keys {
		if rk, ok := r.deps.Repo.Mappings.Get(k); ok {
			return rk, true
		}
	}
	return "", false
}

// share creates a share record for a group message, showing a loading
// prompt that is edited into the outcome.
func (r *Router) share(ctx context.Context, msg *bus.InboundMessage, req shareRequest) {
	if rk, ok := r.existing(req.keys); ok {
		metrics.IdempotentHits.Inc()
		r.answer(ctx, msg, r.deps.Texts.AlreadyProcessed(rk))
		return
	}
	if msg.From == nil {
		logger.DebugCF("router", "Share without a sender ignored", map[string]interface{}{
			"chat_id":    msg.Chat.ID,
			"message_id": msg.ID,
		})
		return
	}

	community, err := r.deps.Resolver.ResolveContext(ctx, msg.Chat)
	if err != nil || community == nil {
		logger.WarnCF("router", "Context not resolved", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   errString(err),
		})
		return
	}

	loading := r.answer(ctx, msg, prompt.Loading)

	author, err := r.deps.Resolver.ResolveAuthor(ctx, *msg.From, true)
	if err != nil {
		logger.WarnCF("router", "Author not resolved", map[string]interface{}{
			"user_id": msg.From.ID,
			"error":   err.Error(),
		})
		r.finish(ctx, msg, loading, prompt.Fail)
		return
	}
	details := r.deps.Extractor.ShareDetails(req.source)
	if details == nil {
		r.finish(ctx, msg, loading, prompt.Fail)
		return
	}

	rk := r.deps.Creator.CreateShare(ctx, registry.ShareInput{
		Author:      author,
		Context:     *community,
		Details:     *details,
		EntityURL:   req.url,
		ReplyTo:     req.replyTo,
		Attachments: attachments.Collect(ctx, r.deps.Transport, r.deps.Attachments, req.source),
	})
	if rk == nil {
		r.finish(ctx, msg, loading, prompt.Fail)
		return
	}
	if !r.saveMappings(req.keys, rk) {
		r.finish(ctx, msg, loading, prompt.Fail)
		return
	}
	r.finish(ctx, msg, loading, r.deps.Texts.Succeed(rk.String()))
}

// reply records msg as a reply to parent. Replies are recorded silently;
// only failures are answered.
func (r *Router) reply(ctx context.Context, msg *bus.InboundMessage, parent registry.RecordKey) {
	key := extract.MessageKey(msg.Chat.ID, msg.ID)
	if rk, ok := r.deps.Repo.Mappings.Get(key); ok {
		metrics.IdempotentHits.Inc()
		logger.DebugCF("router", "Reply already processed", map[string]interface{}{
			"message": key,
			"record":  rk,
		})
		return
	}
	if msg.From == nil {
		return
	}
	details := r.deps.Extractor.ShareDetails(msg)
	if details == nil {
		return
	}

	community, err := r.deps.Resolver.ResolveContext(ctx, msg.Chat)
	if err != nil || community == nil {
		logger.WarnCF("router", "Context not resolved", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   errString(err),
		})
		return
	}
	author, err := r.deps.Resolver.ResolveAuthor(ctx, *msg.From, true)
	if err != nil {
		logger.WarnCF("router", "Author not resolved", map[string]interface{}{
			"user_id": msg.From.ID,
			"error":   err.Error(),
		})
		return
	}

	rk := r.deps.Creator.CreateReply(ctx, registry.ReplyInput{
		Author:      author,
		Context:     *community,
		Details:     *details,
		ReplyTo:     parent,
		Attachments: attachments.Collect(ctx, r.deps.Transport, r.deps.Attachments, msg),
	})
	if rk == nil {
		r.answer(ctx, msg, prompt.ReplyFail)
		return
	}
	if !r.saveMappings([]string{key}, rk) {
		r.answer(ctx, msg, prompt.ReplyFail)
	}
}

func (r *Router) saveMappings(keys []string, rk *registry.RecordKey) bool {
	for _, k := range keys {
		if err := r.deps.Repo.Mappings.Put(k, rk.String()); err != nil {
			logger.ErrorCF("router", "Failed to save mapping", map[string]interface{}{
				"message": k,
				"record":  rk.String(),
				"error":   err.Error(),
			})
			return false
		}
	}
	return true
}

// finish edits the loading prompt into text, or sends text when the
// loading prompt could not be sent.
func (r *Router) finish(ctx context.Context, msg *bus.InboundMessage, loading int, text string) {
	if loading == 0 {
		r.answer(ctx, msg, text)
		return
	}
	if err := r.deps.Transport.Edit(ctx, msg.Chat.ID, loading, text, false); err != nil {
		logger.WarnCF("router", "Failed to edit prompt", map[string]interface{}{
			"chat_id":    msg.Chat.ID,
			"message_id": loading,
			"error":      err.Error(),
		})
	}
}
