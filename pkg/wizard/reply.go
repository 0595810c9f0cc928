package wizard

import (
	"context"
	"fmt"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
)

type replyIntent struct {
	Details     extract.Details
	Author      registry.Account
	Attachments []attachments.Attachment
}

type replyStart struct{}

// replyAwaitAuthor waits for the registry handle of a hidden author.
type replyAwaitAuthor struct {
	intent *replyIntent
}

// replyAwaitOwnLink waits for the link of the reply message itself.
type replyAwaitOwnLink struct {
	intent *replyIntent
}

// replyAwaitParentLink waits for the link of the message being answered.
type replyAwaitParentLink struct {
	intent *replyIntent
	own    target
}

func (replyStart) Name() State           { return StateStart }
func (replyAwaitAuthor) Name() State     { return StateWaitAuthorID }
func (replyAwaitOwnLink) Name() State    { return StateWaitRplMsgID }
func (replyAwaitParentLink) Name() State { return StateWaitMsgID }

func (e *Engine) stepReply(ctx context.Context, msg *bus.InboundMessage, cur state) (state, error) {
	switch s := cur.(type) {
	case replyStart:
		return e.replyBegin(ctx, msg)
	case replyAwaitAuthor:
		if s.intent == nil {
			return cur, fmt.Errorf("%w: %s without intent", ErrInconsistentSession, s.Name())
		}
		return e.replyAuthor(ctx, msg, s)
	case replyAwaitOwnLink:
		if s.intent == nil || s.intent.Author.IsZero() {
			return cur, fmt.Errorf("%w: %s without author", ErrInconsistentSession, s.Name())
		}
		return e.replyOwnLink(ctx, msg, s)
	case replyAwaitParentLink:
		if s.intent == nil || s.own.Short == "" {
			return cur, fmt.Errorf("%w: %s without reply link", ErrInconsistentSession, s.Name())
		}
		return e.replyParentLink(ctx, msg, s)
	default:
		return replyStart{}, fmt.Errorf("%w: reply wizard in state %T", ErrInconsistentSession, cur)
	}
}

func (e *Engine) replyBegin(ctx context.Context, msg *bus.InboundMessage) (state, error) {
	o := msg.ForwardOrigin
	if o == nil || (o.Kind != bus.OriginUser && o.Kind != bus.OriginHiddenUser) {
		e.say(ctx, msg, "Please forward a message sent by a user to start.")
		return replyStart{}, nil
	}
	d := e.deps.Extractor.UserForwardDetails(msg)
	if d == nil {
		e.say(ctx, msg, "The forwarded message has no text.")
		return replyStart{}, nil
	}
	intent := &replyIntent{
		Details:     *d,
		Attachments: attachments.Collect(ctx, e.deps.Transport, e.deps.Attachments, msg),
	}

	if o.Kind == bus.OriginHiddenUser || o.User == nil {
		e.say(ctx, msg, fmt.Sprintf("%s hides their account. Please send the registry handle of the author.", o.HiddenName))
		return replyAwaitAuthor{intent: intent}, nil
	}
	author, err := e.deps.Resolver.ResolveAuthor(ctx, *o.User, false)
	if err != nil {
		return replyStart{}, err
	}
	intent.Author = author
	e.say(ctx, msg, "Please send the link of this reply in its group.")
	return replyAwaitOwnLink{intent: intent}, nil
}

func (e *Engine) replyAuthor(ctx context.Context, msg *bus.InboundMessage, s replyAwaitAuthor) (state, error) {
	acc, err := e.deps.Resolver.AccountByHandle(ctx, msg.Text)
	if err != nil {
		return s, err
	}
	if acc == nil {
		e.say(ctx, msg, fmt.Sprintf("No account found for handle %q. Please send an existing handle.", msg.Text))
		return s, nil
	}
	intent := *s.intent
	intent.Author = *acc
	e.say(ctx, msg, "Please send the link of this reply in its group.")
	return replyAwaitOwnLink{intent: &intent}, nil
}

func (e *Engine) replyOwnLink(ctx context.Context, msg *bus.InboundMessage, s replyAwaitOwnLink) (state, error) {
	t, err := e.resolveLink(ctx, msg.Text)
	if err != nil {
		e.say(ctx, msg, linkError(err))
		return s, nil
	}
	if rk, ok := e.mapped(t.Key()); ok {
		e.say(ctx, msg, e.deps.Texts.AlreadyProcessed(rk))
		return replyStart{}, nil
	}
	e.say(ctx, msg, "Please send the link of the message this reply answers.")
	return replyAwaitParentLink{intent: s.intent, own: t}, nil
}

func (e *Engine) replyParentLink(ctx context.Context, msg *bus.InboundMessage, s replyAwaitParentLink) (state, error) {
	t, err := e.resolveLink(ctx, msg.Text)
	if err != nil {
		e.say(ctx, msg, linkError(err))
		return s, nil
	}
	if t.Short != s.own.Short {
		e.say(ctx, msg, fmt.Sprintf("The replied message must be in chat %s, the same chat as the reply.", s.own.Short))
		return s, nil
	}

	parent, ok := e.mapped(t.Key())
	if !ok {
		e.say(ctx, msg, "The replied message has not been processed yet.")
		return replyStart{}, nil
	}
	parentKey, err := registry.ParseRecordKey(parent)
	if err != nil {
		return replyStart{}, fmt.Errorf("%w: mapping %s holds %q", ErrInconsistentSession, t.Key(), parent)
	}

	community, err := e.deps.Resolver.ResolveContextByChatID(ctx, t.Short)
	if err != nil {
		return s, err
	}
	details := s.intent.Details
	if details.ExternalURL == "" {
		details.ExternalURL = s.own.Link()
	}

	if e.claimed(ctx, msg, s.own.Key()) {
		return replyStart{}, nil
	}
	rk := e.deps.Creator.CreateReply(ctx, registry.ReplyInput{
		Author:      s.intent.Author,
		Context:     *community,
		Details:     details,
		ReplyTo:     parentKey,
		Attachments: s.intent.Attachments,
	})
	if rk == nil {
		e.say(ctx, msg, prompt.ReplyFail)
		return s, nil
	}
	if err := e.deps.Repo.Mappings.PutNew(s.own.Key(), rk.String()); err != nil {
		logger.ErrorCF("wizard", "Failed to save mapping", map[string]interface{}{
			"message": s.own.Key(),
			"record":  rk.String(),
			"error":   err.Error(),
		})
		e.say(ctx, msg, fmt.Sprintf("Record %s created but saving the mapping failed: %v", rk, err))
		return replyStart{}, nil
	}
	e.say(ctx, msg, fmt.Sprintf("%s\nrecord: %s, replying to %s", e.deps.Texts.ReplySucceed(rk.String()), rk, parentKey))
	return replyStart{}, nil
}
