package wizard

import (
	"context"
	"fmt"
	"strings"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
)

// shareIntent is the record being assembled by the share wizard.
type shareIntent struct {
	URL         string
	Details     extract.Details
	Author      registry.Account
	Context     *registry.Account
	Attachments []attachments.Attachment
	// ChannelKey is the broadcast's own message key, "" for user forwards.
	ChannelKey string
	// ExpectChat is the short id of the discussion group the confirming
	// link must point at. Empty accepts any group.
	ExpectChat string
}

type shareStart struct{}

// shareAwaitLink waits for the link of the forwarded message's group copy.
type shareAwaitLink struct {
	intent   *shareIntent
	fromUser bool
}

type shareAwaitOption struct {
	intent *shareIntent
	target target
}

// shareAwaitEditLink waits for the link of a bot message to rewrite with the
// confirmation text.
type shareAwaitEditLink struct {
	intent *shareIntent
	target target
}

func (shareStart) Name() State { return StateStart }

func (s shareAwaitLink) Name() State {
	if s.fromUser {
		return StateWaitUserMsgID
	}
	return StateWaitMsgID
}

func (shareAwaitOption) Name() State   { return StateWaitRplOption }
func (shareAwaitEditLink) Name() State { return StateWaitEditLink }

func (e *Engine) stepShare(ctx context.Context, msg *bus.InboundMessage, cur state) (state, error) {
	switch s := cur.(type) {
	case shareStart:
		return e.shareBegin(ctx, msg)
	case shareAwaitLink:
		if s.intent == nil {
			return cur, fmt.Errorf("%w: %s without intent", ErrInconsistentSession, s.Name())
		}
		return e.shareConfirmLink(ctx, msg, s)
	case shareAwaitOption:
		if s.intent == nil || s.intent.Context == nil {
			return cur, fmt.Errorf("%w: %s without intent", ErrInconsistentSession, s.Name())
		}
		return e.shareChooseOption(ctx, msg, s)
	case shareAwaitEditLink:
		if s.intent == nil || s.intent.Context == nil {
			return cur, fmt.Errorf("%w: %s without intent", ErrInconsistentSession, s.Name())
		}
		return e.shareEditLink(ctx, msg, s)
	default:
		return shareStart{}, fmt.Errorf("%w: share wizard in state %T", ErrInconsistentSession, cur)
	}
}

func (e *Engine) shareBegin(ctx context.Context, msg *bus.InboundMessage) (state, error) {
	o := msg.ForwardOrigin
	if o == nil {
		e.say(ctx, msg, "Please forward a channel broadcast or a user message to start.")
		return shareStart{}, nil
	}
	url := extract.ExtractURL(msg)
	if url == "" {
		e.say(ctx, msg, "No URL found in the forwarded message.")
		return shareStart{}, nil
	}

	x := e.deps.Extractor
	intent := &shareIntent{URL: url}

	switch o.Kind {
	case bus.OriginChannel:
		if o.Chat == nil {
			e.say(ctx, msg, "The forwarded broadcast carries no channel.")
			return shareStart{}, nil
		}
		intent.ChannelKey = extract.MessageKey(o.Chat.ID, o.MessageID)
		if rk, ok := e.mapped(intent.ChannelKey); ok {
			e.say(ctx, msg, e.deps.Texts.AlreadyProcessed(rk))
			return shareStart{}, nil
		}
		d := x.ChannelForwardDetails(msg)
		if d == nil {
			e.say(ctx, msg, "The forwarded broadcast has no text.")
			return shareStart{}, nil
		}
		intent.Details = *d

		author, err := e.deps.Resolver.ResolveChannelAuthor(ctx, o.Chat.ID, o.Signature)
		if err != nil {
			return shareStart{}, err
		}
		if author == nil {
			e.say(ctx, msg, fmt.Sprintf("Cannot find a channel admin signed as %q.", o.Signature))
			return shareStart{}, nil
		}
		intent.Author = *author

		community, err := e.deps.Resolver.ResolveContext(ctx, *o.Chat)
		if err != nil {
			return shareStart{}, err
		}
		intent.Context = community

		group := e.discussionGroup(ctx, o.Chat.ID)
		if group == "" {
			e.say(ctx, msg, "The channel has no linked discussion group. Bind one with /setcontext first.")
			return shareStart{}, nil
		}
		intent.ExpectChat = group
		intent.Attachments = attachments.Collect(ctx, e.deps.Transport, e.deps.Attachments, msg)
		e.say(ctx, msg, "Please send the link of this broadcast in its discussion group.")
		return shareAwaitLink{intent: intent}, nil

	case bus.OriginUser, bus.OriginHiddenUser:
		d := x.UserForwardDetails(msg)
		if d == nil {
			e.say(ctx, msg, "The forwarded message has no text.")
			return shareStart{}, nil
		}
		intent.Details = *d
		if o.Kind == bus.OriginUser && o.User != nil {
			author, err := e.deps.Resolver.ResolveAuthor(ctx, *o.User, false)
			if err != nil {
				return shareStart{}, err
			}
			intent.Author = author
		} else {
			intent.Author = e.deps.Resolver.HiddenAuthor(o.HiddenName)
		}
		intent.Attachments = attachments.Collect(ctx, e.deps.Transport, e.deps.Attachments, msg)
		e.say(ctx, msg, "Please send the link of this message in its group.")
		return shareAwaitLink{intent: intent, fromUser: true}, nil

	default:
		e.say(ctx, msg, "Unsupported forward origin. Please forward a channel broadcast or a user message.")
		return shareStart{}, nil
	}
}

// discussionGroup returns the short id of the group linked to a channel,
// asking the transport first and falling back to the bound contexts.
func (e *Engine) discussionGroup(ctx context.Context, channelID int64) string {
	info, err := e.deps.Transport.ChatInfo(ctx, bus.ChatRef{ID: channelID})
	if err == nil && info.LinkedChatID != 0 {
		return extract.ShortChatID(info.LinkedChatID)
	}
	if err != nil {
		logger.DebugCF("wizard", "Channel info unavailable", map[string]interface{}{
			"channel_id": channelID,
			"error":      err.Error(),
		})
	}
	group, _ := e.deps.Repo.Contexts.LinkedChat(extract.ShortChatID(channelID))
	return group
}

func (e *Engine) shareConfirmLink(ctx context.Context, msg *bus.InboundMessage, s shareAwaitLink) (state, error) {
	t, err := e.resolveLink(ctx, msg.Text)
	if err != nil {
		e.say(ctx, msg, linkError(err))
		return s, nil
	}
	if s.fromUser {
		if !t.IsGroup() {
			e.say(ctx, msg, prompt.NotGroupChat)
			return s, nil
		}
	} else if t.Short != s.intent.ExpectChat {
		e.say(ctx, msg, fmt.Sprintf("The link points at chat %s but the broadcast's discussion group is %s. Please send the link in the discussion group.", t.Short, s.intent.ExpectChat))
		return s, nil
	}

	if rk, ok := e.mapped(t.Key()); ok {
		e.say(ctx, msg, e.deps.Texts.AlreadyProcessed(rk))
		return shareStart{}, nil
	}

	intent := *s.intent
	if intent.Context == nil {
		community, err := e.deps.Resolver.ResolveContextByChatID(ctx, t.Short)
		if err != nil {
			return s, err
		}
		intent.Context = community
	}
	if intent.Details.ExternalURL == "" {
		intent.Details.ExternalURL = t.Link()
	}

	e.say(ctx, msg, "Reply 1 to answer the original message with the record link, or 2 to edit an existing bot message instead.")
	return shareAwaitOption{intent: &intent, target: t}, nil
}

func (e *Engine) shareChooseOption(ctx context.Context, msg *bus.InboundMessage, s shareAwaitOption) (state, error) {
	switch strings.TrimSpace(msg.Text) {
	case "1":
		if e.claimed(ctx, msg, s.target.Key(), s.intent.ChannelKey) {
			return shareStart{}, nil
		}
		rk := e.createShare(ctx, s.intent)
		if rk == nil {
			e.say(ctx, msg, prompt.Fail)
			return s, nil
		}
		if !e.saveShareMappings(ctx, msg, s.intent, s.target, rk) {
			return shareStart{}, nil
		}
		_, err := e.deps.Transport.Send(ctx, bus.OutboundMessage{
			ChatID:         s.target.ChatID,
			ThreadID:       s.target.Thread(),
			ReplyTo:        s.target.Message,
			Text:           e.deps.Texts.Succeed(rk.String()),
			DisablePreview: true,
		})
		if err != nil {
			e.say(ctx, msg, fmt.Sprintf("Record %s created but answering the original message failed: %v", rk, err))
			return shareStart{}, nil
		}
		e.say(ctx, msg, "✅ Done: "+e.deps.Texts.FeedbackURL(rk.String()))
		return shareStart{}, nil
	case "2":
		e.say(ctx, msg, "Please send the link of the bot message to edit.")
		return shareAwaitEditLink(s), nil
	default:
		e.say(ctx, msg, "Please reply 1 or 2.")
		return s, nil
	}
}

func (e *Engine) shareEditLink(ctx context.Context, msg *bus.InboundMessage, s shareAwaitEditLink) (state, error) {
	t, err := e.resolveLink(ctx, msg.Text)
	if err != nil {
		e.say(ctx, msg, linkError(err))
		return s, nil
	}
	if t.Short != s.target.Short {
		e.say(ctx, msg, fmt.Sprintf("The bot message must be in chat %s.", s.target.Short))
		return s, nil
	}

	if e.claimed(ctx, msg, s.target.Key(), s.intent.ChannelKey) {
		return shareStart{}, nil
	}
	rk := e.createShare(ctx, s.intent)
	if rk == nil {
		e.say(ctx, msg, prompt.Fail)
		return s, nil
	}
	if !e.saveShareMappings(ctx, msg, s.intent, s.target, rk) {
		return shareStart{}, nil
	}
	if err := e.deps.Transport.Edit(ctx, t.ChatID, t.Message, e.deps.Texts.Succeed(rk.String()), false); err != nil {
		e.say(ctx, msg, fmt.Sprintf("Record %s created but editing the bot message failed: %v", rk, err))
		return shareStart{}, nil
	}
	e.say(ctx, msg, "✅ Done: "+e.deps.Texts.FeedbackURL(rk.String()))
	return shareStart{}, nil
}

func (e *Engine) createShare(ctx context.Context, intent *shareIntent) *registry.RecordKey {
	return e.deps.Creator.CreateShare(ctx, registry.ShareInput{
		Author:      intent.Author,
		Context:     *intent.Context,
		Details:     intent.Details,
		EntityURL:   intent.URL,
		Attachments: intent.Attachments,
	})
}

// saveShareMappings writes the group copy key and, for broadcasts, the
// channel key. It reports false after telling the operator on failure.
func (e *Engine) saveShareMappings(ctx context.Context, msg *bus.InboundMessage, intent *shareIntent, t target, rk *registry.RecordKey) bool {
	keys := []string{t.Key()}
	if intent.ChannelKey != "" {
		keys = append(keys, intent.ChannelKey)
	}
	for _, k := range keys {
		if err := e.deps.Repo.Mappings.PutNew(k, rk.String()); err != nil {
			logger.ErrorCF("wizard", "Failed to save mapping", map[string]interface{}{
				"message": k,
				"record":  rk.String(),
				"error":   err.Error(),
			})
			e.say(ctx, msg, fmt.Sprintf("Record %s created but saving the mapping failed: %v", rk, err))
			return false
		}
	}
	return true
}
