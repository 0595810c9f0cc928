// Package curation classifies inbound chat messages and turns the ones that
// qualify into share and reply records.
package curation

import (
	"context"
	"strings"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/identity"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/metrics"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
	"github.com/nomland/nunti/pkg/store"
	"github.com/nomland/nunti/pkg/wizard"
)

type Route string

const (
	RouteWizard  Route = "wizard"
	RouteAdmin   Route = "admin"
	RouteHelp    Route = "help"
	RouteChannel Route = "channel"
	RouteWatch   Route = "watch"
	RouteMention Route = "mention"
	RouteReply   Route = "reply"
	RouteIgnore  Route = "ignore"
)

type Deps struct {
	Transport   bus.Transport
	Repo        *store.Repository
	Resolver    *identity.Resolver
	Creator     *registry.Creator
	Extractor   *extract.Extractor
	Attachments attachments.Store
	Texts       prompt.Texts
	Wizards     *wizard.Engine
}

type Options struct {
	AdminChatID    int64
	CommandTopicID int
}

// Router is the single entry point for inbound messages. It is not safe for
// concurrent use; the transport feeds it one message at a time.
type Router struct {
	deps Deps
	opts Options
	bot  bus.User
}

func NewRouter(deps Deps, opts Options) *Router {
	return &Router{
		deps: deps,
		opts: opts,
		bot:  deps.Transport.BotUser(),
	}
}

// Classify decides what to do with msg without performing any of it.
func (r *Router) Classify(msg *bus.InboundMessage) Route {
	if msg == nil {
		return RouteIgnore
	}
	if msg.From != nil && msg.From.ID == r.bot.ID {
		return RouteIgnore
	}
	if r.deps.Wizards != nil {
		if _, ok := r.deps.Wizards.KindOf(msg); ok {
			return RouteWizard
		}
	}
	if r.isCommandTopic(msg) && strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		return RouteAdmin
	}
	if msg.Chat.Kind == bus.ChatPrivate {
		return RouteHelp
	}
	if msg.Chat.Kind == bus.ChatChannel || isAutomaticForward(msg) {
		return RouteChannel
	}
	if name := commandName(msg.Text, r.bot.Username); name == "help" || name == "start" {
		return RouteHelp
	}
	if r.deps.Repo.Watches.Has(extract.ShortChatID(msg.Chat.ID), msg.ThreadID) {
		return RouteWatch
	}
	if extract.Mentions(msg, r.bot.Username) {
		return RouteMention
	}
	if extract.ReplyTarget(msg) != nil {
		return RouteReply
	}
	return RouteIgnore
}

func (r *Router) isCommandTopic(msg *bus.InboundMessage) bool {
	return r.opts.AdminChatID != 0 &&
		msg.Chat.ID == r.opts.AdminChatID &&
		msg.ThreadID == r.opts.CommandTopicID
}

// isAutomaticForward matches the copy of a channel broadcast that the
// platform posts into the channel's discussion group.
func isAutomaticForward(msg *bus.InboundMessage) bool {
	return msg.IsAutomaticForward && msg.SenderChat != nil && msg.SenderChat.Kind == bus.ChatChannel
}

// commandName returns "help" for "/help" or "/help@bot", or "".
func commandName(text, botUsername string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, at, found := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	if found && !strings.EqualFold(at, botUsername) {
		return ""
	}
	return name
}

// Handle processes msg to completion. Failures are logged and answered in
// the chat; they are never returned, so one bad message cannot stop the
// polling loop.
func (r *Router) Handle(ctx context.Context, msg *bus.InboundMessage) error {
	route := r.Classify(msg)
	metrics.Classifications.WithLabelValues(string(route)).Inc()
	if route != RouteIgnore {
		logger.DebugCF("router", "Message classified", map[string]interface{}{
			"route":      string(route),
			"chat_id":    msg.Chat.ID,
			"message_id": msg.ID,
		})
	}

	switch route {
	case RouteWizard:
		return r.deps.Wizards.Handle(ctx, msg)
	case RouteAdmin:
		r.handleAdmin(ctx, msg)
	case RouteHelp:
		r.handleHelp(ctx, msg)
	case RouteChannel:
		if isAutomaticForward(msg) {
			r.handleAutomaticForward(ctx, msg)
		} else {
			r.handleChannelPost(ctx, msg)
		}
	case RouteWatch:
		r.handleWatch(ctx, msg)
	case RouteMention:
		r.handleMention(ctx, msg)
	case RouteReply:
		r.handleReply(ctx, msg)
	}
	return nil
}

func (r *Router) handleHelp(ctx context.Context, msg *bus.InboundMessage) {
	if commandName(msg.Text, r.bot.Username) == "start" {
		r.answer(ctx, msg, prompt.Welcome)
		return
	}
	if msg.Chat.Kind == bus.ChatPrivate {
		r.answer(ctx, msg, prompt.Help(r.bot.Username, prompt.HelpDM))
		return
	}
	r.answer(ctx, msg, r.groupHelp(ctx, msg))
}

// groupHelp picks the admin or member help text and warns when the bot
// itself lacks admin rights.
func (r *Router) groupHelp(ctx context.Context, msg *bus.InboundMessage) string {
	admins, err := r.deps.Transport.ChatAdministrators(ctx, msg.Chat.ID)
	if err != nil {
		logger.WarnCF("router", "Failed to list chat admins", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   err.Error(),
		})
		return prompt.Help(r.bot.Username, prompt.HelpGroup)
	}
	var fromAdmin, botAdmin bool
	for _, a := range admins {
		if msg.From != nil && a.ID == msg.From.ID {
			fromAdmin = true
		}
		if a.ID == r.bot.ID {
			botAdmin = true
		}
	}
	mode := prompt.HelpGroup
	if fromAdmin {
		mode = prompt.HelpAdmin
	}
	text := prompt.Help(r.bot.Username, mode)
	if !botAdmin {
		text += "\n\n" + prompt.NeedAdmin
	}
	return text
}

// handleChannelPost records a broadcast in a channel. Nothing is posted
// back into the channel; outcomes are logged.
func (r *Router) handleChannelPost(ctx context.Context, msg *bus.InboundMessage) {
	key := extract.MessageKey(msg.Chat.ID, msg.ID)
	if rk, ok := r.deps.Repo.Mappings.Get(key); ok {
		metrics.IdempotentHits.Inc()
		logger.InfoCF("router", "Broadcast already processed", map[string]interface{}{
			"message": key,
			"record":  rk,
		})
		return
	}

	url := r.deps.Extractor.ChannelShareURL(msg)
	if url == "" {
		logger.DebugCF("router", "No recognizable share in broadcast", map[string]interface{}{
			"message": key,
		})
		return
	}

	author, err := r.deps.Resolver.ResolveChannelAuthor(ctx, msg.Chat.ID, msg.AuthorSignature)
	if err != nil || author == nil {
		logger.WarnCF("router", "Broadcast author not resolved", map[string]interface{}{
			"message":   key,
			"signature": msg.AuthorSignature,
			"error":     errString(err),
		})
		return
	}
	community, err := r.deps.Resolver.ResolveContext(ctx, msg.Chat)
	if err != nil || community == nil {
		logger.WarnCF("router", "Broadcast context not resolved", map[string]interface{}{
			"message": key,
			"error":   errString(err),
		})
		return
	}
	details := r.deps.Extractor.ShareDetails(msg)
	if details == nil {
		return
	}

	rk := r.deps.Creator.CreateShare(ctx, registry.ShareInput{
		Author:      *author,
		Context:     *community,
		Details:     *details,
		EntityURL:   url,
		Attachments: attachments.Collect(ctx, r.deps.Transport, r.deps.Attachments, msg),
	})
	if rk == nil {
		return
	}
	if err := r.deps.Repo.Mappings.Put(key, rk.String()); err != nil {
		logger.ErrorCF("router", "Failed to save mapping", map[string]interface{}{
			"message": key,
			"record":  rk.String(),
			"error":   err.Error(),
		})
	}
}

// handleAutomaticForward aliases the discussion-group copy of a recorded
// broadcast so that replies in the group resolve to the same record.
func (r *Router) handleAutomaticForward(ctx context.Context, msg *bus.InboundMessage) {
	o := msg.ForwardOrigin
	if o == nil || o.Chat == nil || o.MessageID == 0 {
		return
	}
	rk, ok := r.deps.Repo.Mappings.Get(extract.MessageKey(o.Chat.ID, o.MessageID))
	if !ok {
		return
	}
	groupKey := extract.MessageKey(msg.Chat.ID, msg.ID)
	if err := r.deps.Repo.Mappings.PutNew(groupKey, rk); err != nil {
		logger.DebugCF("router", "Group copy not aliased", map[string]interface{}{
			"message": groupKey,
			"error":   err.Error(),
		})
		return
	}
	r.answer(ctx, msg, r.deps.Texts.Succeed(rk))
}

func (r *Router) handleMention(ctx context.Context, msg *bus.InboundMessage) {
	if url := extract.ExtractURL(msg); url != "" {
		r.share(ctx, msg, shareRequest{
			url:     url,
			source:  msg,
			replyTo: r.parentRecord(msg),
			keys:    []string{extract.MessageKey(msg.Chat.ID, msg.ID)},
		})
		return
	}

	// Mention without URL: the replied-to message supplies both the URL and
	// the content, the mentioning user is the curator.
	if target := extract.ReplyTarget(msg); target != nil {
		if url := extract.ExtractURL(target); url != "" {
			r.share(ctx, msg, shareRequest{
				url:    url,
				source: target,
				keys: []string{
					extract.MessageKey(target.Chat.ID, target.ID),
					extract.MessageKey(msg.Chat.ID, msg.ID),
				},
			})
			return
		}
	}
	r.answer(ctx, msg, r.groupHelp(ctx, msg))
}

// handleReply records a reply to an already recorded message. A URL in the
// reply makes it a new share pointing at the parent instead.
func (r *Router) handleReply(ctx context.Context, msg *bus.InboundMessage) {
	parent := r.parentRecord(msg)
	if parent == nil {
		return
	}
	key := extract.MessageKey(msg.Chat.ID, msg.ID)
	if url := extract.ExtractURL(msg); url != "" {
		r.share(ctx, msg, shareRequest{url: url, source: msg, replyTo: parent, keys: []string{key}})
		return
	}
	r.reply(ctx, msg, *parent)
}

// handleWatch treats every message of a watched topic as a share. Messages
// without a URL share their own link, unless they answer a recorded message.
// A watched reply carrying a URL becomes one share with replyTo set, not a
// share plus a reply, since a message key maps to at most one record.
func (r *Router) handleWatch(ctx context.Context, msg *bus.InboundMessage) {
	key := extract.MessageKey(msg.Chat.ID, msg.ID)
	parent := r.parentRecord(msg)
	url := extract.ExtractURL(msg)
	if url == "" && parent != nil {
		r.reply(ctx, msg, *parent)
		return
	}
	if url == "" {
		url = extract.MakeMsgLink(msg)
	}
	if url == "" || strings.TrimSpace(msg.Text) == "" {
		return
	}
	r.share(ctx, msg, shareRequest{url: url, source: msg, replyTo: parent, keys: []string{key}})
}

// parentRecord returns the record msg's reply target maps to, or nil.
func (r *Router) parentRecord(msg *bus.InboundMessage) *registry.RecordKey {
	target := extract.ReplyTarget(msg)
	if target == nil {
		return nil
	}
	raw, ok := r.deps.Repo.Mappings.Get(extract.MessageKey(target.Chat.ID, target.ID))
	if !ok {
		return nil
	}
	rk, err := registry.ParseRecordKey(raw)
	if err != nil {
		logger.WarnCF("router", "Corrupt mapping value", map[string]interface{}{
			"message": extract.MessageKey(target.Chat.ID, target.ID),
			"value":   raw,
		})
		return nil
	}
	return &rk
}

// answer replies to msg in its own thread.
func (r *Router) answer(ctx context.Context, msg *bus.InboundMessage, text string) int {
	id, err := r.deps.Transport.Send(ctx, bus.OutboundMessage{
		ChatID:         msg.Chat.ID,
		ThreadID:       msg.ThreadID,
		ReplyTo:        msg.ID,
		Text:           text,
		DisablePreview: true,
	})
	if err != nil {
		logger.WarnCF("router", "Failed to send message", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   err.Error(),
		})
		return 0
	}
	return id
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
