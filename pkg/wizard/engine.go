// Package wizard runs the admin-operated, multi-turn workflows that build
// share and reply records by hand when automatic classification cannot.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/identity"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/metrics"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
	"github.com/nomland/nunti/pkg/store"
)

var ErrInconsistentSession = errors.New("wizard: inconsistent session")

type Kind string

const (
	KindShare Kind = "share"
	KindReply Kind = "reply"
)

// State names a wizard state. START is shared by both wizards.
type State string

const (
	StateStart         State = "START"
	StateWaitMsgID     State = "WAIT_MSG_ID"
	StateWaitUserMsgID State = "WAIT_USER_MSG_ID"
	StateWaitRplOption State = "WAIT_RPL_OPTION"
	StateWaitEditLink  State = "WAIT_EDIT_LINK"
	StateWaitAuthorID  State = "WAIT_AUTHOR_ID"
	StateWaitRplMsgID  State = "WAIT_RPL_MSG_ID"
)

const (
	cmdRestart = "restart"
	cmdStatus  = "/status"
)

// state is one variant of a wizard's session. Each wizard has its own
// closed set of variants; see share.go and reply.go.
type state interface {
	Name() State
}

type sessionKey struct {
	Topic int
	Kind  Kind
}

type Deps struct {
	Transport   bus.Transport
	Repo        *store.Repository
	Resolver    *identity.Resolver
	Creator     *registry.Creator
	Extractor   *extract.Extractor
	Attachments attachments.Store
	Texts       prompt.Texts
}

// Engine holds one live session per (admin topic, wizard kind). Sessions
// live in memory only and are lost on restart.
type Engine struct {
	deps      Deps
	adminChat int64
	topics    map[int]Kind

	mu       sync.Mutex
	sessions map[sessionKey]state
}

// NewEngine binds wizard kinds to topics of the admin chat. A zero topic id
// disables that wizard.
func NewEngine(deps Deps, adminChat int64, shareTopic, replyTopic int) *Engine {
	topics := map[int]Kind{}
	if shareTopic != 0 {
		topics[shareTopic] = KindShare
	}
	if replyTopic != 0 {
		topics[replyTopic] = KindReply
	}
	return &Engine{
		deps:      deps,
		adminChat: adminChat,
		topics:    topics,
		sessions:  map[sessionKey]state{},
	}
}

// KindOf reports which wizard owns msg's topic, if any.
func (e *Engine) KindOf(msg *bus.InboundMessage) (Kind, bool) {
	if msg == nil || e.adminChat == 0 || msg.Chat.ID != e.adminChat {
		return "", false
	}
	kind, ok := e.topics[msg.ThreadID]
	return kind, ok
}

// Status returns the current state of the session for (topic, kind).
func (e *Engine) Status(topic int, kind Kind) State {
	return e.current(sessionKey{Topic: topic, Kind: kind}).Name()
}

func (e *Engine) current(key sessionKey) state {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sessions[key]; ok {
		return s
	}
	return startOf(key.Kind)
}

func (e *Engine) set(key sessionKey, s state) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s == nil || s.Name() == StateStart {
		delete(e.sessions, key)
		return
	}
	e.sessions[key] = s
}

func startOf(kind Kind) state {
	if kind == KindReply {
		return replyStart{}
	}
	return shareStart{}
}

// Handle feeds msg to the session of its topic. A step that fails leaves
// the session in its previous state so the next message retries it.
func (e *Engine) Handle(ctx context.Context, msg *bus.InboundMessage) error {
	kind, ok := e.KindOf(msg)
	if !ok {
		return nil
	}
	key := sessionKey{Topic: msg.ThreadID, Kind: kind}
	text := strings.TrimSpace(msg.Text)

	switch strings.ToLower(text) {
	case cmdRestart:
		e.set(key, nil)
		metrics.WizardSteps.WithLabelValues(string(kind), string(StateStart), "restart").Inc()
		e.say(ctx, msg, "🔄 Session restarted. Current state: "+string(StateStart))
		return nil
	case cmdStatus:
		e.say(ctx, msg, "Current state: "+string(e.current(key).Name()))
		return nil
	}

	cur := e.current(key)
	var next state
	var err error
	switch kind {
	case KindShare:
		next, err = e.stepShare(ctx, msg, cur)
	case KindReply:
		next, err = e.stepReply(ctx, msg, cur)
	default:
		err = fmt.Errorf("%w: unknown wizard %q", ErrInconsistentSession, kind)
	}

	switch {
	case errors.Is(err, ErrInconsistentSession):
		metrics.WizardSteps.WithLabelValues(string(kind), string(cur.Name()), "inconsistent").Inc()
		logger.ErrorCF("wizard", "Session reset after inconsistency", map[string]interface{}{
			"wizard": string(kind),
			"topic":  key.Topic,
			"state":  string(cur.Name()),
			"error":  err.Error(),
		})
		e.set(key, nil)
		e.say(ctx, msg, prompt.InternalError)
		return nil
	case err != nil:
		metrics.WizardSteps.WithLabelValues(string(kind), string(cur.Name()), "error").Inc()
		logger.WarnCF("wizard", "Wizard step failed", map[string]interface{}{
			"wizard": string(kind),
			"state":  string(cur.Name()),
			"error":  err.Error(),
		})
		e.say(ctx, msg, "😢 Step failed: "+err.Error()+". Please try again.")
		return nil
	}

	result := "stay"
	if next.Name() != cur.Name() {
		result = "advance"
	}
	metrics.WizardSteps.WithLabelValues(string(kind), string(cur.Name()), result).Inc()
	logger.DebugCF("wizard", "Wizard step", map[string]interface{}{
		"wizard": string(kind),
		"from":   string(cur.Name()),
		"to":     string(next.Name()),
	})
	e.set(key, next)
	return nil
}

// say answers the operator in the wizard topic.
func (e *Engine) say(ctx context.Context, msg *bus.InboundMessage, text string) {
	_, err := e.deps.Transport.Send(ctx, bus.OutboundMessage{
		ChatID:         msg.Chat.ID,
		ThreadID:       msg.ThreadID,
		ReplyTo:        msg.ID,
		Text:           text,
		DisablePreview: true,
	})
	if err != nil {
		logger.WarnCF("wizard", "Failed to answer operator", map[string]interface{}{
			"chat_id": msg.Chat.ID,
			"error":   err.Error(),
		})
	}
}

type target = identity.LinkTarget

func (e *Engine) resolveLink(ctx context.Context, text string) (target, error) {
	return e.deps.Resolver.ResolveLink(ctx, text)
}

// linkError turns a resolveLink failure into an operator hint.
func linkError(err error) string {
	if errors.Is(err, extract.ErrInvalidLink) {
		return "Please send a valid message link, e.g. https://t.me/c/1234567890/8/404"
	}
	return "Cannot resolve the link: " + err.Error()
}

func (e *Engine) mapped(key string) (string, bool) {
	return e.deps.Repo.Mappings.Get(key)
}

// claimed reports whether any of keys got mapped while the session was
// waiting for input, telling the operator which record owns it.
func (e *Engine) claimed(ctx context.Context, msg *bus.InboundMessage, keys ...string) bool {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if rk, ok := e.mapped(k); ok {
			e.say(ctx, msg, e.deps.Texts.AlreadyProcessed(rk))
			return true
		}
	}
	return false
}
