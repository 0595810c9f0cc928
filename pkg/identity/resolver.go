// Package identity maps chats and users to registry accounts.
package identity

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/registry"
	"github.com/nomland/nunti/pkg/store"
)

const contextHandleDigits = 12

// HashOf returns the last digits hex characters of md5(content).
func HashOf(content string, digits int) string {
	sum := md5.Sum([]byte(content))
	h := hex.EncodeToString(sum[:])
	if digits <= 0 || digits > len(h) {
		return h
	}
	return h[len(h)-digits:]
}

// FormatHandle is the registry handle for an identity on a platform.
func FormatHandle(handle, platform string) string {
	return strings.ToLower(handle + "-" + platform)
}

type Resolver struct {
	reg       registry.Registry
	transport bus.Transport
	contexts  *store.ContextMap
	avatars   attachments.Store
	platform  string
}

func NewResolver(reg registry.Registry, transport bus.Transport, contexts *store.ContextMap, avatars attachments.Store, platform string) *Resolver {
	return &Resolver{
		reg:       reg,
		transport: transport,
		contexts:  contexts,
		avatars:   avatars,
		platform:  platform,
	}
}

func (r *Resolver) ContextHandle(chatID int64) string {
	return FormatHandle(HashOf(strconv.FormatInt(chatID, 10), contextHandleDigits), r.platform)
}

func (r *Resolver) UserHandle(u bus.User) string {
	if u.Username != "" {
		return FormatHandle(u.Username, r.platform)
	}
	return FormatHandle(strconv.FormatInt(u.ID, 10), r.platform)
}

// ResolveContext returns the community context for chat, or nil for private
// chats. Lookup order: bound context, registry handle, linked channel,
// then a context synthesized from the chat itself.
func (r *Resolver) ResolveContext(ctx context.Context, chat bus.Chat) (*registry.Account, error) {
	if chat.Kind == bus.ChatPrivate {
		return nil, nil
	}

	if ref, ok := r.contexts.Get(extract.ShortChatID(chat.ID)); ok {
		return &registry.Account{CharacterID: ref}, nil
	}

	handle := r.ContextHandle(chat.ID)
	ch, err := r.reg.CharacterByHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("context lookup %s: %w", handle, err)
	}
	if ch != nil {
		return &registry.Account{CharacterID: ch.CharacterID}, nil
	}

	acc := r.chatAccount(chat.ID, chat.Title, chat.Username)
	info, err := r.transport.ChatInfo(ctx, bus.ChatRef{ID: chat.ID})
	if err != nil {
		logger.WarnCF("identity", "Chat info unavailable, using message chat", map[string]interface{}{
			"chat_id": chat.ID,
			"error":   err.Error(),
		})
		return &acc, nil
	}
	acc.Description = info.Description

	if info.LinkedChatID != 0 {
		linked, err := r.transport.ChatInfo(ctx, bus.ChatRef{ID: info.LinkedChatID})
		if err != nil {
			logger.WarnCF("identity", "Linked chat info unavailable", map[string]interface{}{
				"chat_id":   chat.ID,
				"linked_id": info.LinkedChatID,
				"error":     err.Error(),
			})
		} else if linked.Kind == bus.ChatChannel {
			acc.Nickname = linked.Title
			acc.Description = linked.Description
		}
	}
	return &acc, nil
}

// ResolveContextByChatID resolves a context from a short chat id, as found
// in t.me/c/ links.
func (r *Resolver) ResolveContextByChatID(ctx context.Context, shortChatID string) (*registry.Account, error) {
	if ref, ok := r.contexts.Get(shortChatID); ok {
		return &registry.Account{CharacterID: ref}, nil
	}
	full, err := extract.FullChatID(shortChatID)
	if err != nil {
		return nil, err
	}

	handle := r.ContextHandle(full)
	ch, err := r.reg.CharacterByHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("context lookup %s: %w", handle, err)
	}
	if ch != nil {
		return &registry.Account{CharacterID: ch.CharacterID}, nil
	}

	info, err := r.transport.ChatInfo(ctx, bus.ChatRef{ID: full})
	if err != nil {
		return nil, fmt.Errorf("chat info %s: %w", shortChatID, err)
	}
	acc := r.chatAccount(full, info.Title, info.Username)
	acc.Description = info.Description
	return &acc, nil
}

func (r *Resolver) chatAccount(chatID int64, title, username string) registry.Account {
	name := title
	if name == "" {
		name = username
	}
	return registry.Account{
		Handle:   r.ContextHandle(chatID),
		Platform: r.platform,
		Nickname: name,
	}
}

// ResolveAuthor maps a platform user to a registry account. With
// fetchAvatar, a character without avatar gets the user's current profile
// photo; an existing avatar is never replaced.
func (r *Resolver) ResolveAuthor(ctx context.Context, u bus.User, fetchAvatar bool) (registry.Account, error) {
	acc := registry.Account{
		Handle:   r.UserHandle(u),
		Platform: r.platform,
		Nickname: u.DisplayName(),
	}

	ch, err := r.reg.CharacterByHandle(ctx, acc.Handle)
	if err != nil {
		return registry.Account{}, fmt.Errorf("author lookup %s: %w", acc.Handle, err)
	}
	if ch != nil {
		acc.CharacterID = ch.CharacterID
		if len(ch.Metadata.Avatars) > 0 {
			acc.Avatar = ch.Metadata.Avatars[0]
			return acc, nil
		}
	}
	if !fetchAvatar || r.avatars == nil {
		return acc, nil
	}

	avatar := r.uploadAvatar(ctx, u.ID)
	if avatar == "" {
		return acc, nil
	}
	acc.Avatar = avatar

	if ch != nil {
		md := ch.Metadata
		md.Avatars = []string{avatar}
		if err := r.reg.SetCharacterMetadata(ctx, ch.CharacterID, md); err != nil {
			logger.WarnCF("identity", "Failed to attach avatar", map[string]interface{}{
				"character": ch.CharacterID,
				"error":     err.Error(),
			})
		}
	}
	return acc, nil
}

func (r *Resolver) uploadAvatar(ctx context.Context, userID int64) string {
	photo, err := r.transport.ProfilePhoto(ctx, userID)
	if err != nil {
		logger.WarnCF("identity", "Failed to fetch profile photo", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ""
	}
	if len(photo) == 0 {
		return ""
	}
	att, err := r.avatars.Put(ctx, photo, "image/jpeg")
	if err != nil {
		logger.WarnCF("identity", "Failed to store profile photo", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return ""
	}
	return att.Address
}

// ChannelBroadcastAuthor finds the channel admin whose display name equals
// the broadcast signature. It returns nil when nobody matches.
func (r *Resolver) ChannelBroadcastAuthor(ctx context.Context, channelID int64, signature string) (*bus.User, error) {
	if signature == "" {
		return nil, nil
	}
	admins, err := r.transport.ChatAdministrators(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel admins %d: %w", channelID, err)
	}
	for i := range admins {
		if admins[i].DisplayName() == signature {
			return &admins[i], nil
		}
	}
	return nil, nil
}

// ResolveChannelAuthor resolves the signed author of a channel broadcast.
// Forwarded broadcasts carry no photo context so avatars are not fetched.
func (r *Resolver) ResolveChannelAuthor(ctx context.Context, channelID int64, signature string) (*registry.Account, error) {
	u, err := r.ChannelBroadcastAuthor(ctx, channelID, signature)
	if err != nil || u == nil {
		return nil, err
	}
	acc, err := r.ResolveAuthor(ctx, *u, false)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// HiddenAuthor synthesizes an account for a user who hides their profile
// when forwarded. Only the display name is known.
func (r *Resolver) HiddenAuthor(name string) registry.Account {
	return registry.Account{
		Handle:   FormatHandle(HashOf(name, contextHandleDigits), r.platform),
		Platform: r.platform,
		Nickname: name,
	}
}

// AccountByHandle validates an operator-supplied registry handle. It returns
// nil when no such character exists.
func (r *Resolver) AccountByHandle(ctx context.Context, handle string) (*registry.Account, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, nil
	}
	ch, err := r.reg.CharacterByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}
	return &registry.Account{CharacterID: ch.CharacterID, Handle: ch.Handle}, nil
}

// LinkTarget is a message link resolved against the transport.
type LinkTarget struct {
	ChatID  int64
	Short   string
	Kind    bus.ChatKind
	Topic   int
	Message int
}

func (t LinkTarget) Key() string {
	return extract.ShortMessageKey(t.Short, t.Message)
}

func (t LinkTarget) Link() string {
	if t.Topic != 0 && t.Topic != t.Message {
		return fmt.Sprintf("https://t.me/c/%s/%d/%d", t.Short, t.Topic, t.Message)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", t.Short, t.Message)
}

// Thread is the forum thread of the linked message, or 0 outside forums.
func (t LinkTarget) Thread() int {
	if t.Topic == t.Message {
		return 0
	}
	return t.Topic
}

func (t LinkTarget) IsGroup() bool {
	return t.Kind == bus.ChatGroup || t.Kind == bus.ChatSupergroup
}

// ResolveLink turns a t.me message link into a chat id, looking public
// usernames up through the transport.
func (r *Resolver) ResolveLink(ctx context.Context, link string) (LinkTarget, error) {
	ml, err := extract.DecomposeMsgLink(link)
	if err != nil {
		return LinkTarget{}, err
	}
	ref := bus.ChatRef{Username: ml.Chat}
	if ml.Private {
		id, err := extract.FullChatID(ml.Chat)
		if err != nil {
			return LinkTarget{}, fmt.Errorf("%w: %v", extract.ErrInvalidLink, err)
		}
		ref = bus.ChatRef{ID: id}
	}
	info, err := r.transport.ChatInfo(ctx, ref)
	if err != nil {
		return LinkTarget{}, fmt.Errorf("resolve chat %s: %w", ml.Chat, err)
	}
	return LinkTarget{
		ChatID:  info.ID,
		Short:   extract.ShortChatID(info.ID),
		Kind:    info.Kind,
		Topic:   ml.Topic,
		Message: ml.Message,
	}, nil
}
