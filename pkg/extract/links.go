package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nomland/nunti/pkg/bus"
)

var ErrInvalidLink = errors.New("invalid message link")

// ShortChatID drops the -100 supergroup/channel prefix, the form used in
// t.me/c/ links and in every persisted key.
func ShortChatID(id int64) string {
	s := strconv.FormatInt(id, 10)
	if strings.HasPrefix(s, "-100") {
		return s[4:]
	}
	return strings.TrimPrefix(s, "-")
}

// FullChatID is the inverse of ShortChatID for supergroups and channels.
func FullChatID(short string) (int64, error) {
	if short == "" || strings.HasPrefix(short, "-") {
		return 0, fmt.Errorf("invalid short chat id %q", short)
	}
	return strconv.ParseInt("-100"+short, 10, 64)
}

func MessageKey(chatID int64, messageID int) string {
	return ShortMessageKey(ShortChatID(chatID), messageID)
}

func ShortMessageKey(shortChatID string, messageID int) string {
	return shortChatID + "-" + strconv.Itoa(messageID)
}

// MsgLink is a decomposed https://t.me message link. Chat is either a public
// username or a short numeric id (Private).
type MsgLink struct {
	Chat    string
	Topic   int
	Message int
	Private bool
}

// DecomposeMsgLink understands public and private links with or without a
// topic segment. Without a topic the topic equals the message id.
func DecomposeMsgLink(link string) (MsgLink, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return MsgLink{}, fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "t.me" && host != "telegram.me" {
		return MsgLink{}, fmt.Errorf("%w: unexpected host %q", ErrInvalidLink, u.Host)
	}

	var parts []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	out := MsgLink{}
	if len(parts) > 0 && parts[0] == "c" {
		out.Private = true
		parts = parts[1:]
	}

	var topicPart, msgPart string
	switch len(parts) {
	case 2:
		out.Chat, msgPart = parts[0], parts[1]
		topicPart = msgPart
	case 3:
		out.Chat, topicPart, msgPart = parts[0], parts[1], parts[2]
	default:
		return MsgLink{}, fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}

	if out.Message, err = strconv.Atoi(msgPart); err != nil || out.Message <= 0 {
		return MsgLink{}, fmt.Errorf("%w: bad message id in %q", ErrInvalidLink, link)
	}
	if out.Topic, err = strconv.Atoi(topicPart); err != nil {
		return MsgLink{}, fmt.Errorf("%w: bad topic id in %q", ErrInvalidLink, link)
	}
	if out.Private {
		if _, err := strconv.ParseUint(out.Chat, 10, 64); err != nil {
			return MsgLink{}, fmt.Errorf("%w: bad chat id in %q", ErrInvalidLink, link)
		}
	}
	return out, nil
}

// MakeMsgLink builds the t.me/c link for a supergroup message, or "" for
// other chat kinds.
func MakeMsgLink(msg *bus.InboundMessage) string {
	if msg.Chat.Kind != bus.ChatSupergroup {
		return ""
	}
	thread := msg.ThreadID
	if thread == 0 {
		thread = 1
	}
	return fmt.Sprintf("https://t.me/c/%s/%d/%d", ShortChatID(msg.Chat.ID), thread, msg.ID)
}

// ChannelPostLink links to a broadcast in its channel.
func ChannelPostLink(ch bus.Chat, messageID int) string {
	if messageID == 0 {
		return ""
	}
	if ch.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", ch.Username, messageID)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", ShortChatID(ch.ID), messageID)
}

// ForwardedMessageLink links to the original of a forwarded channel post.
func ForwardedMessageLink(msg *bus.InboundMessage) string {
	o := msg.ForwardOrigin
	if o == nil || o.Chat == nil {
		return ""
	}
	return ChannelPostLink(*o.Chat, o.MessageID)
}
