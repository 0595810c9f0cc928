// Package extract pulls shareable features (url, tags, content, provenance)
// out of inbound chat messages.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nomland/nunti/pkg/bus"
)

var (
	urlRegex    = regexp.MustCompile(`(http|https)://[^\s]+`)
	tagRegex    = regexp.MustCompile(`#[^\s]+`)
	spacesRegex = regexp.MustCompile(`[ \t]{2,}`)
)

// Details is the note payload sent to the registry for a share or reply.
type Details struct {
	Content       string   `json:"content"`
	RawContent    string   `json:"raw_content"`
	Tags          []string `json:"tags"`
	Sources       []string `json:"sources"`
	DatePublished string   `json:"date_published"`
	ExternalURL   string   `json:"external_url,omitempty"`
}

type Extractor struct {
	Platform          string
	CommunityFallback string
	DefaultTopic      string
	BotUsername       string
	IgnoreDomains     []string
}

// FirstURL returns the first http(s) URL in text, or "".
func FirstURL(text string) string {
	return urlRegex.FindString(text)
}

// ExtractURL returns the first URL in the message text, falling back to the
// first text_link entity.
func ExtractURL(msg *bus.InboundMessage) string {
	if msg == nil || msg.Text == "" {
		return ""
	}
	if u := FirstURL(msg.Text); u != "" {
		return u
	}
	for _, e := range msg.Entities {
		if e.Type == "text_link" && e.URL != "" {
			return e.URL
		}
	}
	return ""
}

// Ignored reports whether url contains one of the ignored domain fragments.
func Ignored(url string, ignore []string) bool {
	for _, frag := range ignore {
		if frag != "" && strings.Contains(url, frag) {
			return true
		}
	}
	return false
}

// ChannelShareURL is ExtractURL with the ignore list applied. Only channel
// broadcasts are filtered.
func (x *Extractor) ChannelShareURL(msg *bus.InboundMessage) string {
	u := ExtractURL(msg)
	if u == "" || Ignored(u, x.IgnoreDomains) {
		return ""
	}
	return u
}

func ExtractTags(text string) []string {
	matches := tagRegex.FindAllString(text, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		if tag := strings.TrimPrefix(m, "#"); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// CleanContent strips URLs, hashtags and the bot mention.
func CleanContent(text, botUsername string) string {
	s := urlRegex.ReplaceAllString(text, "")
	s = tagRegex.ReplaceAllString(s, "")
	if botUsername != "" {
		s = strings.ReplaceAll(s, "@"+botUsername, "")
	}
	s = spacesRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Mentions reports whether msg carries a mention entity for the bot.
func Mentions(msg *bus.InboundMessage, botUsername string) bool {
	if msg == nil || botUsername == "" {
		return false
	}
	want := "@" + strings.ToLower(botUsername)
	for _, e := range msg.Entities {
		if e.Type == "mention" && strings.ToLower(e.Text) == want {
			return true
		}
	}
	return false
}

// ReplyTarget returns the message msg replies to, ignoring the implicit reply
// every forum message carries to its topic's creation message.
func ReplyTarget(msg *bus.InboundMessage) *bus.InboundMessage {
	if msg == nil || msg.ReplyTo == nil {
		return nil
	}
	r := msg.ReplyTo
	if r.TopicName != "" {
		return nil
	}
	if msg.IsTopicMessage && r.ID == msg.ThreadID {
		return nil
	}
	return r
}

// TopicName is the forum topic msg was posted in, or the default topic.
func (x *Extractor) TopicName(msg *bus.InboundMessage) string {
	if msg.ReplyTo != nil && msg.ReplyTo.TopicName != "" {
		return msg.ReplyTo.TopicName
	}
	return x.DefaultTopic
}

func (x *Extractor) communityName(ch *bus.Chat) string {
	if ch != nil && ch.Title != "" {
		return ch.Title
	}
	return x.CommunityFallback
}

func (x *Extractor) base(msg *bus.InboundMessage, date int64) *Details {
	return &Details{
		Content:       CleanContent(msg.Text, x.BotUsername),
		RawContent:    msg.Text,
		Tags:          ExtractTags(msg.Text),
		DatePublished: ConvertDate(date),
	}
}

// ShareDetails builds details for a message posted directly in a group or
// channel. It returns nil when the message has no text.
func (x *Extractor) ShareDetails(msg *bus.InboundMessage) *Details {
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	d := x.base(msg, msg.Date)
	d.Sources = []string{x.Platform, x.communityName(&msg.Chat), x.TopicName(msg)}
	if msg.Chat.Kind == bus.ChatChannel {
		d.ExternalURL = ChannelPostLink(msg.Chat, msg.ID)
	} else {
		d.ExternalURL = MakeMsgLink(msg)
	}
	return d
}

// ChannelForwardDetails builds details for a forwarded channel broadcast,
// using the origin channel and date.
func (x *Extractor) ChannelForwardDetails(msg *bus.InboundMessage) *Details {
	if msg == nil || msg.ForwardOrigin == nil || msg.ForwardOrigin.Chat == nil {
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	d := x.base(msg, msg.ForwardOrigin.Date)
	d.Sources = []string{x.Platform, x.communityName(msg.ForwardOrigin.Chat), x.TopicName(msg)}
	d.ExternalURL = ForwardedMessageLink(msg)
	return d
}

// UserForwardDetails builds details for a message forwarded from a user.
func (x *Extractor) UserForwardDetails(msg *bus.InboundMessage) *Details {
	if msg == nil || msg.ForwardOrigin == nil {
		return nil
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	d := x.base(msg, msg.ForwardOrigin.Date)
	d.Sources = []string{x.Platform}
	return d
}

// ConvertDate renders a 10-digit (seconds) or 13-digit (milliseconds) epoch
// as an ISO-8601 UTC timestamp. Other values are returned as plain numbers.
func ConvertDate(date int64) string {
	s := strconv.FormatInt(date, 10)
	switch len(s) {
	case 10:
		return time.Unix(date, 0).UTC().Format("2006-01-02T15:04:05.000Z")
	case 13:
		return time.UnixMilli(date).UTC().Format("2006-01-02T15:04:05.000Z")
	default:
		return s
	}
}
