package bus

import "context"

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

type Chat struct {
	ID       int64    `json:"id"`
	Kind     ChatKind `json:"kind"`
	Title    string   `json:"title,omitempty"`
	Username string   `json:"username,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName is "First Last", or just "First" when there is no last name.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Entity is a formatting span. Text holds the covered substring.
type Entity struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

type OriginKind string

const (
	OriginUser       OriginKind = "user"
	OriginHiddenUser OriginKind = "hidden_user"
	OriginChat       OriginKind = "chat"
	OriginChannel    OriginKind = "channel"
)

type ForwardOrigin struct {
	Kind       OriginKind `json:"kind"`
	Date       int64      `json:"date"`
	User       *User      `json:"user,omitempty"`
	HiddenName string     `json:"hidden_name,omitempty"`
	Chat       *Chat      `json:"chat,omitempty"`
	MessageID  int        `json:"message_id,omitempty"`
	Signature  string     `json:"signature,omitempty"`
}

type PhotoRef struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type InboundMessage struct {
	ID                 int             `json:"id"`
	ThreadID           int             `json:"thread_id,omitempty"`
	IsTopicMessage     bool            `json:"is_topic_message,omitempty"`
	IsAutomaticForward bool            `json:"is_automatic_forward,omitempty"`
	Chat               Chat            `json:"chat"`
	From               *User           `json:"from,omitempty"`
	SenderChat         *Chat           `json:"sender_chat,omitempty"`
	Date               int64           `json:"date"`
	Text               string          `json:"text,omitempty"` // text or caption
	Entities           []Entity        `json:"entities,omitempty"`
	AuthorSignature    string          `json:"author_signature,omitempty"`
	ReplyTo            *InboundMessage `json:"reply_to,omitempty"`
	ForwardOrigin      *ForwardOrigin  `json:"forward_origin,omitempty"`
	Photos             []PhotoRef      `json:"photos,omitempty"`
	// TopicName is set on the service message that created a forum topic.
	TopicName string `json:"topic_name,omitempty"`
}

// LargestPhoto returns the biggest photo size attached to the message.
func (m *InboundMessage) LargestPhoto() (PhotoRef, bool) {
	if len(m.Photos) == 0 {
		return PhotoRef{}, false
	}
	best := m.Photos[0]
	for _, p := range m.Photos[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best, true
}

type OutboundMessage struct {
	ChatID         int64  `json:"chat_id"`
	ChatUsername   string `json:"chat_username,omitempty"`
	ThreadID       int    `json:"thread_id,omitempty"`
	ReplyTo        int    `json:"reply_to,omitempty"`
	Text           string `json:"text"`
	HTML           bool   `json:"html,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

type ChatInfo struct {
	ID           int64    `json:"id"`
	Kind         ChatKind `json:"kind"`
	Title        string   `json:"title,omitempty"`
	Username     string   `json:"username,omitempty"`
	Description  string   `json:"description,omitempty"`
	LinkedChatID int64    `json:"linked_chat_id,omitempty"`
}

// ChatRef names a chat either by numeric id or by public @username.
type ChatRef struct {
	ID       int64
	Username string
}

// Transport is everything the curation core needs from the chat platform.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, html bool) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	ChatAdministrators(ctx context.Context, chatID int64) ([]User, error)
	ChatInfo(ctx context.Context, ref ChatRef) (*ChatInfo, error)
	// ProfilePhoto returns the bytes of the user's current largest profile
	// photo, or nil when the user has none.
	ProfilePhoto(ctx context.Context, userID int64) ([]byte, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
	BotUser() User
}

type MessageHandler func(ctx context.Context, msg *InboundMessage) error
