// Package channels connects the curation core to chat platforms.
package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/utils"
)

const telegramMaxLen = 4096

// TelegramChannel implements bus.Transport over the Bot API and feeds
// inbound updates to a handler one at a time.
type TelegramChannel struct {
	bot     *telego.Bot
	config  config.TelegramConfig
	me      bus.User
	maxFile int64
	running atomic.Bool
}

func NewTelegramChannel(cfg config.TelegramConfig, maxFileBytes int64) (*TelegramChannel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		bot:     bot,
		config:  cfg,
		maxFile: maxFileBytes,
	}, nil
}

// Connect fetches the bot's own identity. It must succeed before BotUser is
// meaningful.
func (c *TelegramChannel) Connect(ctx context.Context) error {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	c.me = convertUser(me)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": me.Username,
		"id":       me.ID,
	})
	return nil
}

// Start long-polls for updates and hands every group message and channel
// post to handler sequentially. It returns once polling is set up.
func (c *TelegramChannel) Start(ctx context.Context, handler bus.MessageHandler) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	timeout := c.config.PollTimeout
	if timeout <= 0 {
		timeout = 30
	}
	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        timeout,
		AllowedUpdates: []string{"message", "channel_post"},
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.running.Store(true)
	go func() {
		defer c.running.Store(false)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					return
				}
				c.dispatch(ctx, update, handler)
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) dispatch(ctx context.Context, update telego.Update, handler bus.MessageHandler) {
	raw := update.Message
	if raw == nil {
		raw = update.ChannelPost
	}
	if raw == nil {
		return
	}
	msg := convertMessage(raw)
	logger.DebugCF("telegram", "Received message", map[string]interface{}{
		"chat_id":    msg.Chat.ID,
		"message_id": msg.ID,
		"preview":    utils.Truncate(msg.Text, 50),
	})
	if err := handler(ctx, msg); err != nil {
		logger.ErrorCF("telegram", "Message handler failed", map[string]interface{}{
			"chat_id":    msg.Chat.ID,
			"message_id": msg.ID,
			"error":      err.Error(),
		})
	}
}

func (c *TelegramChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *TelegramChannel) BotUser() bus.User {
	return c.me
}

// Send posts msg and returns the id of the first message sent. Texts over
// the platform limit are split; HTML that fails to parse is resent as plain
// text.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) (int, error) {
	chatID := tu.ID(msg.ChatID)
	if msg.ChatUsername != "" {
		chatID = tu.Username("@" + strings.TrimPrefix(msg.ChatUsername, "@"))
	}

	first := 0
	for i, chunk := range splitLargeMessage(msg.Text, telegramMaxLen) {
		params := tu.Message(chatID, chunk)
		params.MessageThreadID = msg.ThreadID
		if msg.ReplyTo != 0 && i == 0 {
			params.ReplyParameters = &telego.ReplyParameters{
				MessageID:                msg.ReplyTo,
				AllowSendingWithoutReply: true,
			}
		}
		if msg.DisablePreview {
			params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
		}
		if msg.HTML {
			params.ParseMode = telego.ModeHTML
		}

		sent, err := c.bot.SendMessage(ctx, params)
		if err != nil && msg.HTML {
			logger.WarnCF("telegram", "HTML parse failed, falling back to plain text", map[string]interface{}{
				"chunk": i + 1,
				"error": err.Error(),
			})
			params.ParseMode = ""
			sent, err = c.bot.SendMessage(ctx, params)
		}
		if err != nil {
			return first, fmt.Errorf("telegram send: %w", err)
		}
		if i == 0 {
			first = sent.MessageID
		}
	}
	return first, nil
}

func (c *TelegramChannel) Edit(ctx context.Context, chatID int64, messageID int, text string, html bool) error {
	params := tu.EditMessageText(tu.ID(chatID), messageID, text)
	params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	if html {
		params.ParseMode = telego.ModeHTML
	}
	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("telegram edit %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *TelegramChannel) Delete(ctx context.Context, chatID int64, messageID int) error {
	err := c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("telegram delete %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

func (c *TelegramChannel) ChatAdministrators(ctx context.Context, chatID int64) ([]bus.User, error) {
	members, err := c.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{
		ChatID: tu.ID(chatID),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram admins %d: %w", chatID, err)
	}
	users := make([]bus.User, 0, len(members))
	for _, m := range members {
		u := m.MemberUser()
		users = append(users, convertUser(&u))
	}
	return users, nil
}

func (c *TelegramChannel) ChatInfo(ctx context.Context, ref bus.ChatRef) (*bus.ChatInfo, error) {
	chatID := tu.ID(ref.ID)
	if ref.Username != "" {
		chatID = tu.Username("@" + strings.TrimPrefix(ref.Username, "@"))
	}
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("telegram getChat %d%s: %w", ref.ID, ref.Username, err)
	}
	return &bus.ChatInfo{
		ID:           chat.ID,
		Kind:         bus.ChatKind(chat.Type),
		Title:        chat.Title,
		Username:     chat.Username,
		Description:  chat.Description,
		LinkedChatID: chat.LinkedChatID,
	}, nil
}

// ProfilePhoto downloads the largest size of the user's current photo.
func (c *TelegramChannel) ProfilePhoto(ctx context.Context, userID int64) ([]byte, error) {
	photos, err := c.bot.GetUserProfilePhotos(ctx, &telego.GetUserProfilePhotosParams{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram profile photos %d: %w", userID, err)
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return nil, nil
	}
	sizes := convertPhotos(photos.Photos[0])
	msg := bus.InboundMessage{Photos: sizes}
	best, _ := msg.LargestPhoto()
	return c.FileContent(ctx, best.FileID)
}

func (c *TelegramChannel) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram getFile %s: %w", fileID, err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile %s: no file path", fileID)
	}
	return utils.DownloadBytes(ctx, c.bot.FileDownloadURL(file.FilePath), utils.DownloadOptions{
		MaxBytes: c.maxFile,
	})
}

func convertUser(u *telego.User) bus.User {
	if u == nil {
		return bus.User{}
	}
	return bus.User{
		ID:        u.ID,
		IsBot:     u.IsBot,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	}
}

func convertChat(ch telego.Chat) bus.Chat {
	title := ch.Title
	if title == "" && ch.Type == telego.ChatTypePrivate {
		title = strings.TrimSpace(ch.FirstName + " " + ch.LastName)
	}
	return bus.Chat{
		ID:       ch.ID,
		Kind:     bus.ChatKind(ch.Type),
		Title:    title,
		Username: ch.Username,
	}
}

func convertPhotos(sizes []telego.PhotoSize) []bus.PhotoRef {
	if len(sizes) == 0 {
		return nil
	}
	out := make([]bus.PhotoRef, 0, len(sizes))
	for _, p := range sizes {
		out = append(out, bus.PhotoRef{
			FileID:   p.FileID,
			Width:    p.Width,
			Height:   p.Height,
			FileSize: int64(p.FileSize),
		})
	}
	return out
}

// convertMessage maps a Bot API message onto the platform-neutral shape.
// Captions are folded into Text.
func convertMessage(m *telego.Message) *bus.InboundMessage {
	if m == nil {
		return nil
	}
	text, entities := m.Text, m.Entities
	if text == "" {
		text, entities = m.Caption, m.CaptionEntities
	}

	msg := &bus.InboundMessage{
		ID:                 m.MessageID,
		ThreadID:           m.MessageThreadID,
		IsTopicMessage:     m.IsTopicMessage,
		IsAutomaticForward: m.IsAutomaticForward,
		Chat:               convertChat(m.Chat),
		Date:               int64(m.Date),
		Text:               text,
		Entities:           convertEntities(text, entities),
		AuthorSignature:    m.AuthorSignature,
		ForwardOrigin:      convertOrigin(m.ForwardOrigin),
		Photos:             convertPhotos(m.Photo),
	}
	if m.From != nil {
		u := convertUser(m.From)
		msg.From = &u
	}
	if m.SenderChat != nil {
		ch := convertChat(*m.SenderChat)
		msg.SenderChat = &ch
	}
	if m.ForumTopicCreated != nil {
		msg.TopicName = m.ForumTopicCreated.Name
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = convertMessage(m.ReplyToMessage)
	}
	return msg
}

func convertOrigin(o telego.MessageOrigin) *bus.ForwardOrigin {
	switch v := o.(type) {
	case *telego.MessageOriginUser:
		u := convertUser(&v.SenderUser)
		return &bus.ForwardOrigin{Kind: bus.OriginUser, Date: int64(v.Date), User: &u}
	case *telego.MessageOriginHiddenUser:
		return &bus.ForwardOrigin{Kind: bus.OriginHiddenUser, Date: int64(v.Date), HiddenName: v.SenderUserName}
	case *telego.MessageOriginChat:
		ch := convertChat(v.SenderChat)
		return &bus.ForwardOrigin{Kind: bus.OriginChat, Date: int64(v.Date), Chat: &ch, Signature: v.AuthorSignature}
	case *telego.MessageOriginChannel:
		ch := convertChat(v.Chat)
		return &bus.ForwardOrigin{
			Kind:      bus.OriginChannel,
			Date:      int64(v.Date),
			Chat:      &ch,
			MessageID: v.MessageID,
			Signature: v.AuthorSignature,
		}
	default:
		return nil
	}
}

// convertEntities resolves each entity's covered text. Offsets and lengths
// count UTF-16 code units.
func convertEntities(text string, entities []telego.MessageEntity) []bus.Entity {
	if len(entities) == 0 {
		return nil
	}
	units := utf16.Encode([]rune(text))
	out := make([]bus.Entity, 0, len(entities))
	for _, e := range entities {
		start, end := e.Offset, e.Offset+e.Length
		if start < 0 || end > len(units) || start > end {
			continue
		}
		out = append(out, bus.Entity{
			Type: e.Type,
			Text: string(utf16.Decode(units[start:end])),
			URL:  e.URL,
		})
	}
	return out
}

// splitLargeMessage splits a message into chunks if it exceeds Telegram's limit
func splitLargeMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	remaining := content

	for len(remaining) > 0 {
		chunkSize := maxLen
		if len(remaining) < chunkSize {
			chunkSize = len(remaining)
		}

		// Try to break at a newline near the limit
		if chunkSize == maxLen {
			lastNewline := strings.LastIndex(remaining[:chunkSize], "\n")
			if lastNewline > maxLen*2/3 { // Only if newline is in the last third
				chunkSize = lastNewline + 1
			}
		}

		// Never cut a UTF-8 sequence in half
		if chunkSize < len(remaining) {
			cut := chunkSize
			for cut > 0 && !utf8.RuneStart(remaining[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(remaining)
			}
			chunkSize = cut
		}

		chunks = append(chunks, remaining[:chunkSize])
		remaining = remaining[chunkSize:]
	}

	return chunks
}
