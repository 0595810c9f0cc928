// Package prompt holds the user-facing texts the bot sends.
package prompt

import (
	"fmt"
	"strings"
)

type HelpMode string

const (
	HelpDM    HelpMode = "dm"
	HelpGroup HelpMode = "group"
	HelpAdmin HelpMode = "admin"
)

const (
	Loading       = "⛏️ Processing..."
	Fail          = "😢 Share is not successfully processed."
	ReplyFail     = "😢 Reply is not successfully processed."
	NotGroupChat  = "It's not a group chat message. Please input the correct chat message link."
	InternalError = "internal error, try again"
	Welcome       = "Welcome! Up and running."
	NeedAdmin     = "But first of all I need to be promoted as an admin so that I can start to work!"
)

// Texts renders prompts that embed record links.
type Texts struct {
	FeedbackURLBase string
}

// FeedbackURL links to a record on the curation site.
func (t Texts) FeedbackURL(recordKey string) string {
	return strings.TrimRight(t.FeedbackURLBase, "/") + "/" + recordKey
}

func (t Texts) Succeed(recordKey string) string {
	return fmt.Sprintf("🎉 Share is successfully processed. See: %s\n✉️ Attention: all replies to this share will be recorded on chain", t.FeedbackURL(recordKey))
}

func (t Texts) ReplySucceed(recordKey string) string {
	return fmt.Sprintf("🎉 Reply is successfully recorded. See: %s", t.FeedbackURL(recordKey))
}

func (t Texts) AlreadyProcessed(recordKey string) string {
	return fmt.Sprintf("This message has already been processed, see: %s", t.FeedbackURL(recordKey))
}

const adminCommands = `
  /ls: list bound contexts, labels and watched topics
  /setcontext <chat> <contextId> <label>: bind a chat to a context
  /remove <chat>: unbind a chat
  /setName <chat> <label>: label a chat
  /getName <chat>: show a chat label
  /deleteShare <recordKey>: delete a record and its message mappings
  /deleteBotMsg <link>: delete a message sent by the bot
  /watch <link>: treat every message in the link's topic as a share
  /unwatch <link>: stop watching the link's topic
  /help: show this message`

// Help returns the help text for a DM, a group member or a group admin.
func Help(botUsername string, mode HelpMode) string {
	usage := fmt.Sprintf(`If you want to share something, just in the group paste the URL then @ me. e.g.

  This book is amazing!!! https://example.com/u/xyz @%[1]s #Romantic #AmazingBook

You can also reply to a message containing URL to make a curation. e.g.

  Message A: This book is amazing!!! https://example.com/u/xyz
  Message B(replying to A): @%[1]s #Romantic #AmazingBook

Replying to any existing curation message will also be recorded with the curation together. (Welcome! Discussion is encouraged!)`, botUsername)

	switch mode {
	case HelpDM:
		return "Hi! I'm nunti. I have to be used in a group. If you are admin of a group, you can add me to the group and give me the admin permission. I can help your community have better sharing experience and help your community easily build your brand.\n\n" + usage
	case HelpAdmin:
		return "Hi! I'm nunti.\n\n" + usage + "\n\nAdmin commands (admin command topic only):" + adminCommands
	default:
		return "Hi! I'm nunti.\n\n" + usage
	}
}
