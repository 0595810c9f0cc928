package curation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
	"github.com/nomland/nunti/pkg/store"
)

type adminCommand func(r *Router, ctx context.Context, args []string) string

var adminCommands = map[string]adminCommand{
	"ls":           (*Router).cmdList,
	"setcontext":   (*Router).cmdSetContext,
	"remove":       (*Router).cmdRemove,
	"setname":      (*Router).cmdSetName,
	"getname":      (*Router).cmdGetName,
	"deleteshare":  (*Router).cmdDeleteShare,
	"deletebotmsg": (*Router).cmdDeleteBotMsg,
	"watch":        (*Router).cmdWatch,
	"unwatch":      (*Router).cmdUnwatch,
	"help":         (*Router).cmdHelp,
}

func (r *Router) handleAdmin(ctx context.Context, msg *bus.InboundMessage) {
	fields := strings.Fields(msg.Text)
	name := strings.ToLower(commandName(msg.Text, r.bot.Username))
	cmd, ok := adminCommands[name]
	if !ok {
		r.answer(ctx, msg, fmt.Sprintf("Unknown command %q. Send /help for the list.", fields[0]))
		return
	}
	reply := cmd(r, ctx, fields[1:])
	logger.InfoCF("admin", "Admin command", map[string]interface{}{
		"command": name,
		"args":    len(fields) - 1,
	})
	r.answer(ctx, msg, reply)
}

// normalizeChat accepts a short id, a full -100 id or a message link and
// returns the short chat id.
func (r *Router) normalizeChat(ctx context.Context, arg string) (string, error) {
	if strings.Contains(arg, "t.me/") {
		t, err := r.deps.Resolver.ResolveLink(ctx, arg)
		if err != nil {
			return "", err
		}
		return t.Short, nil
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat id %q", arg)
	}
	if id < 0 {
		return extract.ShortChatID(id), nil
	}
	return arg, nil
}

func (r *Router) cmdList(_ context.Context, _ []string) string {
	var b strings.Builder
	contexts := r.deps.Repo.Contexts.Entries()
	b.WriteString(fmt.Sprintf("Contexts (%d):", len(contexts)))
	for _, e := range contexts {
		label, _ := r.deps.Repo.Names.Get(e.Key)
		b.WriteString(fmt.Sprintf("\n  %s → %s", e.Key, e.Value))
		if label != "" {
			b.WriteString(" (" + label + ")")
		}
	}
	watches := r.deps.Repo.Watches.Entries()
	b.WriteString(fmt.Sprintf("\nWatched topics (%d):", len(watches)))
	for _, e := range watches {
		b.WriteString(fmt.Sprintf("\n  %s %s", e.Key, e.Value))
	}
	b.WriteString(fmt.Sprintf("\nMapped messages: %d", r.deps.Repo.Mappings.Len()))
	return b.String()
}

func (r *Router) cmdSetContext(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /setcontext <chat> <contextId> <label>"
	}
	chat, err := r.normalizeChat(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	if err := r.deps.Repo.Contexts.Set(chat, args[1]); err != nil {
		return "Failed: " + err.Error()
	}
	if label := strings.Join(args[2:], " "); label != "" {
		if err := r.deps.Repo.Names.Set(chat, label); err != nil {
			return "Context bound but saving the label failed: " + err.Error()
		}
	}
	return fmt.Sprintf("✅ Chat %s now uses context %s.", chat, args[1])
}

func (r *Router) cmdRemove(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /remove <chat>"
	}
	chat, err := r.normalizeChat(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	if err := r.deps.Repo.Contexts.Remove(chat); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("Chat %s has no bound context.", chat)
		}
		return "Failed: " + err.Error()
	}
	if err := r.deps.Repo.Names.Remove(chat); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.WarnCF("admin", "Failed to drop chat label", map[string]interface{}{
			"chat":  chat,
			"error": err.Error(),
		})
	}
	return fmt.Sprintf("✅ Context of chat %s removed.", chat)
}

func (r *Router) cmdSetName(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /setName <chat> <label>"
	}
	chat, err := r.normalizeChat(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	label := strings.Join(args[1:], " ")
	if err := r.deps.Repo.Names.Set(chat, label); err != nil {
		return "Failed: " + err.Error()
	}
	return fmt.Sprintf("✅ Chat %s is labelled %q.", chat, label)
}

func (r *Router) cmdGetName(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /getName <chat>"
	}
	chat, err := r.normalizeChat(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	label, ok := r.deps.Repo.Names.Get(chat)
	if !ok {
		return fmt.Sprintf("Chat %s has no label.", chat)
	}
	return fmt.Sprintf("Chat %s: %s", chat, label)
}

// cmdDeleteShare deletes a record and every message mapped to it. Mappings
// of a record the registry no longer knows are dropped as well.
func (r *Router) cmdDeleteShare(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /deleteShare <recordKey>"
	}
	key, err := registry.ParseRecordKey(args[0])
	if err != nil {
		return err.Error()
	}
	if err := r.deps.Creator.Delete(ctx, key); err != nil && !errors.Is(err, registry.ErrNotFound) {
		return fmt.Sprintf("😢 Failed to delete %s: %v", key, err)
	}
	removed, err := r.deps.Repo.Mappings.RemoveByValue(key.String())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Sprintf("Record %s deleted but dropping its mappings failed: %v", key, err)
	}
	return fmt.Sprintf("✅ Record %s deleted, %d message mapping(s) removed.", key, len(removed))
}

func (r *Router) cmdDeleteBotMsg(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /deleteBotMsg <link>"
	}
	t, err := r.deps.Resolver.ResolveLink(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	if err := r.deps.Transport.Delete(ctx, t.ChatID, t.Message); err != nil {
		return fmt.Sprintf("😢 Failed to delete message: %v", err)
	}
	return "✅ Message deleted."
}

func (r *Router) cmdWatch(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /watch <link>"
	}
	t, err := r.deps.Resolver.ResolveLink(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	if !t.IsGroup() {
		return prompt.NotGroupChat
	}
	if err := r.deps.Repo.Watches.Add(t.Short, t.Thread(), args[0]); err != nil {
		return "Failed: " + err.Error()
	}
	return fmt.Sprintf("✅ Watching topic %d of chat %s.", t.Thread(), t.Short)
}

func (r *Router) cmdUnwatch(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /unwatch <link>"
	}
	t, err := r.deps.Resolver.ResolveLink(ctx, args[0])
	if err != nil {
		return err.Error()
	}
	if err := r.deps.Repo.Watches.Remove(t.Short, t.Thread()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "That topic is not watched."
		}
		return "Failed: " + err.Error()
	}
	return fmt.Sprintf("✅ Stopped watching topic %d of chat %s.", t.Thread(), t.Short)
}

func (r *Router) cmdHelp(_ context.Context, _ []string) string {
	return prompt.Help(r.bot.Username, prompt.HelpAdmin)
}
