package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomland/nunti/pkg/attachments"
	"github.com/nomland/nunti/pkg/channels"
	"github.com/nomland/nunti/pkg/curation"
	"github.com/nomland/nunti/pkg/events"
	"github.com/nomland/nunti/pkg/extract"
	"github.com/nomland/nunti/pkg/gateway"
	"github.com/nomland/nunti/pkg/identity"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/prompt"
	"github.com/nomland/nunti/pkg/registry"
	"github.com/nomland/nunti/pkg/store"
	"github.com/nomland/nunti/pkg/wizard"
)

func newServeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Record into an in-memory registry instead of the remote one.")
	return cmd
}

func runServe(cmd *cobra.Command, dryRun bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	repo, err := store.Load(kv, cfg.Storage)
	if err != nil {
		return fmt.Errorf("load storage: %w", err)
	}
	stats := repo.Stats()
	logger.InfoCF("main", "Storage loaded", map[string]interface{}{
		"backend":  cfg.Storage.Backend,
		"mappings": stats.Mappings,
		"contexts": stats.Contexts,
		"watches":  stats.Watches,
	})

	atts, err := attachments.New(cfg.Attachments)
	if err != nil {
		return fmt.Errorf("attachments: %w", err)
	}

	pub, err := events.New(cfg.Events)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer pub.Close()

	var reg registry.Registry = registry.NewHTTPClient(cfg.Registry)
	if dryRun {
		logger.WarnC("main", "Dry run: records are kept in memory only")
		reg = registry.NewMemoryRegistry()
	}

	tg, err := channels.NewTelegramChannel(cfg.Telegram, cfg.Attachments.MaxBytes)
	if err != nil {
		return err
	}
	if err := tg.Connect(ctx); err != nil {
		return err
	}
	bot := tg.BotUser()

	resolver := identity.NewResolver(reg, tg, repo.Contexts, atts, cfg.Telegram.PlatformName)
	creator := registry.NewCreator(reg, pub, cfg.Curation.Parser)
	extractor := &extract.Extractor{
		Platform:          cfg.Telegram.PlatformName,
		CommunityFallback: cfg.Curation.CommunityFallback,
		DefaultTopic:      cfg.Curation.DefaultTopicName,
		BotUsername:       bot.Username,
		IgnoreDomains:     cfg.Curation.IgnoreDomains,
	}
	texts := prompt.Texts{FeedbackURLBase: cfg.Registry.FeedbackURLBase}

	adminChat := int64(cfg.Telegram.AdminChatID)
	wizards := wizard.NewEngine(wizard.Deps{
		Transport:   tg,
		Repo:        repo,
		Resolver:    resolver,
		Creator:     creator,
		Extractor:   extractor,
		Attachments: atts,
		Texts:       texts,
	}, adminChat, cfg.Telegram.ShareTopicID, cfg.Telegram.ReplyTopicID)

	router := curation.NewRouter(curation.Deps{
		Transport:   tg,
		Repo:        repo,
		Resolver:    resolver,
		Creator:     creator,
		Extractor:   extractor,
		Attachments: atts,
		Texts:       texts,
		Wizards:     wizards,
	}, curation.Options{
		AdminChatID:    adminChat,
		CommandTopicID: cfg.Telegram.CommandTopicID,
	})

	if cfg.Gateway.Enabled {
		gw := gateway.NewServer(cfg.Gateway, repo, tg.IsRunning)
		gw.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gw.Shutdown(shutdownCtx); err != nil {
				logger.WarnCF("main", "Ops server shutdown failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	if err := tg.Start(ctx, router.Handle); err != nil {
		return err
	}
	logger.InfoCF("main", "nunti is up", map[string]interface{}{
		"bot":        bot.Username,
		"admin_chat": adminChat,
		"dry_run":    dryRun,
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	return nil
}
