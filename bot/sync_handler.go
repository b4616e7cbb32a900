package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tunesync/store"
	"tunesync/subscription"
)

// SyncHandler implements CommandHandler for the /sync command
type SyncHandler struct {
	sender   *Sender
	store    *store.Store
	engine   *subscription.Engine
	reporter subscription.Reporter
	log      *zap.Logger
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(sender *Sender, st *store.Store, engine *subscription.Engine, reporter subscription.Reporter, log *zap.Logger) *SyncHandler {
	return &SyncHandler{
		sender:   sender,
		store:    st,
		engine:   engine,
		reporter: reporter,
		log:      log,
	}
}

// Command returns the command string this handler processes
func (h *SyncHandler) Command() string {
	return "sync"
}

// Handle triggers a sync pass for one subscription or for all of them. The
// passes run in the background; progress lands in each subscription's chat.
func (h *SyncHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	fields := strings.Fields(cmdCtx.Args)

	switch {
	case len(fields) == 1 && strings.EqualFold(fields[0], "all"):
		return h.syncAll(ctx, cmdCtx)
	case len(fields) == 2:
		return h.syncOne(ctx, cmdCtx, fields[0], fields[1])
	default:
		return h.reply(ctx, cmdCtx.ChatID, "Usage: /sync <platform> <collection_id> or /sync all\n\nUse /status to see the platform and ID of each subscription.")
	}
}

func (h *SyncHandler) syncOne(ctx context.Context, cmdCtx *CommandContext, platform, collectionID string) error {
	sub, err := h.store.GetSubscription(platform, collectionID)
	if err != nil {
		return err
	}

	h.log.Info("manual sync requested",
		zap.String("platform", platform),
		zap.String("collection_id", collectionID),
		zap.Int64("user_id", cmdCtx.UserID))

	go runPass(h.engine, h.reporter, sub)
	return nil
}

func (h *SyncHandler) syncAll(ctx context.Context, cmdCtx *CommandContext) error {
	subs, err := h.store.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return h.reply(ctx, cmdCtx.ChatID, "Nothing to sync. Use /subscribe <url> first.")
	}

	h.log.Info("manual sync of all subscriptions requested",
		zap.Int("count", len(subs)),
		zap.Int64("user_id", cmdCtx.UserID))

	if err := h.reply(ctx, cmdCtx.ChatID, fmt.Sprintf("🔄 Syncing %d subscriptions...", len(subs))); err != nil {
		return err
	}
	for i := range subs {
		sub := subs[i]
		go runPass(h.engine, h.reporter, &sub)
	}
	return nil
}

func (h *SyncHandler) reply(ctx context.Context, chatID int64, text string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := h.sender.Send(timeoutCtx, chatID, text); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
