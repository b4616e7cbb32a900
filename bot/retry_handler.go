package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tunesync/store"
	"tunesync/subscription"
)

// RetryHandler implements CommandHandler for the /retry command
type RetryHandler struct {
	sender   *Sender
	store    *store.Store
	engine   *subscription.Engine
	reporter subscription.Reporter
	log      *zap.Logger
}

// NewRetryHandler creates a new RetryHandler instance
func NewRetryHandler(sender *Sender, st *store.Store, engine *subscription.Engine, reporter subscription.Reporter, log *zap.Logger) *RetryHandler {
	return &RetryHandler{
		sender:   sender,
		store:    st,
		engine:   engine,
		reporter: reporter,
		log:      log,
	}
}

// Command returns the command string this handler processes
func (h *RetryHandler) Command() string {
	return "retry"
}

// Handle moves a subscription's failed tracks back to pending and reruns the
// sync pass so they get another attempt.
func (h *RetryHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	fields := strings.Fields(cmdCtx.Args)
	if len(fields) != 2 {
		return h.reply(ctx, cmdCtx.ChatID, "Usage: /retry <platform> <collection_id>\n\nUse /status to see the platform and ID of each subscription.")
	}
	platform, collectionID := fields[0], fields[1]

	sub, err := h.store.GetSubscription(platform, collectionID)
	if err != nil {
		return err
	}

	reset, err := h.store.ResetFailed(sub.ID)
	if err != nil {
		return fmt.Errorf("failed to reset failed tracks: %w", err)
	}
	if reset == 0 {
		return h.reply(ctx, cmdCtx.ChatID, fmt.Sprintf("No failed tracks in %s. Nothing to retry.", sub.DisplayName))
	}

	h.log.Info("retrying failed tracks",
		zap.String("platform", platform),
		zap.String("collection_id", collectionID),
		zap.Int64("reset", reset),
		zap.Int64("user_id", cmdCtx.UserID))

	if err := h.reply(ctx, cmdCtx.ChatID, fmt.Sprintf("♻️ Re-queued %d failed tracks in %s. Syncing...", reset, sub.DisplayName)); err != nil {
		return err
	}

	go runPass(h.engine, h.reporter, sub)
	return nil
}

func (h *RetryHandler) reply(ctx context.Context, chatID int64, text string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := h.sender.Send(timeoutCtx, chatID, text); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
