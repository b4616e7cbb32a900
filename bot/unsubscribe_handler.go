package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tunesync/store"
)

// UnsubscribeHandler implements CommandHandler for the /unsubscribe command
type UnsubscribeHandler struct {
	sender *Sender
	store  *store.Store
	log    *zap.Logger
}

// NewUnsubscribeHandler creates a new UnsubscribeHandler instance
func NewUnsubscribeHandler(sender *Sender, st *store.Store, log *zap.Logger) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		sender: sender,
		store:  st,
		log:    log,
	}
}

// Command returns the command string this handler processes
func (h *UnsubscribeHandler) Command() string {
	return "unsubscribe"
}

// Handle removes a subscription together with its track ledger. Files on
// disk are left alone.
func (h *UnsubscribeHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	fields := strings.Fields(cmdCtx.Args)
	if len(fields) != 2 {
		return h.reply(ctx, cmdCtx.ChatID, "Usage: /unsubscribe <platform> <collection_id>\n\nUse /status to see the platform and ID of each subscription.")
	}
	platform, collectionID := fields[0], fields[1]

	sub, err := h.store.GetSubscription(platform, collectionID)
	if err != nil {
		return err
	}
	if err := h.store.Unsubscribe(platform, collectionID); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}

	h.log.Info("unsubscribed from collection",
		zap.String("platform", platform),
		zap.String("collection_id", collectionID),
		zap.Int64("user_id", cmdCtx.UserID))

	return h.reply(ctx, cmdCtx.ChatID,
		fmt.Sprintf("🗑 Unsubscribed from %s. Downloaded files stay on disk.", sub.DisplayName))
}

func (h *UnsubscribeHandler) reply(ctx context.Context, chatID int64, text string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := h.sender.Send(timeoutCtx, chatID, text); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
