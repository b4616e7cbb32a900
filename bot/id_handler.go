package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// IDHandler implements CommandHandler for the /id command. It echoes the
// numeric IDs needed to fill ALLOWED_USERS and to address subscriptions.
type IDHandler struct {
	sender *Sender
	log    *zap.Logger
}

// NewIDHandler creates a new IDHandler instance
func NewIDHandler(sender *Sender, log *zap.Logger) *IDHandler {
	return &IDHandler{
		sender: sender,
		log:    log,
	}
}

// Command returns the command string this handler processes
func (h *IDHandler) Command() string {
	return "id"
}

// Handle processes the /id command and returns chat and user IDs
func (h *IDHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	h.log.Info("processing /id command",
		zap.Int64("user_id", cmdCtx.UserID),
		zap.Int64("chat_id", cmdCtx.ChatID))

	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := h.sender.Send(timeoutCtx, cmdCtx.ChatID, createIDMessage(cmdCtx)); err != nil {
		return fmt.Errorf("failed to send ID message: %w", err)
	}
	return nil
}

// createIDMessage creates a message showing the chat and user IDs
func createIDMessage(cmdCtx *CommandContext) string {
	return fmt.Sprintf("Chat id: %d\nUser id: %d\n\nPut the user id in ALLOWED_USERS to restrict access.", cmdCtx.ChatID, cmdCtx.UserID)
}
