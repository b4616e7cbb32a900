package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// HelpHandler implements CommandHandler for the /help command
type HelpHandler struct {
	sender *Sender
	log    *zap.Logger
}

// NewHelpHandler creates a new HelpHandler instance
func NewHelpHandler(sender *Sender, log *zap.Logger) *HelpHandler {
	return &HelpHandler{
		sender: sender,
		log:    log,
	}
}

// Command returns the command string this handler processes
func (h *HelpHandler) Command() string {
	return "help"
}

// Handle processes the /help command and sends the command reference
func (h *HelpHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	h.log.Info("processing /help command",
		zap.Int64("user_id", cmdCtx.UserID),
		zap.Int64("chat_id", cmdCtx.ChatID))

	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := h.sender.Send(timeoutCtx, cmdCtx.ChatID, h.createHelpMessage()); err != nil {
		return fmt.Errorf("failed to send help message: %w", err)
	}
	return nil
}

// createHelpMessage creates the command reference message
func (h *HelpHandler) createHelpMessage() string {
	return `🎵 Commands

/start - Welcome message
/help - Show this help message
/ping - Check if the bot is responsive
/id - Show chat and user IDs
/status - List subscriptions and recent downloads
/subscribe <url> [interval-seconds] - Track a playlist or album and sync it on a schedule
/unsubscribe <platform> <collection_id> - Stop tracking a collection
/sync <platform> <collection_id> - Sync one collection now
/sync all - Sync every subscription now
/retry <platform> <collection_id> - Re-queue failed tracks and sync again

Downloading

Just send a link, no command needed:

https://music.163.com/song?id=1234567
https://music.apple.com/us/album/some-album/1559523357
https://music.youtube.com/playlist?list=PLxyz

Songs download right away. Album and playlist links download every track. Use /subscribe instead if you want the collection kept up to date automatically.`
}
