package bot

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tunesync/downloader"
)

// StartHandler implements CommandHandler for the /start command
type StartHandler struct {
	sender   *Sender
	registry *downloader.Registry
	log      *zap.Logger
}

// NewStartHandler creates a new StartHandler instance
func NewStartHandler(sender *Sender, registry *downloader.Registry, log *zap.Logger) *StartHandler {
	return &StartHandler{
		sender:   sender,
		registry: registry,
		log:      log,
	}
}

// Command returns the command string this handler processes
func (h *StartHandler) Command() string {
	return "start"
}

// Handle processes the /start command and sends a welcome message
func (h *StartHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	h.log.Info("processing /start command",
		zap.Int64("user_id", cmdCtx.UserID),
		zap.Int64("chat_id", cmdCtx.ChatID))

	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	userName := extractUserName(cmdCtx)
	if _, err := h.sender.Send(timeoutCtx, cmdCtx.ChatID, h.createWelcomeMessage(userName)); err != nil {
		return fmt.Errorf("failed to send welcome message: %w", err)
	}
	return nil
}

// extractUserName extracts the best available name for the user
func extractUserName(cmdCtx *CommandContext) string {
	// Priority: FirstName > Username > "there" (fallback)
	if cmdCtx.FirstName != "" {
		if cmdCtx.LastName != "" {
			return cmdCtx.FirstName + " " + cmdCtx.LastName
		}
		return cmdCtx.FirstName
	}

	if cmdCtx.Username != "" {
		return "@" + cmdCtx.Username
	}

	return "there"
}

// createWelcomeMessage creates a personalized welcome message
func (h *StartHandler) createWelcomeMessage(userName string) string {
	platforms := "none configured"
	if h.registry != nil {
		names := make([]string, 0, len(h.registry.Platforms()))
		for _, p := range h.registry.Platforms() {
			names = append(names, p.Name())
		}
		if len(names) > 0 {
			platforms = strings.Join(names, ", ")
		}
	}

	return fmt.Sprintf("👋 Hello %s!\n\n"+
		"I download music and keep your playlists in sync.\n\n"+
		"Send me a song, album or playlist link to download it, or use:\n"+
		"• /subscribe <url> - keep a playlist or album synced\n"+
		"• /sync - run a sync pass now\n"+
		"• /status - show tracked collections\n"+
		"• /help - full command reference\n\n"+
		"Supported platforms: %s", userName, platforms)
}
