package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PingHandler implements CommandHandler for the /ping command
type PingHandler struct {
	sender *Sender
	log    *zap.Logger
}

// NewPingHandler creates a new PingHandler instance
func NewPingHandler(sender *Sender, log *zap.Logger) *PingHandler {
	return &PingHandler{
		sender: sender,
		log:    log,
	}
}

// Command returns the command string this handler processes
func (h *PingHandler) Command() string {
	return "ping"
}

// Handle processes the /ping command and sends a pong response with timestamp and latency
func (h *PingHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.log.Info("processing /ping command",
		zap.Int64("user_id", cmdCtx.UserID),
		zap.Int64("chat_id", cmdCtx.ChatID))

	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	commandLatency := startTime.Sub(cmdCtx.Timestamp)
	if _, err := h.sender.Send(timeoutCtx, cmdCtx.ChatID, createPongMessage(startTime, commandLatency)); err != nil {
		return fmt.Errorf("failed to send pong message: %w", err)
	}
	return nil
}

// createPongMessage creates a pong response with timestamp and latency information
func createPongMessage(responseTime time.Time, commandLatency time.Duration) string {
	return fmt.Sprintf("🏓 Pong!\n\n"+
		"📅 Timestamp: %s\n"+
		"⚡ Command latency: %v\n"+
		"✅ Status: bot is responsive and operational",
		responseTime.Format("2006-01-02 15:04:05 MST"),
		commandLatency.Round(time.Millisecond))
}
