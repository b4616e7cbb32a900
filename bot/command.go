package bot

import (
	"context"
	"strings"
	"time"
)

// CommandHandler defines the interface for handling bot commands
type CommandHandler interface {
	// Handle processes a command with the given context
	Handle(ctx context.Context, cmdCtx *CommandContext) error
	// Command returns the command string this handler processes (e.g., "start", "sync")
	Command() string
}

// CommandContext provides context information for command processing
type CommandContext struct {
	// UserID is the ID of the user who sent the message
	UserID int64
	// ChatID is the ID of the chat where the message was sent
	ChatID int64
	// MessageID is the ID of the incoming message
	MessageID int
	// Username is the username of the user (may be empty)
	Username string
	// FirstName is the first name of the user
	FirstName string
	// LastName is the last name of the user (may be empty)
	LastName string
	// Command is the command string without the leading slash, empty for plain messages
	Command string
	// Args contains command arguments (text after the command)
	Args string
	// Text is the full raw message text
	Text string
	// Timestamp is when the message was received
	Timestamp time.Time
}

// ParseCommand splits a message text into command and arguments. A command
// starts with a slash; the "@botname" suffix Telegram appends in groups is
// stripped. Non-command text yields an empty command.
func ParseCommand(text string) (command, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}

	parts := strings.SplitN(text[1:], " ", 2)
	command = parts[0]
	if at := strings.IndexByte(command, '@'); at != -1 {
		command = command[:at]
	}
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}
