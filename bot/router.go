package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// URLHandler handles plain messages that carry a music link instead of a
// command. It reports whether the message was claimed.
type URLHandler interface {
	HandleURL(ctx context.Context, cmdCtx *CommandContext) (bool, error)
}

// Router dispatches incoming messages to command handlers
type Router struct {
	handlers   map[string]CommandHandler
	urlHandler URLHandler
	allowed    func(userID int64) bool
	sender     *Sender
	log        *zap.Logger
}

// NewRouter creates a new message router. The allowed func gates every
// message; a nil func admits everyone.
func NewRouter(sender *Sender, allowed func(int64) bool, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		handlers: make(map[string]CommandHandler),
		allowed:  allowed,
		sender:   sender,
		log:      log,
	}
}

// RegisterHandler registers a command handler
func (r *Router) RegisterHandler(handler CommandHandler) {
	if handler == nil {
		return
	}
	r.handlers[handler.Command()] = handler
	r.log.Debug("registered command handler", zap.String("command", handler.Command()))
}

// SetURLHandler installs the fallback handler for non-command messages.
func (r *Router) SetURLHandler(handler URLHandler) {
	r.urlHandler = handler
}

// HasHandler reports whether a handler is registered for the command.
func (r *Router) HasHandler(command string) bool {
	_, exists := r.handlers[command]
	return exists
}

// RegisteredCommands returns the registered command names.
func (r *Router) RegisteredCommands() []string {
	commands := make([]string, 0, len(r.handlers))
	for cmd := range r.handlers {
		commands = append(commands, cmd)
	}
	return commands
}

// Route dispatches a parsed message to the matching handler. Handler errors
// are reported back to the chat as a friendly message rather than returned,
// so one misbehaving command cannot take down the update loop.
func (r *Router) Route(ctx context.Context, cmdCtx *CommandContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in message handler",
				zap.String("command", cmdCtx.Command),
				zap.Int64("user_id", cmdCtx.UserID),
				zap.Any("panic", rec))
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	if r.allowed != nil && !r.allowed(cmdCtx.UserID) {
		r.log.Warn("rejected message from unauthorized user",
			zap.Int64("user_id", cmdCtx.UserID),
			zap.Int64("chat_id", cmdCtx.ChatID))
		r.reply(cmdCtx.ChatID, "🚫 You are not allowed to use this bot.")
		return nil
	}

	if cmdCtx.Command == "" {
		return r.routeURL(ctx, cmdCtx)
	}

	handler, exists := r.handlers[cmdCtx.Command]
	if !exists {
		r.log.Debug("no handler registered for command",
			zap.String("command", cmdCtx.Command))
		return nil
	}

	if err := handler.Handle(ctx, cmdCtx); err != nil {
		r.log.Warn("command handler failed",
			zap.String("command", cmdCtx.Command),
			zap.Int64("user_id", cmdCtx.UserID),
			zap.Error(err))
		r.reply(cmdCtx.ChatID, friendlyError(err))
	}
	return nil
}

func (r *Router) routeURL(ctx context.Context, cmdCtx *CommandContext) error {
	if r.urlHandler == nil {
		return nil
	}
	claimed, err := r.urlHandler.HandleURL(ctx, cmdCtx)
	if err != nil {
		r.log.Warn("url handler failed",
			zap.Int64("user_id", cmdCtx.UserID),
			zap.Error(err))
		r.reply(cmdCtx.ChatID, friendlyError(err))
		return nil
	}
	if !claimed {
		r.log.Debug("ignoring message without command or known link",
			zap.Int64("chat_id", cmdCtx.ChatID))
	}
	return nil
}

// reply sends a short response without propagating delivery errors.
func (r *Router) reply(chatID int64, text string) {
	if r.sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.sender.Send(ctx, chatID, text); err != nil {
		r.log.Warn("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
