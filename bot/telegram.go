package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"tunesync/progress"
)

// TelegramAPI defines the interface for Telegram API operations used by the bot
type TelegramAPI interface {
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesEditMessage(ctx context.Context, request *tg.MessagesEditMessageRequest) (tg.UpdatesClass, error)
}

// Sender sends and edits chat messages through the raw Telegram API.
type Sender struct {
	api TelegramAPI
	log *zap.Logger
}

// NewSender creates a Sender. The api may be nil until the client connects;
// sends before that fail with an explicit error.
func NewSender(api TelegramAPI, log *zap.Logger) *Sender {
	return &Sender{api: api, log: log}
}

// Bind attaches the live API client once the connection is up.
func (s *Sender) Bind(api TelegramAPI) {
	s.api = api
}

// Send sends a text message to the chat and returns the new message ID.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) (int, error) {
	if s.api == nil {
		return 0, fmt.Errorf("telegram API is not initialized")
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     peerFor(chatID),
		Message:  text,
		RandomID: time.Now().UnixNano(),
	}

	updates, err := s.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return extractMessageID(updates), nil
}

// Edit replaces the text of a previously sent message.
func (s *Sender) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if s.api == nil {
		return fmt.Errorf("telegram API is not initialized")
	}

	req := &tg.MessagesEditMessageRequest{
		Peer:    peerFor(chatID),
		ID:      messageID,
		Message: text,
	}

	if _, err := s.api.MessagesEditMessage(ctx, req); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// StartProgress sends the initial status message and returns an editor bound
// to it, suitable for driving a progress.Notifier.
func (s *Sender) StartProgress(ctx context.Context, chatID int64, initial string) (progress.MessageEditor, error) {
	msgID, err := s.Send(ctx, chatID, initial)
	if err != nil {
		return nil, err
	}
	if msgID == 0 {
		return nil, fmt.Errorf("could not determine message ID for progress updates")
	}
	return &messageEditor{sender: s, chatID: chatID, msgID: msgID}, nil
}

// messageEditor adapts a (chat, message) pair to progress.MessageEditor.
type messageEditor struct {
	sender *Sender
	chatID int64
	msgID  int
}

func (e *messageEditor) Edit(ctx context.Context, text string) error {
	return e.sender.Edit(ctx, e.chatID, e.msgID, text)
}

// peerFor maps a chat ID to an input peer. Positive IDs address users,
// negative IDs address basic groups.
func peerFor(chatID int64) tg.InputPeerClass {
	if chatID > 0 {
		return &tg.InputPeerUser{UserID: chatID}
	}
	return &tg.InputPeerChat{ChatID: -chatID}
}

// extractMessageID pulls the new message ID out of a send response.
func extractMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.Updates:
		for _, update := range u.Updates {
			if newMsg, ok := update.(*tg.UpdateNewMessage); ok {
				if msg, ok := newMsg.Message.(*tg.Message); ok {
					return msg.ID
				}
			}
		}
	case *tg.UpdateShortSentMessage:
		return u.ID
	}
	return 0
}
