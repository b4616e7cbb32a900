package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"tunesync/store"
)

func TestUnsubscribeHandlerCommand(t *testing.T) {
	handler := NewUnsubscribeHandler(NewSender(&MockTelegramAPI{}, zap.NewNop()), nil, zap.NewNop())
	if got := handler.Command(); got != "unsubscribe" {
		t.Errorf("Expected command 'unsubscribe', got %q", got)
	}
}

func TestUnsubscribeHandlerRemovesSubscription(t *testing.T) {
	st := newBotTestStore(t)
	sub := &store.Subscription{
		Platform: "netease", CollectionID: "24381616", Kind: "playlist",
		DisplayName: "Daily Mix", ChatID: 42,
	}
	if _, err := st.Subscribe(sub); err != nil {
		t.Fatal(err)
	}

	mock := &MockTelegramAPI{}
	handler := NewUnsubscribeHandler(NewSender(mock, zap.NewNop()), st, zap.NewNop())

	cmdCtx := &CommandContext{UserID: 1, ChatID: 42, Command: "unsubscribe", Args: "netease 24381616"}
	if err := handler.Handle(context.Background(), cmdCtx); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !strings.Contains(mock.sentText(0), "Unsubscribed from Daily Mix") {
		t.Errorf("Expected confirmation, got: %q", mock.sentText(0))
	}
	if _, err := st.GetSubscription("netease", "24381616"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected subscription to be gone, got: %v", err)
	}
}

func TestUnsubscribeHandlerUnknownSubscription(t *testing.T) {
	st := newBotTestStore(t)
	handler := NewUnsubscribeHandler(NewSender(&MockTelegramAPI{}, zap.NewNop()), st, zap.NewNop())

	cmdCtx := &CommandContext{UserID: 1, ChatID: 42, Command: "unsubscribe", Args: "netease nope"}
	err := handler.Handle(context.Background(), cmdCtx)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestUnsubscribeHandlerUsage(t *testing.T) {
	mock := &MockTelegramAPI{}
	handler := NewUnsubscribeHandler(NewSender(mock, zap.NewNop()), nil, zap.NewNop())

	cmdCtx := &CommandContext{UserID: 1, ChatID: 42, Command: "unsubscribe", Args: "netease"}
	if err := handler.Handle(context.Background(), cmdCtx); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(mock.sentText(0), "Usage: /unsubscribe") {
		t.Errorf("Expected usage text, got: %q", mock.sentText(0))
	}
}
