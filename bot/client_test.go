package bot

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"tunesync/config"
	"tunesync/downloader"
	"tunesync/quality"
	"tunesync/subscription"
)

func testBotConfig() *config.Config {
	return &config.Config{
		Token:             "123456:test_token",
		APIID:             12345,
		APIHash:           "test_hash",
		LogLevel:          "info",
		DownloadDir:       "./downloads",
		DBPath:            "./tunesync.db",
		SessionDBPath:     "./session.db",
		Quality:           quality.TierLossless,
		ProgressInterval:  2 * time.Second,
		SyncCheckInterval: 3600,
		HTTPTimeout:       30 * time.Second,
	}
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()

	st := newBotTestStore(t)
	registry := downloader.NewRegistry()
	engine := subscription.NewEngine(st, registry, nil, subscription.Options{
		DestRoot:  t.TempDir(),
		Requested: quality.TierLossless,
	}, zap.NewNop())

	b, err := NewBot(testBotConfig(), st, registry, engine, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBot failed: %v", err)
	}
	return b
}

func TestNewBot(t *testing.T) {
	b := newTestBot(t)

	if b.router == nil {
		t.Fatal("Expected router to be initialized")
	}
	for _, cmd := range []string{"start", "help", "ping", "id", "status", "subscribe", "unsubscribe", "sync", "retry"} {
		if !b.router.HasHandler(cmd) {
			t.Errorf("Expected handler registered for /%s", cmd)
		}
	}
	if b.router.urlHandler == nil {
		t.Error("Expected URL handler to be installed")
	}
	if b.Reporter() == nil {
		t.Error("Expected a pass reporter")
	}
}

func TestNewBotNilConfig(t *testing.T) {
	_, err := NewBot(nil, nil, nil, nil, nil, zap.NewNop())
	if err == nil {
		t.Fatal("Expected error for nil config, got nil")
	}
	if err.Error() != "config cannot be nil" {
		t.Errorf("Expected 'config cannot be nil', got %q", err.Error())
	}
}

func TestNewBotNilLogger(t *testing.T) {
	_, err := NewBot(testBotConfig(), nil, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("Expected error for nil logger, got nil")
	}
	if err.Error() != "logger cannot be nil" {
		t.Errorf("Expected 'logger cannot be nil', got %q", err.Error())
	}
}

func TestBotIdleBeforeStart(t *testing.T) {
	b := newTestBot(t)

	err := b.Idle()
	if err == nil {
		t.Fatal("Expected error when idling before Start, got nil")
	}
	if !strings.Contains(err.Error(), "not started") {
		t.Errorf("Expected not-started error, got: %v", err)
	}
}

func TestBotAllowlistGate(t *testing.T) {
	cfg := testBotConfig()
	cfg.AllowedUsers = []int64{100}

	st := newBotTestStore(t)
	registry := downloader.NewRegistry()
	engine := subscription.NewEngine(st, registry, nil, subscription.Options{DestRoot: t.TempDir()}, zap.NewNop())

	b, err := NewBot(cfg, st, registry, engine, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBot failed: %v", err)
	}
	if b.router.allowed == nil {
		t.Fatal("Expected allowlist gate to be installed")
	}
	if !b.router.allowed(100) {
		t.Error("Expected user 100 to be allowed")
	}
	if b.router.allowed(999) {
		t.Error("Expected user 999 to be rejected")
	}
}
