package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tunesync/downloader"
	"tunesync/store"
	"tunesync/subscription"
)

// SubscribeHandler implements CommandHandler for the /subscribe command
type SubscribeHandler struct {
	sender          *Sender
	store           *store.Store
	registry        *downloader.Registry
	engine          *subscription.Engine
	reporter        subscription.Reporter
	defaultInterval int
	log             *zap.Logger
}

// NewSubscribeHandler creates a new SubscribeHandler instance. The default
// interval (seconds) applies when the command omits one.
func NewSubscribeHandler(sender *Sender, st *store.Store, registry *downloader.Registry, engine *subscription.Engine, reporter subscription.Reporter, defaultInterval int, log *zap.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		sender:          sender,
		store:           st,
		registry:        registry,
		engine:          engine,
		reporter:        reporter,
		defaultInterval: defaultInterval,
		log:             log,
	}
}

// Command returns the command string this handler processes
func (h *SubscribeHandler) Command() string {
	return "subscribe"
}

// Handle registers a collection for scheduled sync and kicks off the first
// pass in the background.
func (h *SubscribeHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	if strings.TrimSpace(cmdCtx.Args) == "" {
		return h.reply(ctx, cmdCtx.ChatID, "Usage: /subscribe <url> [interval-seconds]\n\nExample: /subscribe https://music.163.com/playlist?id=24381616 3600")
	}

	fields := strings.Fields(cmdCtx.Args)
	rawURL := fields[0]

	interval := h.defaultInterval
	if len(fields) > 1 {
		parsed, err := strconv.Atoi(fields[1])
		if err != nil || parsed <= 0 {
			return h.reply(ctx, cmdCtx.ChatID, "The interval must be a positive number of seconds, e.g. 3600 for hourly.")
		}
		interval = parsed
	}

	platform, parsed := h.registry.Match(rawURL)
	if platform == nil {
		return downloader.New(downloader.ErrInvalidURL, "no platform recognizes this URL")
	}
	if parsed.Kind == downloader.KindSong {
		return h.reply(ctx, cmdCtx.ChatID, "That's a single song. Just send the link without a command and I'll download it.")
	}

	h.log.Info("subscribing to collection",
		zap.String("platform", platform.Name()),
		zap.String("collection_id", parsed.ID),
		zap.Int64("user_id", cmdCtx.UserID))

	coll, err := platform.Members(ctx, parsed.Kind, parsed.ID)
	if err != nil {
		return fmt.Errorf("failed to enumerate collection: %w", err)
	}
	displayName := coll.Title
	if displayName == "" {
		displayName = fmt.Sprintf("%s %s", platform.Name(), parsed.ID)
	}

	sub := &store.Subscription{
		Platform:      platform.Name(),
		CollectionID:  parsed.ID,
		Kind:          string(parsed.Kind),
		DisplayName:   displayName,
		SourceURL:     parsed.RawURL,
		ChatID:        cmdCtx.ChatID,
		AutoSync:      true,
		CheckInterval: interval,
	}
	created, err := h.store.Subscribe(sub)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	verb := "Updated"
	if created {
		verb = "Subscribed to"
	}
	text := fmt.Sprintf("✅ %s %s (%d tracks). Checking every %s.\nRunning the first sync now...",
		verb, displayName, len(coll.Items), time.Duration(interval)*time.Second)
	if err := h.reply(ctx, cmdCtx.ChatID, text); err != nil {
		return err
	}

	go runPass(h.engine, h.reporter, sub)
	return nil
}

func (h *SubscribeHandler) reply(ctx context.Context, chatID int64, text string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := h.sender.Send(timeoutCtx, chatID, text); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
