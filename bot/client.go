// Package bot wires the Telegram front end: a gotgproto client, a command
// router and the handlers that drive downloads and subscription syncs.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"

	"tunesync/config"
	"tunesync/downloader"
	"tunesync/store"
	"tunesync/subscription"
	"tunesync/tags"
)

// Bot wraps the gotgproto client and provides bot lifecycle management
type Bot struct {
	cfg    *config.Config
	log    *zap.Logger
	client *gotgproto.Client

	sender       *Sender
	router       *Router
	autoReporter *chatReporter

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot builds the bot and its handler set. The Telegram connection is not
// opened until Start.
func NewBot(cfg *config.Config, st *store.Store, registry *downloader.Registry, engine *subscription.Engine, tagger *tags.Tagger, log *zap.Logger) (*Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	sender := NewSender(nil, log)

	var allowed func(int64) bool
	if len(cfg.AllowedUsers) > 0 {
		allowed = cfg.UserAllowed
	}
	router := NewRouter(sender, allowed, log)

	manualReporter := newChatReporter(sender, cfg.ProgressInterval, false, log)
	autoReporter := newChatReporter(sender, cfg.ProgressInterval, true, log)

	router.RegisterHandler(NewStartHandler(sender, registry, log))
	router.RegisterHandler(NewHelpHandler(sender, log))
	router.RegisterHandler(NewPingHandler(sender, log))
	router.RegisterHandler(NewIDHandler(sender, log))
	router.RegisterHandler(NewStatusHandler(sender, st, log))
	router.RegisterHandler(NewSubscribeHandler(sender, st, registry, engine, manualReporter, cfg.SyncCheckInterval, log))
	router.RegisterHandler(NewUnsubscribeHandler(sender, st, log))
	router.RegisterHandler(NewSyncHandler(sender, st, engine, manualReporter, log))
	router.RegisterHandler(NewRetryHandler(sender, st, engine, manualReporter, log))
	router.SetURLHandler(NewDownloadHandler(sender, st, registry, tagger, cfg.DownloadDir, cfg.Quality, cfg.ItemPacing, cfg.ProgressInterval, log))

	return &Bot{
		cfg:          cfg,
		log:          log,
		sender:       sender,
		router:       router,
		autoReporter: autoReporter,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start authorizes with Telegram and registers the update handler. It
// returns once the client is connected.
func (b *Bot) Start() error {
	b.log.Info("starting Telegram bot")

	clientOpts := &gotgproto.ClientOpts{
		Session: sessionMaker.SqlSession(sqlite.Open(b.cfg.SessionDBPath)),
		Logger:  b.log.Named("mtproto"),
	}

	client, err := gotgproto.NewClient(b.cfg.APIID, b.cfg.APIHash, gotgproto.ClientTypeBot(b.cfg.Token), clientOpts)
	if err != nil {
		return fmt.Errorf("failed to create gotgproto client: %w", err)
	}

	b.client = client
	b.sender.Bind(client.API())
	client.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.All, b.onMessage))

	username := ""
	if client.Self != nil {
		username = client.Self.Username
	}
	b.log.Info("Telegram bot authorized",
		zap.String("username", username),
		zap.Strings("commands", b.router.RegisteredCommands()))
	return nil
}

// Idle blocks until the client disconnects.
func (b *Bot) Idle() error {
	if b.client == nil {
		return fmt.Errorf("bot is not started")
	}
	return b.client.Idle()
}

// Stop cancels the bot's background work.
func (b *Bot) Stop() {
	b.log.Info("stopping Telegram bot")
	if b.cancel != nil {
		b.cancel()
	}
}

// Reporter returns the pass reporter used for scheduled syncs. Manual
// commands carry their own reporter with manual-sync wording.
func (b *Bot) Reporter() subscription.Reporter {
	return b.autoReporter
}

// onMessage is the single dispatcher entry point. Everything the bot reacts
// to, commands and plain links alike, funnels through the router.
func (b *Bot) onMessage(ctx *ext.Context, update *ext.Update) error {
	msg := update.EffectiveMessage
	if msg == nil || msg.Out {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	cmdCtx := &CommandContext{
		ChatID:    update.EffectiveChat().GetID(),
		MessageID: msg.ID,
		Text:      text,
		Timestamp: time.Now(),
	}
	if user := update.EffectiveUser(); user != nil {
		cmdCtx.UserID = user.ID
		cmdCtx.Username = user.Username
		cmdCtx.FirstName = user.FirstName
		cmdCtx.LastName = user.LastName
	}
	cmdCtx.Command, cmdCtx.Args = ParseCommand(text)

	return b.router.Route(ctx, cmdCtx)
}
