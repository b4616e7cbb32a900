// Command tunesync runs the Telegram music archiver bot. With -sync-once it
// instead performs a single headless sweep of due subscriptions and exits,
// which is how cron or a systemd timer drives it without a bot session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tunesync/bot"
	"tunesync/config"
	"tunesync/downloader"
	"tunesync/progress"
	"tunesync/store"
	"tunesync/subscription"
	"tunesync/tags"
)

func main() {
	syncOnce := flag.Bool("sync-once", false, "sweep due subscriptions once and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Logger setup failed: %v", err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open ledger database", zap.Error(err))
	}
	defer st.Close()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	registry := downloader.NewRegistry()
	registry.Register(downloader.NewNetEase(httpClient, cfg.NeteaseCookie, logger))
	registry.Register(downloader.NewAppleMusic(httpClient, logger, cfg.AppleStorefront, cfg.AppleMediaUserToken))
	registry.Register(downloader.NewYTMusic(logger, cfg.YTMusicCookieFile))

	tagger := tags.New(httpClient, logger)

	engine := subscription.NewEngine(st, registry, tagger, subscription.Options{
		DestRoot:  cfg.DownloadDir,
		Requested: cfg.Quality,
		Pacing:    cfg.ItemPacing,
	}, logger)

	if *syncOnce {
		runHeadlessSweep(engine, st, logger)
		return
	}

	b, err := bot.NewBot(cfg, st, registry, engine, tagger, logger)
	if err != nil {
		logger.Fatal("Failed to build bot", zap.Error(err))
	}
	if err := b.Start(); err != nil {
		logger.Fatal("Failed to start bot", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := subscription.NewScheduler(engine, st, b.Reporter(), logger)
	go scheduler.Run(ctx)

	// Idle blocks on the Telegram session, so shutdown runs off a signal
	// handler rather than unwinding through main.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Shutdown signal received")
		cancel()
		b.Stop()
		_ = logger.Sync()
		_ = st.Close()
		os.Exit(0)
	}()

	if err := b.Idle(); err != nil {
		logger.Fatal("Bot session ended", zap.Error(err))
	}
}

// runHeadlessSweep syncs every due subscription with console progress bars
// instead of chat messages.
func runHeadlessSweep(engine *subscription.Engine, st *store.Store, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Interrupted, finishing current item")
		cancel()
	}()

	scheduler := subscription.NewScheduler(engine, st, &consoleReporter{}, logger)
	scheduler.Sweep(ctx)
}

// consoleReporter prints pass boundaries to stdout for headless sweeps.
type consoleReporter struct{}

func (r *consoleReporter) PassStarted(sub *store.Subscription) progress.Sink {
	fmt.Printf("Syncing %s (%s %s)\n", sub.DisplayName, sub.Platform, sub.CollectionID)
	return progress.NewConsoleSink()
}

func (r *consoleReporter) PassFinished(sub *store.Subscription, res *subscription.PassResult, err error) {
	if err != nil {
		fmt.Printf("Sync of %s failed: %v\n", sub.DisplayName, err)
		return
	}
	fmt.Printf("%s: %d tracks, %d new, %d downloaded, %d failed, %d already on disk\n",
		sub.DisplayName, res.Total, res.New, res.Succeeded, res.Failed, res.Skipped)
	for _, item := range res.FailedItems {
		fmt.Printf("  failed: %s: %s\n", item.Label, item.Reason)
	}
}

// buildLogger constructs the process logger at the configured level.
func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
