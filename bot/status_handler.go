package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/store"
)

const recentHistoryLimit = 5

// StatusHandler implements CommandHandler for the /status command
type StatusHandler struct {
	sender *Sender
	store  *store.Store
	log    *zap.Logger
}

// NewStatusHandler creates a new StatusHandler instance
func NewStatusHandler(sender *Sender, st *store.Store, log *zap.Logger) *StatusHandler {
	return &StatusHandler{
		sender: sender,
		store:  st,
		log:    log,
	}
}

// Command returns the command string this handler processes
func (h *StatusHandler) Command() string {
	return "status"
}

// Handle processes the /status command and reports subscriptions and recent
// download history.
func (h *StatusHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	h.log.Info("processing /status command",
		zap.Int64("user_id", cmdCtx.UserID),
		zap.Int64("chat_id", cmdCtx.ChatID))

	subs, err := h.store.ListSubscriptions()
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	recent, err := h.store.RecentHistory(recentHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to load download history: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, err := h.sender.Send(timeoutCtx, cmdCtx.ChatID, h.createStatusMessage(subs, recent)); err != nil {
		return fmt.Errorf("failed to send status message: %w", err)
	}
	return nil
}

func (h *StatusHandler) createStatusMessage(subs []store.Subscription, recent []store.HistoryEntry) string {
	var b strings.Builder

	if len(subs) == 0 {
		b.WriteString("📋 No subscriptions yet. Use /subscribe <url> to track a playlist or album.\n")
	} else {
		fmt.Fprintf(&b, "📋 Subscriptions (%d)\n", len(subs))
		for i, sub := range subs {
			fmt.Fprintf(&b, "\n%d. %s\n", i+1, sub.DisplayName)
			fmt.Fprintf(&b, "   %s %s %s\n", sub.Platform, sub.Kind, sub.CollectionID)
			b.WriteString("   " + h.describeTracks(sub.ID) + "\n")
			b.WriteString("   " + describeSchedule(&sub) + "\n")
		}
	}

	if len(recent) > 0 {
		b.WriteString("\n🕘 Recent downloads\n")
		for _, entry := range recent {
			label := entry.Title
			if entry.Artist != "" {
				label = entry.Artist + " - " + entry.Title
			}
			fmt.Fprintf(&b, "• %s (%s, %s)\n", label, progress.FormatBytes(entry.SizeBytes), entry.TierUsed)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func (h *StatusHandler) describeTracks(subID uint) string {
	stats, err := h.store.CountTracks(subID)
	if err != nil {
		h.log.Warn("failed to count tracks", zap.Uint("subscription_id", subID), zap.Error(err))
		return "track counts unavailable"
	}
	s := fmt.Sprintf("✅ %d/%d downloaded", stats.Downloaded, stats.Total)
	if stats.Failed > 0 {
		s += fmt.Sprintf(", ⚠️ %d failed", stats.Failed)
	}
	return s
}

func describeSchedule(sub *store.Subscription) string {
	if !sub.Enabled {
		return "⏸ disabled"
	}
	if !sub.AutoSync {
		return "manual sync only"
	}
	s := fmt.Sprintf("🔁 auto sync every %s", time.Duration(sub.CheckInterval)*time.Second)
	if sub.LastCheckAt != nil {
		s += ", last checked " + sub.LastCheckAt.Format("2006-01-02 15:04")
	}
	return s
}
