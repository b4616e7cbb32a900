package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"tunesync/downloader"
	"tunesync/progress"
	"tunesync/quality"
	"tunesync/store"
	"tunesync/tags"
)

// DownloadHandler serves plain messages carrying a music link: songs download
// immediately, albums and playlists download in full as a one-shot batch.
// It implements URLHandler.
type DownloadHandler struct {
	sender    *Sender
	store     *store.Store
	registry  *downloader.Registry
	tagger    *tags.Tagger
	destRoot  string
	requested quality.Tier
	pacing    time.Duration
	interval  time.Duration
	log       *zap.Logger
}

// NewDownloadHandler creates a DownloadHandler. interval throttles progress
// message edits; pacing spaces out batch items.
func NewDownloadHandler(sender *Sender, st *store.Store, registry *downloader.Registry, tagger *tags.Tagger, destRoot string, requested quality.Tier, pacing, interval time.Duration, log *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		sender:    sender,
		store:     st,
		registry:  registry,
		tagger:    tagger,
		destRoot:  destRoot,
		requested: requested,
		pacing:    pacing,
		interval:  interval,
		log:       log,
	}
}

// HandleURL claims the message when some platform recognizes the link. The
// download itself runs in the background so the update loop stays free.
// A message that was clearly meant to be a link but matches no platform is
// answered with an unsupported-link reply; plain chatter stays unclaimed.
func (h *DownloadHandler) HandleURL(ctx context.Context, cmdCtx *CommandContext) (bool, error) {
	raw := strings.TrimSpace(cmdCtx.Text)
	if raw == "" {
		return false, nil
	}

	platform, parsed := h.registry.Match(raw)
	if platform == nil {
		if !looksLikeLink(raw) {
			return false, nil
		}
		h.send(cmdCtx.ChatID, friendlyError(downloader.New(downloader.ErrInvalidURL, "unsupported link")))
		return true, nil
	}

	h.log.Info("download requested",
		zap.String("platform", platform.Name()),
		zap.String("kind", string(parsed.Kind)),
		zap.String("id", parsed.ID),
		zap.Int64("user_id", cmdCtx.UserID))

	chatID := cmdCtx.ChatID
	go func() {
		if parsed.Kind == downloader.KindSong {
			h.downloadSingle(context.Background(), platform, parsed, chatID)
		} else {
			h.downloadCollection(context.Background(), platform, parsed, chatID)
		}
	}()
	return true, nil
}

// looksLikeLink reports whether the message was meant to carry a link.
// Mobile NetEase shares arrive as bare music.163.com text without a scheme.
func looksLikeLink(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "http://") ||
		strings.Contains(lower, "https://") ||
		strings.Contains(lower, "music.163.com")
}

// downloadSingle fetches one song. A song already in the history with its
// file still on disk is not fetched again.
func (h *DownloadHandler) downloadSingle(ctx context.Context, platform downloader.Platform, parsed *downloader.ParsedURL, chatID int64) {
	if entry, err := h.store.FindHistory(platform.Name(), parsed.ID); err == nil && entry.FilePath != "" {
		if _, statErr := os.Stat(entry.FilePath); statErr == nil {
			h.send(chatID, fmt.Sprintf("✅ Already downloaded:\n🎵 %s\n📁 %s", entry.Title, entry.FilePath))
			return
		}
	}

	item, err := platform.Track(ctx, parsed.ID)
	if err != nil {
		h.send(chatID, friendlyError(err))
		return
	}

	editor := h.openProgress(chatID, fmt.Sprintf("⏬ Starting download...\n\n🎵 %s", item.Label()))
	if editor == nil {
		return
	}
	notifier := progress.NewNotifier(editor, h.interval, h.log)
	tracker := progress.NewTracker(notifier, 0)
	tracker.SetContext(progress.Context{Batch: progress.BatchSingle, Count: 1})

	tracker.Emit(progress.Event{Kind: progress.EventItemStart, Label: item.Label()})
	destDir := filepath.Join(h.destRoot, platform.Name())
	outcome, err := downloader.FetchItem(ctx, platform, *item, destDir, h.requested, tracker, h.log)
	if err != nil {
		tracker.Close()
		h.finishProgress(editor, friendlyError(err))
		return
	}
	tracker.Emit(progress.Event{Kind: progress.EventItemDone, Label: item.Label()})
	tracker.Close()

	h.embedTags(ctx, *item, outcome)
	length, _ := tags.Duration(outcome.FilePath)
	h.recordHistory(&store.HistoryEntry{
		Platform:     platform.Name(),
		ContentID:    parsed.ID,
		Kind:         string(downloader.KindSong),
		Title:        outcome.Title,
		Artist:       outcome.Artist,
		FilePath:     outcome.FilePath,
		SizeBytes:    outcome.SizeBytes,
		DurationSecs: int(length / time.Second),
		TierUsed:     outcome.TierUsed.String(),
		ChatID:       chatID,
	})

	h.finishProgress(editor, progress.SongCompleted(outcome.FilePath, outcome.SizeBytes, outcome.TierUsed.String(), length))
}

// downloadCollection fetches every member of an album or playlist. Item
// failures are collected, not fatal; the summary lists them.
func (h *DownloadHandler) downloadCollection(ctx context.Context, platform downloader.Platform, parsed *downloader.ParsedURL, chatID int64) {
	coll, err := platform.Members(ctx, parsed.Kind, parsed.ID)
	if err != nil {
		h.send(chatID, friendlyError(err))
		return
	}
	title := coll.Title
	if title == "" {
		title = parsed.ID
	}

	editor := h.openProgress(chatID, fmt.Sprintf("⏬ Downloading %s (%d tracks)...", title, len(coll.Items)))
	if editor == nil {
		return
	}
	notifier := progress.NewNotifier(editor, h.interval, h.log)
	tracker := progress.NewTracker(notifier, 0)
	tracker.SetContext(progress.Context{
		Batch:      downloader.BatchKind(coll.Kind),
		Collection: title,
		Count:      len(coll.Items),
	})

	destDir := filepath.Join(h.destRoot, platform.Name(), strings.ReplaceAll(parsed.ID, "/", "-"))

	var songs []progress.CompletedSong
	var failures []progress.Failure
	var totalBytes int64
	attempted := false
	for _, item := range coll.Items {
		if ctx.Err() != nil {
			break
		}
		if attempted && h.pacing > 0 {
			select {
			case <-time.After(h.pacing):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		attempted = true

		tracker.Emit(progress.Event{Kind: progress.EventItemStart, Label: item.Label(), Index: item.Index})

		outcome, fetchErr := downloader.FetchItem(ctx, platform, item, destDir, h.requested, tracker, h.log)
		if fetchErr != nil {
			failures = append(failures, progress.Failure{Label: item.Label(), Reason: downloader.Reason(fetchErr)})
			h.log.Warn("batch item failed",
				zap.String("platform", platform.Name()),
				zap.String("item", item.ID),
				zap.Error(fetchErr))
		} else {
			songs = append(songs, progress.CompletedSong{Label: item.Label(), SizeBytes: outcome.SizeBytes})
			totalBytes += outcome.SizeBytes
			h.embedTags(ctx, item, outcome)
		}

		tracker.Emit(progress.Event{Kind: progress.EventItemDone, Label: item.Label(), Index: item.Index})
	}
	tracker.Close()

	h.recordHistory(&store.HistoryEntry{
		Platform:  platform.Name(),
		ContentID: parsed.ID,
		Kind:      string(coll.Kind),
		Title:     title,
		FilePath:  destDir,
		SizeBytes: totalBytes,
		TierUsed:  h.requested.String(),
		ChatID:    chatID,
	})

	h.finishProgress(editor, progress.CollectionCompleted(downloader.BatchKind(coll.Kind), title, songs, failures))
}

func (h *DownloadHandler) embedTags(ctx context.Context, item downloader.ItemDescriptor, outcome *downloader.Outcome) {
	if h.tagger == nil || outcome == nil || outcome.Skipped || outcome.FilePath == "" {
		return
	}
	meta := tags.Meta{
		Title:    outcome.Title,
		Artist:   outcome.Artist,
		Album:    outcome.Album,
		CoverURL: item.CoverURL,
	}
	if err := h.tagger.Embed(ctx, outcome.FilePath, meta); err != nil {
		h.log.Warn("tag embed failed",
			zap.String("file", outcome.FilePath),
			zap.Error(err))
	}
}

func (h *DownloadHandler) recordHistory(entry *store.HistoryEntry) {
	if err := h.store.AddHistory(entry); err != nil {
		h.log.Warn("failed to record download history",
			zap.String("platform", entry.Platform),
			zap.String("content_id", entry.ContentID),
			zap.Error(err))
	}
}

// openProgress sends the initial status message. A nil return means the chat
// is unreachable and the download is abandoned.
func (h *DownloadHandler) openProgress(chatID int64, initial string) progress.MessageEditor {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	editor, err := h.sender.StartProgress(ctx, chatID, initial)
	if err != nil {
		h.log.Warn("could not open progress message", zap.Int64("chat_id", chatID), zap.Error(err))
		return nil
	}
	return editor
}

func (h *DownloadHandler) finishProgress(editor progress.MessageEditor, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := editor.Edit(ctx, text); err != nil {
		h.log.Warn("could not finalize progress message", zap.Error(err))
	}
}

func (h *DownloadHandler) send(chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if _, err := h.sender.Send(ctx, chatID, text); err != nil {
		h.log.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
