package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abema/go-mp4"
	"go.uber.org/zap"

	"tunesync/downloader"
	"tunesync/progress"
	"tunesync/quality"
	"tunesync/store"
)

// fakeBotPlatform is a minimal in-memory Platform for exercising the bot's
// download paths end to end without a network.
type fakeBotPlatform struct {
	name       string
	tracks     map[string]downloader.ItemDescriptor
	collection *downloader.Collection
	content    map[string][]byte
	trackErr   error
	membersErr error
}

func (f *fakeBotPlatform) Name() string { return f.name }

func (f *fakeBotPlatform) ParseURL(raw string) *downloader.ParsedURL {
	prefix := f.name + "://"
	if !strings.HasPrefix(raw, prefix) {
		return nil
	}
	rest := strings.TrimPrefix(raw, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	return &downloader.ParsedURL{
		Platform: f.name,
		Kind:     downloader.Kind(parts[0]),
		ID:       parts[1],
		RawURL:   raw,
	}
}

func (f *fakeBotPlatform) Track(ctx context.Context, id string) (*downloader.ItemDescriptor, error) {
	if f.trackErr != nil {
		return nil, f.trackErr
	}
	item, ok := f.tracks[id]
	if !ok {
		return nil, downloader.New(downloader.ErrUpstream, "unknown track")
	}
	return &item, nil
}

func (f *fakeBotPlatform) Members(ctx context.Context, kind downloader.Kind, id string) (*downloader.Collection, error) {
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return f.collection, nil
}

func (f *fakeBotPlatform) ResolveLocator(ctx context.Context, itemID string, tier quality.Tier) (*downloader.FetchLocator, error) {
	payload, ok := f.content[itemID]
	if !ok {
		return nil, nil
	}
	return &downloader.FetchLocator{
		URL:       "mem://" + itemID,
		Tier:      tier,
		Format:    "m4a",
		SizeBytes: int64(len(payload)),
	}, nil
}

func (f *fakeBotPlatform) Fetch(ctx context.Context, item downloader.ItemDescriptor, loc *downloader.FetchLocator, destDir string, sink progress.Sink) (*downloader.Outcome, error) {
	payload := f.content[item.ID]
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, downloader.Wrap(downloader.ErrFilesystem, "failed to create destination directory", err)
	}
	path := filepath.Join(destDir, item.ID+"."+loc.Format)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, downloader.Wrap(downloader.ErrFilesystem, "failed to write file", err)
	}
	sink.Emit(progress.Event{Kind: progress.EventTransfer, Bytes: int64(len(payload)), Total: int64(len(payload)), Label: item.Label()})
	return &downloader.Outcome{
		ItemID:    item.ID,
		Title:     item.Title,
		Artist:    item.Artist,
		Album:     item.Album,
		FilePath:  path,
		SizeBytes: int64(len(payload)),
	}, nil
}

func newBotTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "bot_test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newDownloadFixture(t *testing.T) (*DownloadHandler, *fakeBotPlatform, *MockTelegramAPI, *store.Store, string) {
	t.Helper()

	platform := &fakeBotPlatform{
		name: "fake",
		tracks: map[string]downloader.ItemDescriptor{
			"s1": {ID: "s1", Title: "Song One", Artist: "Artist", Album: "Album"},
		},
		collection: &downloader.Collection{
			Kind:  downloader.KindPlaylist,
			ID:    "pl9",
			Title: "Mix",
			Items: []downloader.ItemDescriptor{
				{ID: "s1", Title: "Song One", Artist: "Artist", Index: 1},
				{ID: "s2", Title: "Song Two", Artist: "Artist", Index: 2},
			},
		},
		content: map[string][]byte{
			"s1": []byte("first song bytes"),
			"s2": []byte("second song bytes!"),
		},
	}

	registry := downloader.NewRegistry()
	registry.Register(platform)

	mock := &MockTelegramAPI{}
	sender := NewSender(mock, zap.NewNop())
	st := newBotTestStore(t)
	destRoot := t.TempDir()

	handler := NewDownloadHandler(sender, st, registry, nil, destRoot, quality.TierLossless, 0, 0, zap.NewNop())
	return handler, platform, mock, st, destRoot
}

// m4aHeader builds a minimal container (ftyp plus moov/mvhd, no audio) whose
// movie header declares the given playback length.
func m4aHeader(t *testing.T, length time.Duration) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "header.m4a")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	w := mp4.NewWriter(f)
	ftyp, err := w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeFtyp()})
	if err != nil {
		t.Fatalf("start ftyp: %v", err)
	}
	_, err = mp4.Marshal(w, &mp4.Ftyp{
		MajorBrand: [4]byte{'M', '4', 'A', ' '},
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'M', '4', 'A', ' '}},
		},
	}, ftyp.Context)
	if err != nil {
		t.Fatalf("write ftyp: %v", err)
	}
	if _, err := w.EndBox(); err != nil {
		t.Fatalf("end ftyp: %v", err)
	}

	if _, err := w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeMoov()}); err != nil {
		t.Fatalf("start moov: %v", err)
	}
	mvhd, err := w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeMvhd()})
	if err != nil {
		t.Fatalf("start mvhd: %v", err)
	}
	_, err = mp4.Marshal(w, &mp4.Mvhd{
		Timescale:  1000,
		DurationV0: uint32(length.Milliseconds()),
	}, mvhd.Context)
	if err != nil {
		t.Fatalf("write mvhd: %v", err)
	}
	if _, err := w.EndBox(); err != nil {
		t.Fatalf("end mvhd: %v", err)
	}
	if _, err := w.EndBox(); err != nil {
		t.Fatalf("end moov: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func TestDownloadHandlerIgnoresUnknownText(t *testing.T) {
	handler, _, mock, _, _ := newDownloadFixture(t)

	claimed, err := handler.HandleURL(context.Background(), &CommandContext{ChatID: 1, Text: "what's up"})
	if err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	if claimed {
		t.Error("Expected plain text not to be claimed")
	}
	if mock.sentCount() != 0 {
		t.Errorf("Expected no messages for unrelated text, got %d", mock.sentCount())
	}
}

func TestDownloadHandlerRejectsUnsupportedLink(t *testing.T) {
	handler, _, mock, _, _ := newDownloadFixture(t)

	claimed, err := handler.HandleURL(context.Background(), &CommandContext{ChatID: 1, Text: "https://example.com/some/page"})
	if err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	if !claimed {
		t.Error("Expected a link-shaped message to be claimed")
	}
	if mock.sentCount() != 1 {
		t.Fatalf("Expected one unsupported-link reply, got %d sends", mock.sentCount())
	}
	if !strings.Contains(mock.sentText(0), "supported music URL") {
		t.Errorf("Expected unsupported-link reply, got: %q", mock.sentText(0))
	}
}

func TestDownloadHandlerClaimsKnownURL(t *testing.T) {
	handler, _, _, _, _ := newDownloadFixture(t)

	claimed, err := handler.HandleURL(context.Background(), &CommandContext{ChatID: 1, Text: "fake://song/s1"})
	if err != nil {
		t.Fatalf("HandleURL failed: %v", err)
	}
	if !claimed {
		t.Error("Expected a recognized URL to be claimed")
	}
}

func TestDownloadSingle(t *testing.T) {
	handler, platform, mock, st, destRoot := newDownloadFixture(t)

	parsed := platform.ParseURL("fake://song/s1")
	handler.downloadSingle(context.Background(), platform, parsed, 42)

	wantPath := filepath.Join(destRoot, "fake", "s1.m4a")
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("Expected downloaded file at %s: %v", wantPath, err)
	}

	entry, err := st.FindHistory("fake", "s1")
	if err != nil {
		t.Fatalf("Expected history entry: %v", err)
	}
	if entry.Title != "Song One" {
		t.Errorf("Expected history title 'Song One', got %q", entry.Title)
	}
	if entry.ChatID != 42 {
		t.Errorf("Expected history chat 42, got %d", entry.ChatID)
	}
	if entry.TierUsed != "lossless" {
		t.Errorf("Expected tier lossless, got %q", entry.TierUsed)
	}

	if mock.editedCount() == 0 {
		t.Fatal("Expected progress edits")
	}
	final := mock.editedText(mock.editedCount() - 1)
	if !strings.Contains(final, "Download complete") {
		t.Errorf("Expected completion message, got: %q", final)
	}
	if strings.Contains(final, "Length") {
		t.Errorf("Expected no length line for an unreadable container, got: %q", final)
	}
}

func TestDownloadSingleReportsLength(t *testing.T) {
	handler, platform, mock, st, _ := newDownloadFixture(t)
	platform.content["s1"] = m4aHeader(t, 212*time.Second)

	parsed := platform.ParseURL("fake://song/s1")
	handler.downloadSingle(context.Background(), platform, parsed, 42)

	entry, err := st.FindHistory("fake", "s1")
	if err != nil {
		t.Fatalf("Expected history entry: %v", err)
	}
	if entry.DurationSecs != 212 {
		t.Errorf("Expected container length 212s in history, got %d", entry.DurationSecs)
	}

	final := mock.editedText(mock.editedCount() - 1)
	if !strings.Contains(final, "⏱ Length: 3:32") {
		t.Errorf("Expected length line in completion message, got: %q", final)
	}
}

func TestDownloadSingleSkipsExistingHistory(t *testing.T) {
	handler, platform, mock, st, destRoot := newDownloadFixture(t)

	existing := filepath.Join(destRoot, "already.m4a")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := st.AddHistory(&store.HistoryEntry{
		Platform: "fake", ContentID: "s1", Kind: "song",
		Title: "Song One", FilePath: existing, SizeBytes: 1, TierUsed: "lossless", ChatID: 42,
	}); err != nil {
		t.Fatal(err)
	}

	parsed := platform.ParseURL("fake://song/s1")
	handler.downloadSingle(context.Background(), platform, parsed, 42)

	if mock.sentCount() != 1 {
		t.Fatalf("Expected a single already-downloaded notice, got %d sends", mock.sentCount())
	}
	if !strings.Contains(mock.sentText(0), "Already downloaded") {
		t.Errorf("Expected already-downloaded notice, got: %q", mock.sentText(0))
	}
	if mock.editedCount() != 0 {
		t.Errorf("Expected no progress edits for a skipped download, got %d", mock.editedCount())
	}
}

func TestDownloadSingleFailureReported(t *testing.T) {
	handler, platform, mock, _, _ := newDownloadFixture(t)
	delete(platform.content, "s1")

	parsed := platform.ParseURL("fake://song/s1")
	handler.downloadSingle(context.Background(), platform, parsed, 42)

	if mock.editedCount() == 0 {
		t.Fatal("Expected a final edit reporting the failure")
	}
	final := mock.editedText(mock.editedCount() - 1)
	if !strings.Contains(final, "quality tier") {
		t.Errorf("Expected tier failure message, got: %q", final)
	}
}

func TestDownloadCollection(t *testing.T) {
	handler, platform, mock, st, destRoot := newDownloadFixture(t)

	parsed := platform.ParseURL("fake://playlist/pl9")
	handler.downloadCollection(context.Background(), platform, parsed, 42)

	for _, id := range []string{"s1", "s2"} {
		path := filepath.Join(destRoot, "fake", "pl9", id+".m4a")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected downloaded file at %s: %v", path, err)
		}
	}

	entry, err := st.FindHistory("fake", "pl9")
	if err != nil {
		t.Fatalf("Expected history entry for the collection: %v", err)
	}
	if entry.Kind != "playlist" {
		t.Errorf("Expected kind playlist, got %q", entry.Kind)
	}
	wantBytes := int64(len("first song bytes") + len("second song bytes!"))
	if entry.SizeBytes != wantBytes {
		t.Errorf("Expected aggregate size %d, got %d", wantBytes, entry.SizeBytes)
	}

	final := mock.editedText(mock.editedCount() - 1)
	if !strings.Contains(final, "Mix") {
		t.Errorf("Expected summary to name the playlist, got: %q", final)
	}
	if !strings.Contains(final, "Song One") {
		t.Errorf("Expected summary to list songs, got: %q", final)
	}
}

func TestDownloadCollectionPartialFailure(t *testing.T) {
	handler, platform, mock, _, _ := newDownloadFixture(t)
	delete(platform.content, "s2")

	parsed := platform.ParseURL("fake://playlist/pl9")
	handler.downloadCollection(context.Background(), platform, parsed, 42)

	final := mock.editedText(mock.editedCount() - 1)
	if !strings.Contains(final, "Song Two") {
		t.Errorf("Expected failed song to be listed, got: %q", final)
	}
	if !strings.Contains(final, "no playable tier available") {
		t.Errorf("Expected failure reason in summary, got: %q", final)
	}
}

func TestDownloadCollectionRespectsPacing(t *testing.T) {
	handler, platform, _, _, _ := newDownloadFixture(t)
	handler.pacing = 30 * time.Millisecond

	start := time.Now()
	parsed := platform.ParseURL("fake://playlist/pl9")
	handler.downloadCollection(context.Background(), platform, parsed, 42)

	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected at least one pacing pause, finished in %v", elapsed)
	}
}
