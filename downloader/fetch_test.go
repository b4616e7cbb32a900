package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"tunesync/progress"
)

// captureSink records emitted events for assertions
type captureSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureSink) Emit(ev progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) Events() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain name untouched",
			input:    "Artist - Title",
			expected: "Artist - Title",
		},
		{
			name:     "path separators replaced",
			input:    "AC/DC - Back\\Forth",
			expected: "AC_DC - Back_Forth",
		},
		{
			name:     "reserved characters replaced",
			input:    `What? "Why" <Now>: 50|50*`,
			expected: "What_ _Why_ _Now__ 50_50_",
		},
		{
			name:     "trailing dots and spaces trimmed",
			input:    "ellipsis... ",
			expected: "ellipsis",
		},
		{
			name:     "empty input falls back",
			input:    "",
			expected: "untitled",
		},
		{
			name:     "whitespace and dots only falls back",
			input:    " .. ",
			expected: "untitled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeFilename(tc.input); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("я", 300)
	got := sanitizeFilename(long)
	if runeLen := len([]rune(got)); runeLen != 200 {
		t.Errorf("Expected 200 runes, got %d", runeLen)
	}
}

func TestDownloadToFile(t *testing.T) {
	content := strings.Repeat("abcdefgh", 64*1024) // larger than one copy buffer
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("User-Agent")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write([]byte(content))
	}))
	defer srv.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "song.mp3")
	sink := &captureSink{}
	m := newMeter(sink, "Artist - Song", 0, 0)

	loc := &FetchLocator{
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "test-agent"},
	}
	written, err := downloadToFile(context.Background(), srv.Client(), loc, destPath, m)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("Expected %d bytes written, got %d", len(content), written)
	}
	if gotHeader != "test-agent" {
		t.Errorf("Expected locator headers on the request, got %q", gotHeader)
	}

	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatalf("Expected destination file, got %v", err)
	}
	if string(data) != content {
		t.Error("Destination content differs from served content")
	}

	events := sink.Events()
	if len(events) == 0 {
		t.Fatal("Expected transfer events")
	}
	var last int64 = -1
	for _, ev := range events {
		if ev.Kind != progress.EventTransfer {
			t.Errorf("Expected only transfer events, got %v", ev.Kind)
		}
		if ev.Bytes < last {
			t.Errorf("Byte counts went backwards: %d after %d", ev.Bytes, last)
		}
		last = ev.Bytes
	}
	if last != int64(len(content)) {
		t.Errorf("Expected final byte count %d, got %d", len(content), last)
	}
	// the content-length header feeds the total
	if events[len(events)-1].Total != int64(len(content)) {
		t.Errorf("Expected total %d, got %d", len(content), events[len(events)-1].Total)
	}
}

func TestDownloadToFileAccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	destPath := filepath.Join(t.TempDir(), "song.mp3")
	m := newMeter(progress.Discard, "x", 0, 0)
	_, err := downloadToFile(context.Background(), srv.Client(), &FetchLocator{URL: srv.URL}, destPath, m)
	if !IsKind(err, ErrAccessDenied) {
		t.Errorf("Expected access_denied for 403, got %v", err)
	}
	if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
		t.Error("Expected no file left behind after a rejected download")
	}
}

func TestDownloadToFileUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	destPath := filepath.Join(t.TempDir(), "song.mp3")
	m := newMeter(progress.Discard, "x", 0, 0)
	_, err := downloadToFile(context.Background(), srv.Client(), &FetchLocator{URL: srv.URL}, destPath, m)
	if !IsKind(err, ErrUpstream) {
		t.Errorf("Expected upstream_error for 502, got %v", err)
	}
}

func TestDownloadToFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		cancel()
		<-r.Context().Done()
	}))
	defer srv.Close()

	destPath := filepath.Join(t.TempDir(), "song.mp3")
	m := newMeter(progress.Discard, "x", 0, 0)
	_, err := downloadToFile(ctx, srv.Client(), &FetchLocator{URL: srv.URL}, destPath, m)
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
	if _, statErr := os.Stat(destPath); !os.IsNotExist(statErr) {
		t.Error("Expected partial file to be removed on cancellation")
	}
}

func TestFetchToWriterHonorsRangeHeader(t *testing.T) {
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("chunk"))
	}))
	defer srv.Close()

	var sb strings.Builder
	m := newMeter(progress.Discard, "x", 0, 0)
	headers := map[string]string{"Range": "bytes=100-104"}
	n, err := fetchToWriter(context.Background(), srv.Client(), srv.URL, headers, &sb, m)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if n != 5 || sb.String() != "chunk" {
		t.Errorf("Expected 5-byte chunk, got %d %q", n, sb.String())
	}
	if gotRange != "bytes=100-104" {
		t.Errorf("Expected Range header to pass through, got %q", gotRange)
	}
}

func TestExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "have.mp3")
	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}

	if size, ok := existingFile(path, 5); !ok || size != 5 {
		t.Errorf("Expected match at exact size, got %d %v", size, ok)
	}
	if _, ok := existingFile(path, 9); ok {
		t.Error("Expected mismatch when sizes differ")
	}
	if size, ok := existingFile(path, 0); !ok || size != 5 {
		t.Errorf("Expected any non-empty file to match an unknown size, got %d %v", size, ok)
	}
	if _, ok := existingFile(filepath.Join(dir, "missing.mp3"), 5); ok {
		t.Error("Expected miss for a missing file")
	}

	empty := filepath.Join(dir, "empty.mp3")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := existingFile(empty, 0); ok {
		t.Error("Expected empty files never to count as complete")
	}
}

func TestItemFileName(t *testing.T) {
	item := ItemDescriptor{Title: "Song/Name", Artist: "Artist"}
	if got := itemFileName(item, ".mp3"); got != "Artist - Song_Name.mp3" {
		t.Errorf("Unexpected file name %q", got)
	}
	if got := itemFileName(item, "flac"); got != "Artist - Song_Name.flac" {
		t.Errorf("Unexpected file name %q", got)
	}
}
