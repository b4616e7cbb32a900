package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunesync/progress"
)

const (
	fetchBufferSize = 32 * 1024
	// rate is sampled over a sliding window so the display does not jitter
	rateSampleWindow = 500 * time.Millisecond
)

var forbiddenNames = strings.NewReplacer(
	"\\", "_", "/", "_", "<", "_", ">", "_",
	":", "_", "\"", "_", "|", "_", "?", "_", "*", "_",
)

// sanitizeFilename makes a display label safe to use as a file name:
// illegal characters become underscores, surrounding dots/spaces are
// trimmed, and the result is capped at 200 runes.
func sanitizeFilename(name string) string {
	clean := forbiddenNames.Replace(name)
	clean = strings.Trim(clean, " .")
	if clean == "" {
		return "untitled"
	}
	runes := []rune(clean)
	if len(runes) > 200 {
		clean = string(runes[:200])
	}
	return clean
}

// itemFileName builds the on-disk name for an item: "Artist - Title.ext"
func itemFileName(item ItemDescriptor, ext string) string {
	return sanitizeFilename(item.Label()) + "." + strings.TrimPrefix(ext, ".")
}

// meter converts raw write counts into transfer events with an
// instantaneous rate and ETA. Byte counts only ever grow.
type meter struct {
	sink  progress.Sink
	label string
	index int
	total int64

	bytes       int64
	rate        int64
	windowStart time.Time
	windowBytes int64
}

func newMeter(sink progress.Sink, label string, index int, total int64) *meter {
	return &meter{
		sink:        sink,
		label:       label,
		index:       index,
		total:       total,
		windowStart: time.Now(),
	}
}

func (m *meter) add(n int) {
	m.bytes += int64(n)
	m.windowBytes += int64(n)

	if elapsed := time.Since(m.windowStart); elapsed >= rateSampleWindow {
		m.rate = int64(float64(m.windowBytes) / elapsed.Seconds())
		m.windowStart = time.Now()
		m.windowBytes = 0
	}

	var eta time.Duration
	if m.rate > 0 && m.total > 0 && m.bytes < m.total {
		eta = time.Duration((m.total-m.bytes)/m.rate) * time.Second
	}

	m.sink.Emit(progress.Event{
		Kind:  progress.EventTransfer,
		Bytes: m.bytes,
		Total: m.total,
		Rate:  m.rate,
		ETA:   eta,
		Label: m.label,
		Index: m.index,
	})
}

// downloadToFile streams one HTTP resource into destPath, reporting
// progress through the meter. The caller owns skip/overwrite policy.
func downloadToFile(ctx context.Context, client *http.Client, loc *FetchLocator, destPath string, m *meter) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return 0, Wrap(ErrInvalidURL, "building download request", err)
	}
	for k, v := range loc.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, classifyTransportErr("download request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return 0, New(ErrAccessDenied, fmt.Sprintf("upstream rejected download with status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return 0, New(ErrUpstream, fmt.Sprintf("unexpected download status %d", resp.StatusCode))
	}

	if m.total <= 0 && resp.ContentLength > 0 {
		m.total = resp.ContentLength
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, Wrap(ErrFilesystem, "creating destination file", err)
	}
	defer out.Close()

	written, err := copyWithProgress(ctx, out, resp.Body, m)
	if err != nil {
		os.Remove(destPath)
		return 0, err
	}
	return written, nil
}

// fetchToWriter streams one HTTP resource into dst. Segmented formats
// call it once per segment against a shared destination file.
func fetchToWriter(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, dst io.Writer, m *meter) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, Wrap(ErrInvalidURL, "building segment request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, classifyTransportErr("segment request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return 0, New(ErrAccessDenied, fmt.Sprintf("upstream rejected segment with status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return 0, New(ErrUpstream, fmt.Sprintf("unexpected segment status %d", resp.StatusCode))
	}

	return copyWithProgress(ctx, dst, resp.Body, m)
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, m *meter) (int64, error) {
	buf := make([]byte, fetchBufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, Wrap(ErrTimeout, "download cancelled", err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, Wrap(ErrFilesystem, "writing to destination file", writeErr)
			}
			written += int64(n)
			m.add(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, classifyTransportErr("reading download stream", readErr)
		}
	}
}

// classifyTransportErr splits timeouts from other network failures
func classifyTransportErr(msg string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrTimeout, msg, err)
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return Wrap(ErrTimeout, msg, err)
	}
	return Wrap(ErrNetwork, msg, err)
}

// existingFile reports whether destPath already holds a complete copy:
// same size when the size is known, any non-empty file otherwise.
func existingFile(destPath string, wantSize int64) (int64, bool) {
	info, err := os.Stat(destPath)
	if err != nil || info.IsDir() {
		return 0, false
	}
	if wantSize > 0 && info.Size() != wantSize {
		return 0, false
	}
	return info.Size(), info.Size() > 0
}

// ensureDir creates the destination directory tree
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Wrap(ErrFilesystem, "creating download directory", err)
	}
	return nil
}

// destinationPath joins the download dir with the item file name
func destinationPath(destDir string, item ItemDescriptor, ext string) string {
	return filepath.Join(destDir, itemFileName(item, ext))
}
