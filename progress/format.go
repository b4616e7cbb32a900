package progress

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	barLength     = 20
	barFilledCell = "█"
	barEmptyCell  = "░"

	labelWidth      = 30
	collectionWidth = 25

	// caps for the batch completion summary
	maxListedSongs    = 15
	maxListedFailures = 5
)

// Bar renders the fixed-width progress bar for a completion percentage
func Bar(percentage float64) string {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	filled := int((percentage / 100.0) * float64(barLength))
	return strings.Repeat(barFilledCell, filled) + strings.Repeat(barEmptyCell, barLength-filled)
}

// Percent computes the completion percentage, 0 when the total is unknown
func Percent(bytes, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(bytes) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// FormatBytes formats a byte count into human-readable 1024-based units
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}

// FormatRate formats an instantaneous transfer rate
func FormatRate(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "--"
	}
	return FormatBytes(bytesPerSec) + "/s"
}

// FormatETA renders the estimated remaining time: "Ns" under a minute,
// "Mm Ss" otherwise, "computing…" while the rate is still unknown.
func FormatETA(eta time.Duration, rate int64) string {
	if rate <= 0 || eta <= 0 {
		return "computing…"
	}
	secs := int(eta.Round(time.Second) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// FormatLength renders a playback length as minutes:seconds
func FormatLength(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Truncate bounds a display label to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// RenderEvent builds the progress message for one event under the given
// invocation context. Three templates: single item, album, playlist.
func RenderEvent(c Context, ev Event) string {
	var b strings.Builder

	switch c.Batch {
	case BatchAlbum:
		b.WriteString(fmt.Sprintf("📀 Album: %s\n", Truncate(c.Collection, collectionWidth)))
		b.WriteString(fmt.Sprintf("📝 Track %d/%d\n\n", ev.Index, c.Count))
	case BatchPlaylist:
		b.WriteString(fmt.Sprintf("📋 Playlist: %s\n", Truncate(c.Collection, collectionWidth)))
		b.WriteString(fmt.Sprintf("📝 Track %d/%d\n\n", ev.Index, c.Count))
	}

	label := Truncate(ev.Label, labelWidth)

	switch ev.Kind {
	case EventItemStart:
		b.WriteString(fmt.Sprintf("🎵 Preparing: %s\n", label))
		b.WriteString("💾 Size: fetching…\n")
		b.WriteString("⚡ Speed: --\n")
		b.WriteString("⏳ ETA: computing…\n")
		b.WriteString(fmt.Sprintf("📊 %s (0.0%%)", Bar(0)))

	case EventItemDone:
		b.WriteString(fmt.Sprintf("✅ %s\n", label))
		b.WriteString(fmt.Sprintf("💾 Size: %s\n", FormatBytes(ev.Bytes)))
		b.WriteString(fmt.Sprintf("📊 %s (100.0%%)", Bar(100)))

	default:
		pct := Percent(ev.Bytes, ev.Total)
		b.WriteString(fmt.Sprintf("🎵 %s\n", label))
		b.WriteString(fmt.Sprintf("💾 Size: %s / %s\n", FormatBytes(ev.Bytes), FormatBytes(ev.Total)))
		b.WriteString(fmt.Sprintf("⚡ Speed: %s\n", FormatRate(ev.Rate)))
		b.WriteString(fmt.Sprintf("⏳ ETA: %s\n", FormatETA(ev.ETA, ev.Rate)))
		b.WriteString(fmt.Sprintf("📊 %s (%.1f%%)", Bar(pct), pct))
	}

	return b.String()
}

// Failure is one failed item surfaced in a completion summary
type Failure struct {
	Label  string
	Reason string
}

// CompletedSong is one successful item listed in a batch summary
type CompletedSong struct {
	Label     string
	SizeBytes int64
}

// SongCompleted renders the terminal message for a one-shot single download.
// A zero length means the container was not readable and the line is omitted.
func SongCompleted(filePath string, sizeBytes int64, tier string, length time.Duration) string {
	name := Truncate(filepath.Base(filePath), 35)
	lengthLine := ""
	if length > 0 {
		lengthLine = fmt.Sprintf("⏱ Length: %s\n", FormatLength(length))
	}
	return fmt.Sprintf(
		"✅ Download complete!\n\n"+
			"🎵 %s\n"+
			"💾 Size: %s\n"+
			"🎚 Quality: %s\n"+
			"%s"+
			"📊 %s (100.0%%)",
		name, FormatBytes(sizeBytes), tier, lengthLine, Bar(100))
}

// CollectionCompleted renders the terminal message for an album/playlist
// one-shot download: firm accounting plus a bounded list of songs and
// failure reasons.
func CollectionCompleted(batch BatchKind, name string, songs []CompletedSong, failures []Failure) string {
	typeLabel, typeIcon := "Playlist", "📋"
	if batch == BatchAlbum {
		typeLabel, typeIcon = "Album", "📀"
	}

	var total int64
	for _, s := range songs {
		total += s.SizeBytes
	}

	lines := []string{
		fmt.Sprintf("%s %s: %s", typeIcon, typeLabel, name),
		fmt.Sprintf("💾 Size: %s", FormatBytes(total)),
		fmt.Sprintf("📊 %s (100.0%%)", Bar(100)),
		"",
		fmt.Sprintf("🎵 Tracks: %d", len(songs)+len(failures)),
		fmt.Sprintf("✅ Downloaded: %d", len(songs)),
	}
	if len(failures) > 0 {
		lines = append(lines, fmt.Sprintf("❌ Failed: %d", len(failures)))
	}

	if len(songs) > 0 {
		lines = append(lines, "", "🎵 Songs:")
		for i, s := range songs {
			if i == maxListedSongs {
				lines = append(lines, fmt.Sprintf("... and %d more", len(songs)-maxListedSongs))
				break
			}
			lines = append(lines, fmt.Sprintf("%02d. %s (%s)", i+1, Truncate(s.Label, labelWidth), FormatBytes(s.SizeBytes)))
		}
	}

	lines = appendFailureList(lines, failures)
	return strings.Join(lines, "\n")
}

// SyncStarted renders the notification sent when a subscription pass begins
func SyncStarted(name, collectionID string, auto bool) string {
	syncType := "📥 Manual sync"
	if auto {
		syncType = "🔄 Auto sync"
	}
	return fmt.Sprintf(
		"%s started...\n\n"+
			"📋 Playlist: %s\n"+
			"🔗 ID: %s\n"+
			"⏳ Checking for updates...",
		syncType, name, collectionID)
}

// CheckResult renders the enumeration outcome before any items download
func CheckResult(name string, total, downloaded, newCount int) string {
	if newCount == 0 {
		return fmt.Sprintf(
			"✅ Playlist is up to date\n\n"+
				"📋 Playlist: %s\n"+
				"🎵 Total: %d\n"+
				"📦 Downloaded: %d\n"+
				"🆕 New: 0",
			name, total, downloaded)
	}
	return fmt.Sprintf(
		"🆕 New songs found!\n\n"+
			"📋 Playlist: %s\n"+
			"🎵 Total: %d\n"+
			"📦 Downloaded: %d\n"+
			"🆕 New: %d\n\n"+
			"⏳ Downloading new songs...",
		name, total, downloaded, newCount)
}

// SyncSummary is the accounting of one finished pass, rendered for the user
type SyncSummary struct {
	Collection string
	Total      int
	New        int
	Succeeded  int
	Skipped    int
	Failed     int
	Failures   []Failure
}

// SyncCompleted renders the terminal message of one sync pass
func SyncCompleted(s SyncSummary) string {
	statusIcon := "✅"
	if s.Failed > 0 {
		statusIcon = "⚠️"
	}

	lines := []string{
		fmt.Sprintf("%s Playlist sync complete!\n", statusIcon),
		fmt.Sprintf("📋 Playlist: %s", s.Collection),
		fmt.Sprintf("📊 %s (100.0%%)", Bar(100)),
		"",
		fmt.Sprintf("🎵 Total: %d", s.Total),
		fmt.Sprintf("🆕 New: %d", s.New),
		fmt.Sprintf("✅ Downloaded: %d", s.Succeeded),
		fmt.Sprintf("⏭️ Skipped: %d", s.Skipped),
	}
	if s.Failed > 0 {
		lines = append(lines, fmt.Sprintf("❌ Failed: %d", s.Failed))
	}

	lines = appendFailureList(lines, s.Failures)
	return strings.Join(lines, "\n")
}

func appendFailureList(lines []string, failures []Failure) []string {
	if len(failures) == 0 {
		return lines
	}
	lines = append(lines, "", "❌ Failed songs:")
	for i, f := range failures {
		if i == maxListedFailures {
			lines = append(lines, fmt.Sprintf("... and %d more", len(failures)-maxListedFailures))
			break
		}
		lines = append(lines, fmt.Sprintf("  • %s: %s", Truncate(f.Label, labelWidth), f.Reason))
	}
	return lines
}
