package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/quality"
)

const (
	ytName             = "ytmusic"
	ytWatchURL         = "https://music.youtube.com/watch?v=%s"
	ytPlaylistURL      = "https://music.youtube.com/playlist?list=%s"
	ytProgressInterval = 500 * time.Millisecond
)

// Playlist patterns run first: a watch link that also carries list=
// is the whole playlist.
var (
	ytPlaylistRes = []*regexp.Regexp{
		regexp.MustCompile(`music\.youtube\.com.*[&?]list=([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`youtube\.com.*[&?]list=([a-zA-Z0-9_-]+)`),
	}
	ytSongRes = []*regexp.Regexp{
		regexp.MustCompile(`music\.youtube\.com/watch\?v=([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`youtube\.com/watch\?v=([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]+)`),
	}
)

// YTMusic shells out to yt-dlp for both metadata and audio. The
// binary must be reachable on PATH.
type YTMusic struct {
	log        *zap.Logger
	cookieFile string
}

func NewYTMusic(log *zap.Logger, cookieFile string) *YTMusic {
	if log == nil {
		log = zap.NewNop()
	}
	return &YTMusic{
		log:        log.Named("ytmusic"),
		cookieFile: cookieFile,
	}
}

// Name implements Platform
func (y *YTMusic) Name() string { return ytName }

// ParseURL implements Platform
func (y *YTMusic) ParseURL(raw string) *ParsedURL {
	lower := strings.ToLower(raw)
	if !strings.Contains(lower, "youtube.com") && !strings.Contains(lower, "youtu.be") {
		return nil
	}

	for _, re := range ytPlaylistRes {
		if m := re.FindStringSubmatch(raw); m != nil {
			return &ParsedURL{Platform: ytName, Kind: KindPlaylist, ID: m[1], RawURL: raw}
		}
	}
	for _, re := range ytSongRes {
		if m := re.FindStringSubmatch(raw); m != nil {
			return &ParsedURL{Platform: ytName, Kind: KindSong, ID: m[1], RawURL: raw}
		}
	}
	return nil
}

// extract runs a metadata-only yt-dlp pass. Flat mode keeps playlist
// entries shallow so enumeration stays a single request.
func (y *YTMusic) extract(ctx context.Context, url string, flat bool) ([]*ytdlp.ExtractedInfo, error) {
	dl := ytdlp.New().
		SkipDownload().
		NoWarnings().
		Quiet()
	if flat {
		dl = dl.YesPlaylist().FlatPlaylist().DumpSingleJSON()
	} else {
		dl = dl.NoPlaylist().DumpJSON()
	}
	if y.cookieFile != "" {
		dl = dl.Cookies(y.cookieFile)
	}

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, ytClassify(ctx, "yt-dlp metadata extraction failed", err)
	}
	infos, err := result.GetExtractedInfo()
	if err != nil {
		return nil, Wrap(ErrUpstream, "parsing yt-dlp metadata", err)
	}
	return infos, nil
}

func ytClassify(ctx context.Context, msg string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Wrap(ErrTimeout, msg, ctxErr)
	}
	return Wrap(ErrUpstream, msg, err)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ytDescriptor maps one extracted entry onto an item. Auto-generated
// artist channels carry a " - Topic" suffix worth stripping.
func ytDescriptor(info *ytdlp.ExtractedInfo, index int) ItemDescriptor {
	artist := derefString(info.Artist)
	if artist == "" {
		artist = strings.TrimSuffix(derefString(info.Uploader), " - Topic")
	}
	return ItemDescriptor{
		ID:       info.ID,
		Title:    derefString(info.Title),
		Artist:   artist,
		Album:    derefString(info.Album),
		CoverURL: derefString(info.Thumbnail),
		Index:    index,
	}
}

// Track implements Platform
func (y *YTMusic) Track(ctx context.Context, id string) (*ItemDescriptor, error) {
	infos, err := y.extract(ctx, fmt.Sprintf(ytWatchURL, id), false)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info == nil || info.Entries != nil {
			continue
		}
		d := ytDescriptor(info, 0)
		return &d, nil
	}
	return nil, New(ErrUpstream, "yt-dlp returned no track metadata")
}

// Members implements Platform. Albums on this platform are playlists
// under the hood, so both kinds enumerate the same way.
func (y *YTMusic) Members(ctx context.Context, kind Kind, id string) (*Collection, error) {
	switch kind {
	case KindAlbum, KindPlaylist:
	default:
		return nil, New(ErrUnsupported, fmt.Sprintf("youtube music cannot enumerate %q", kind))
	}

	infos, err := y.extract(ctx, fmt.Sprintf(ytPlaylistURL, id), true)
	if err != nil {
		return nil, err
	}

	var playlist *ytdlp.ExtractedInfo
	for _, info := range infos {
		if info == nil {
			continue
		}
		if string(info.Type) == "playlist" || info.Entries != nil {
			playlist = info
			break
		}
	}
	if playlist == nil {
		return nil, New(ErrUpstream, "yt-dlp returned no playlist metadata")
	}

	items := make([]ItemDescriptor, 0, len(playlist.Entries))
	for _, entry := range playlist.Entries {
		if entry == nil {
			continue
		}
		items = append(items, ytDescriptor(entry, len(items)+1))
	}

	return &Collection{
		Kind:  kind,
		ID:    id,
		Title: derefString(playlist.Title),
		Items: items,
	}, nil
}

// ResolveLocator implements Platform. Lossless is never served here,
// so that rung is permanently unavailable.
func (y *YTMusic) ResolveLocator(ctx context.Context, itemID string, tier quality.Tier) (*FetchLocator, error) {
	if tier == quality.TierLossless {
		y.log.Debug("lossless never offered", zap.String("item", itemID))
		return nil, nil
	}
	return &FetchLocator{
		URL:    fmt.Sprintf(ytWatchURL, itemID),
		Tier:   tier,
		Format: "m4a",
	}, nil
}

func ytFormatForTier(tier quality.Tier) string {
	switch tier {
	case quality.TierHigh:
		return "bestaudio[abr>=160]/bestaudio"
	case quality.TierLow:
		return "worstaudio"
	default:
		return "bestaudio[ext=m4a]/bestaudio"
	}
}

// Fetch implements Platform. yt-dlp owns the transfer; its progress
// callback is bridged onto the sink.
func (y *YTMusic) Fetch(ctx context.Context, item ItemDescriptor, loc *FetchLocator, destDir string, sink progress.Sink) (*Outcome, error) {
	if err := ensureDir(destDir); err != nil {
		return nil, err
	}

	outTpl := filepath.Join(destDir, sanitizeFilename(item.Label())+".%(ext)s")

	dl := ytdlp.New().
		NoPlaylist().
		NoWarnings().
		Format(ytFormatForTier(loc.Tier)).
		ForceOverwrites().
		Output(outTpl)
	if y.cookieFile != "" {
		dl = dl.Cookies(y.cookieFile)
	}

	label := item.Label()
	dl.ProgressFunc(ytProgressInterval, func(update ytdlp.ProgressUpdate) {
		ev := progress.Event{
			Kind:  progress.EventTransfer,
			Bytes: int64(update.DownloadedBytes),
			Total: int64(update.TotalBytes),
			Label: label,
			Index: item.Index,
		}
		if !update.Started.IsZero() {
			if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
				ev.Rate = int64(float64(update.DownloadedBytes) / elapsed)
			}
		}
		if eta := update.ETA(); eta > 0 {
			ev.ETA = eta
		}
		sink.Emit(ev)
	})

	result, err := dl.Run(ctx, loc.URL)
	if err != nil {
		return nil, ytClassify(ctx, "yt-dlp download failed", err)
	}

	filePath := ytOutputFile(result)
	if filePath == "" {
		return nil, New(ErrUpstream, "yt-dlp reported no output file")
	}

	var size int64
	if info, statErr := os.Stat(filePath); statErr == nil {
		size = info.Size()
	}

	return &Outcome{
		ItemID:    item.ID,
		Title:     item.Title,
		Artist:    item.Artist,
		Album:     item.Album,
		FilePath:  filePath,
		SizeBytes: size,
	}, nil
}

func ytOutputFile(result *ytdlp.Result) string {
	if result == nil {
		return ""
	}
	infos, err := result.GetExtractedInfo()
	if err != nil {
		return ""
	}
	for _, info := range infos {
		if info != nil && info.Filename != nil && *info.Filename != "" {
			return *info.Filename
		}
	}
	return ""
}
