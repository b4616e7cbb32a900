// Package tags embeds metadata into downloaded audio files and probes
// container properties. Tagging is best effort: callers log failures and
// keep the file.
package tags

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	mp4tag "github.com/Sorrow446/go-mp4tag"
	mp4 "github.com/abema/go-mp4"
	"go.uber.org/zap"
)

// Meta is the tag set written after a download completes.
type Meta struct {
	Title    string
	Artist   string
	Album    string
	CoverURL string
}

// Tagger writes metadata into .m4a containers.
type Tagger struct {
	client *http.Client
	log    *zap.Logger
}

func New(client *http.Client, log *zap.Logger) *Tagger {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tagger{client: client, log: log.Named("tags")}
}

// Embed writes the metadata into the file at path. Only .m4a containers
// are supported; other files are left untouched and report success.
func (tg *Tagger) Embed(ctx context.Context, path string, meta Meta) error {
	if !strings.EqualFold(filepath.Ext(path), ".m4a") {
		return nil
	}

	tags := &mp4tag.MP4Tags{
		Title:  meta.Title,
		Artist: meta.Artist,
		Album:  meta.Album,
	}
	if meta.CoverURL != "" {
		cover, err := tg.fetchCover(ctx, meta.CoverURL)
		if err != nil {
			tg.log.Warn("Cover fetch failed, tagging without artwork",
				zap.String("url", meta.CoverURL), zap.Error(err))
		} else {
			tags.Pictures = []*mp4tag.MP4Picture{{Data: cover}}
		}
	}

	mp4t, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer mp4t.Close()

	if err := mp4t.Write(tags, []string{}); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}
	return nil
}

func (tg *Tagger) fetchCover(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := tg.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover request returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Duration probes the playback length of the .m4a container at path.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := mp4.Probe(f)
	if err != nil {
		return 0, fmt.Errorf("probe container: %w", err)
	}
	if info.Timescale == 0 {
		return 0, nil
	}
	return time.Duration(info.Duration) * time.Second / time.Duration(info.Timescale), nil
}
