package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/quality"
)

const (
	neteaseName     = "netease"
	neteaseBaseURL  = "https://music.163.com"
	neteaseShortURL = "https://163cn.tv"

	neteaseUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var (
	neteaseSongRe     = regexp.MustCompile(`music\.163\.com/(?:#/)?(?:m/)?song(?:\?id=|/)(\d+)`)
	neteaseAlbumRe    = regexp.MustCompile(`music\.163\.com/(?:#/)?(?:m/)?album(?:\?id=|/)(\d+)`)
	neteasePlaylistRe = regexp.MustCompile(`music\.163\.com/(?:#/)?(?:m/)?playlist(?:\?id=|/)(\d+)`)
	neteaseShortRe    = regexp.MustCompile(`163cn\.tv/([a-zA-Z0-9]+)`)
)

// NetEase talks to the NetEase Cloud Music weapi endpoints
type NetEase struct {
	client   *http.Client
	log      *zap.Logger
	cookie   string // optional account cookie unlocking gated tiers
	baseURL  string
	shortURL string
}

// NewNetEase creates the NetEase platform client. cookie may be empty;
// without it entitlement-gated tiers resolve as unavailable.
func NewNetEase(client *http.Client, cookie string, log *zap.Logger) *NetEase {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NetEase{
		client:   client,
		log:      log.Named(neteaseName),
		cookie:   cookie,
		baseURL:  neteaseBaseURL,
		shortURL: neteaseShortURL,
	}
}

// Name implements Platform
func (n *NetEase) Name() string { return neteaseName }

// ParseURL implements Platform. Mobile share short links (163cn.tv) parse
// as songs carrying the slug; Track resolves the slug to the real id.
func (n *NetEase) ParseURL(raw string) *ParsedURL {
	if m := neteaseShortRe.FindStringSubmatch(raw); m != nil {
		return &ParsedURL{Platform: neteaseName, Kind: KindSong, ID: m[1], RawURL: raw}
	}
	if !strings.Contains(strings.ToLower(raw), "music.163.com") {
		return nil
	}
	for kind, re := range map[Kind]*regexp.Regexp{
		KindSong:     neteaseSongRe,
		KindAlbum:    neteaseAlbumRe,
		KindPlaylist: neteasePlaylistRe,
	} {
		if m := re.FindStringSubmatch(raw); m != nil {
			return &ParsedURL{Platform: neteaseName, Kind: kind, ID: m[1], RawURL: raw}
		}
	}
	return nil
}

// neteaseLevel maps a canonical tier to the weapi level parameter
func neteaseLevel(t quality.Tier) string {
	switch t {
	case quality.TierLossless:
		return "lossless"
	case quality.TierHigh:
		return "exhigh"
	case quality.TierStandard:
		return "higher"
	default:
		return "standard"
	}
}

type neArtist struct {
	Name string `json:"name"`
}

type neAlbumRef struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	PicURL string `json:"picUrl"`
}

type neSong struct {
	ID   int64      `json:"id"`
	Name string     `json:"name"`
	Ar   []neArtist `json:"ar"`
	Al   neAlbumRef `json:"al"`
	Dt   int64      `json:"dt"`
}

func (s neSong) descriptor(index int) ItemDescriptor {
	names := make([]string, 0, len(s.Ar))
	for _, a := range s.Ar {
		names = append(names, a.Name)
	}
	return ItemDescriptor{
		ID:       strconv.FormatInt(s.ID, 10),
		Title:    s.Name,
		Artist:   strings.Join(names, "/"),
		Album:    s.Al.Name,
		CoverURL: s.Al.PicURL,
		Index:    index,
	}
}

type neSongDetailResponse struct {
	Code  int      `json:"code"`
	Songs []neSong `json:"songs"`
}

type nePlayerURL struct {
	ID    int64  `json:"id"`
	URL   string `json:"url"`
	Size  int64  `json:"size"`
	Type  string `json:"type"`
	Level string `json:"level"`
	Br    int    `json:"br"`
	Code  int    `json:"code"`
}

type nePlayerURLResponse struct {
	Code int           `json:"code"`
	Data []nePlayerURL `json:"data"`
}

type neTrackID struct {
	ID int64 `json:"id"`
}

type nePlaylistResponse struct {
	Code     int `json:"code"`
	Playlist struct {
		Name     string      `json:"name"`
		Tracks   []neSong    `json:"tracks"`
		TrackIds []neTrackID `json:"trackIds"`
	} `json:"playlist"`
}

type neAlbumResponse struct {
	Code  int `json:"code"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	Songs []neSong `json:"songs"`
}

// weapiPost performs one encrypted weapi call and decodes the response
func (n *NetEase) weapiPost(ctx context.Context, path string, payload interface{}, out interface{}) error {
	form, err := weapiEncrypt(payload)
	if err != nil {
		return Wrap(ErrUnknown, "encrypting weapi request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return Wrap(ErrInvalidURL, "building weapi request", err)
	}
	req.Header.Set("User-Agent", neteaseUserAgent)
	req.Header.Set("Referer", "https://music.163.com/")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if n.cookie != "" {
		req.Header.Set("Cookie", n.cookie)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return classifyTransportErr("weapi request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return New(ErrUpstream, fmt.Sprintf("weapi %s returned status %d", path, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Wrap(ErrUpstream, "decoding weapi response", err)
	}
	return nil
}

// Track implements Platform
func (n *NetEase) Track(ctx context.Context, id string) (*ItemDescriptor, error) {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		resolved, err := n.resolveShortLink(ctx, id)
		if err != nil {
			return nil, err
		}
		id = resolved
	}

	songs, err := n.songDetails(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, New(ErrUpstream, "song not found").WithContext("item", id)
	}
	d := songs[0].descriptor(0)
	return &d, nil
}

// resolveShortLink follows the 163cn.tv redirect chain with a HEAD request
// and extracts the song id from the destination URL.
func (n *NetEase) resolveShortLink(ctx context.Context, slug string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.shortURL+"/"+slug, nil)
	if err != nil {
		return "", Wrap(ErrInvalidURL, "building short link request", err)
	}
	req.Header.Set("User-Agent", neteaseUserAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", classifyTransportErr("resolving short link", err)
	}
	resp.Body.Close()

	final := resp.Request.URL.String()
	m := neteaseSongRe.FindStringSubmatch(final)
	if m == nil {
		return "", New(ErrInvalidURL, "short link does not point at a song").WithContext("url", final)
	}
	n.log.Debug("short link resolved",
		zap.String("slug", slug),
		zap.String("song", m[1]))
	return m[1], nil
}

func (n *NetEase) songDetails(ctx context.Context, ids []string) ([]neSong, error) {
	type idRef struct {
		ID int64 `json:"id"`
	}
	refs := make([]idRef, 0, len(ids))
	for _, id := range ids {
		v, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, New(ErrInvalidURL, "song id is not numeric").WithContext("item", id)
		}
		refs = append(refs, idRef{ID: v})
	}

	c, err := json.Marshal(refs)
	if err != nil {
		return nil, Wrap(ErrUnknown, "encoding song detail request", err)
	}

	var out neSongDetailResponse
	payload := map[string]string{"c": string(c)}
	if err := n.weapiPost(ctx, "/weapi/v3/song/detail", payload, &out); err != nil {
		return nil, err
	}
	if out.Code != 200 {
		return nil, New(ErrUpstream, fmt.Sprintf("song detail returned code %d", out.Code))
	}
	return out.Songs, nil
}

// Members implements Platform
func (n *NetEase) Members(ctx context.Context, kind Kind, id string) (*Collection, error) {
	switch kind {
	case KindAlbum:
		return n.albumMembers(ctx, id)
	case KindPlaylist:
		return n.playlistMembers(ctx, id)
	default:
		return nil, New(ErrUnsupported, fmt.Sprintf("netease cannot enumerate %q as a collection", kind))
	}
}

func (n *NetEase) albumMembers(ctx context.Context, id string) (*Collection, error) {
	var out neAlbumResponse
	payload := map[string]string{"csrf_token": ""}
	if err := n.weapiPost(ctx, "/weapi/v1/album/"+id, payload, &out); err != nil {
		return nil, err
	}
	if out.Code != 200 {
		return nil, New(ErrUpstream, fmt.Sprintf("album detail returned code %d", out.Code))
	}

	col := &Collection{Kind: KindAlbum, ID: id, Title: out.Album.Name}
	for i, s := range out.Songs {
		d := s.descriptor(i + 1)
		if d.Album == "" {
			d.Album = out.Album.Name
		}
		col.Items = append(col.Items, d)
	}
	return col, nil
}

func (n *NetEase) playlistMembers(ctx context.Context, id string) (*Collection, error) {
	var out nePlaylistResponse
	payload := map[string]interface{}{"id": id, "n": 1000, "csrf_token": ""}
	if err := n.weapiPost(ctx, "/weapi/v6/playlist/detail", payload, &out); err != nil {
		return nil, err
	}
	if out.Code != 200 {
		return nil, New(ErrUpstream, fmt.Sprintf("playlist detail returned code %d", out.Code))
	}

	col := &Collection{Kind: KindPlaylist, ID: id, Title: out.Playlist.Name}

	tracks := out.Playlist.Tracks
	if len(out.Playlist.TrackIds) > len(tracks) {
		// large playlists truncate the track list; the id list is always
		// complete, so hydrate it via song detail
		ids := make([]string, 0, len(out.Playlist.TrackIds))
		for _, t := range out.Playlist.TrackIds {
			ids = append(ids, strconv.FormatInt(t.ID, 10))
		}
		hydrated, err := n.songDetails(ctx, ids)
		if err != nil {
			return nil, err
		}
		tracks = hydrated
	}

	for i, s := range tracks {
		col.Items = append(col.Items, s.descriptor(i+1))
	}
	return col, nil
}

// ResolveLocator implements Platform. A null URL in the player-url
// response means the tier is gated (VIP content) and resolves as
// unavailable rather than as an error.
func (n *NetEase) ResolveLocator(ctx context.Context, itemID string, tier quality.Tier) (*FetchLocator, error) {
	id, err := strconv.ParseInt(itemID, 10, 64)
	if err != nil {
		return nil, New(ErrInvalidURL, "song id is not numeric").WithContext("item", itemID)
	}

	payload := map[string]interface{}{
		"ids":        []int64{id},
		"level":      neteaseLevel(tier),
		"encodeType": "flac",
		"csrf_token": "",
	}

	var out nePlayerURLResponse
	if err := n.weapiPost(ctx, "/weapi/song/enhance/player/url/v1", payload, &out); err != nil {
		return nil, err
	}
	if out.Code != 200 || len(out.Data) == 0 {
		return nil, New(ErrUpstream, fmt.Sprintf("player url returned code %d", out.Code))
	}

	data := out.Data[0]
	if data.URL == "" {
		n.log.Debug("no url at tier, likely entitlement-gated",
			zap.String("item", itemID),
			zap.String("level", neteaseLevel(tier)),
			zap.Int("code", data.Code))
		return nil, nil
	}

	format := data.Type
	if format == "" {
		format = "mp3"
	}
	return &FetchLocator{
		URL:       data.URL,
		Tier:      tier,
		Format:    strings.ToLower(format),
		SizeBytes: data.Size,
		Headers: map[string]string{
			"User-Agent": neteaseUserAgent,
			"Referer":    "https://music.163.com/",
		},
	}, nil
}

// Fetch implements Platform
func (n *NetEase) Fetch(ctx context.Context, item ItemDescriptor, loc *FetchLocator, destDir string, sink progress.Sink) (*Outcome, error) {
	if err := ensureDir(destDir); err != nil {
		return nil, err
	}

	destPath := destinationPath(destDir, item, loc.Format)
	if size, ok := existingFile(destPath, loc.SizeBytes); ok {
		n.log.Info("file already downloaded, skipping",
			zap.String("path", destPath))
		return &Outcome{
			ItemID:    item.ID,
			Title:     item.Title,
			Artist:    item.Artist,
			Album:     item.Album,
			FilePath:  destPath,
			SizeBytes: size,
			Skipped:   true,
		}, nil
	}

	m := newMeter(sink, item.Label(), item.Index, loc.SizeBytes)
	written, err := downloadToFile(ctx, n.client, loc, destPath, m)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		ItemID:    item.ID,
		Title:     item.Title,
		Artist:    item.Artist,
		Album:     item.Album,
		FilePath:  destPath,
		SizeBytes: written,
	}, nil
}
