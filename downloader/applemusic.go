package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/quality"
)

const (
	appleName       = "applemusic"
	appleAPIBaseURL = "https://amp-api.music.apple.com"
	appleWebBaseURL = "https://beta.music.apple.com"
	appleOrigin     = "https://music.apple.com"
	appleUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	appleDefaultStorefront = "us"

	appleCodecALAC    = "alac"
	appleCodecAAC     = "mp4a.40.2"
	appleCodecHEAAC   = "mp4a.40.5"
	appleCodecHEAACv2 = "mp4a.40.29"

	// hi-res ALAC renditions above 192 kHz are spatial mixes the
	// ladder never wants
	appleMaxSampleRate = 192000

	// 128k AAC renditions advertise just under this; anything above
	// belongs to the 256k ladder
	appleStandardBandwidthCap = 160000
)

var (
	appleURLRe     = regexp.MustCompile(`https://music\.apple\.com/(?P<storefront>[a-z]{2})/(?P<type>album|song|playlist)/.*/(?P<id>[0-9a-zA-Z\-.]+)`)
	appleIndexJSRe = regexp.MustCompile(`/assets/index-legacy-[^/]+\.js`)
	appleTokenRe   = regexp.MustCompile(`eyJh[^"]+`)
)

// AppleMusic talks to the amp-api catalog with a bearer token scraped
// from the public web player bundle. Streams come from the enhanced
// HLS manifest attached to each song's extended asset URLs.
type AppleMusic struct {
	client         *http.Client
	log            *zap.Logger
	storefront     string
	mediaUserToken string
	apiBase        string
	webBase        string

	mu    sync.Mutex
	token string
}

func NewAppleMusic(client *http.Client, log *zap.Logger, storefront, mediaUserToken string) *AppleMusic {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	if storefront == "" {
		storefront = appleDefaultStorefront
	}
	return &AppleMusic{
		client:         client,
		log:            log.Named("applemusic"),
		storefront:     storefront,
		mediaUserToken: mediaUserToken,
		apiBase:        appleAPIBaseURL,
		webBase:        appleWebBaseURL,
	}
}

// Name implements Platform
func (a *AppleMusic) Name() string { return appleName }

// ParseURL implements Platform. Album links carrying an ?i= query
// parameter point at a single track inside the album and are parsed
// as songs.
func (a *AppleMusic) ParseURL(raw string) *ParsedURL {
	m := appleURLRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	storefront, urlType, id := m[1], m[2], m[3]

	if urlType == "album" {
		if u, err := url.Parse(raw); err == nil {
			if songID := u.Query().Get("i"); songID != "" {
				urlType, id = "song", songID
			}
		}
	}

	return &ParsedURL{
		Platform: appleName,
		Kind:     Kind(urlType),
		ID:       appleCompositeID(storefront, id),
		RawURL:   raw,
	}
}

// Catalog calls need the storefront alongside the catalog ID, so
// parsed IDs carry both as "storefront/id".
func appleCompositeID(storefront, id string) string {
	return storefront + "/" + id
}

func (a *AppleMusic) splitID(id string) (string, string) {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i], id[i+1:]
	}
	return a.storefront, id
}

type amArtwork struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// resolve substitutes concrete dimensions into the artwork URL template.
func (a amArtwork) resolve() string {
	if a.URL == "" {
		return ""
	}
	w, h := a.Width, a.Height
	if w <= 0 || w > 1200 {
		w = 1200
	}
	if h <= 0 || h > 1200 {
		h = 1200
	}
	out := strings.Replace(a.URL, "{w}", strconv.Itoa(w), 1)
	return strings.Replace(out, "{h}", strconv.Itoa(h), 1)
}

type amSongAttributes struct {
	AlbumName         string            `json:"albumName"`
	ArtistName        string            `json:"artistName"`
	Name              string            `json:"name"`
	TrackNumber       int               `json:"trackNumber"`
	DurationInMillis  int               `json:"durationInMillis"`
	ReleaseDate       string            `json:"releaseDate"`
	ISRC              string            `json:"isrc"`
	Artwork           amArtwork         `json:"artwork"`
	AudioTraits       []string          `json:"audioTraits"`
	ExtendedAssetUrls map[string]string `json:"extendedAssetUrls"`
}

type amSong struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes amSongAttributes `json:"attributes"`
}

func (s amSong) descriptor(storefront string, index int) ItemDescriptor {
	return ItemDescriptor{
		ID:       appleCompositeID(storefront, s.ID),
		Title:    s.Attributes.Name,
		Artist:   s.Attributes.ArtistName,
		Album:    s.Attributes.AlbumName,
		CoverURL: s.Attributes.Artwork.resolve(),
		Index:    index,
	}
}

type amSongResponse struct {
	Data []amSong `json:"data"`
}

type amTracks struct {
	Data []amSong `json:"data"`
	Next string   `json:"next"`
}

type amCollectionAttributes struct {
	Name        string    `json:"name"`
	ArtistName  string    `json:"artistName"`
	CuratorName string    `json:"curatorName"`
	Artwork     amArtwork `json:"artwork"`
}

type amCollection struct {
	ID            string                 `json:"id"`
	Attributes    amCollectionAttributes `json:"attributes"`
	Relationships struct {
		Tracks amTracks `json:"tracks"`
	} `json:"relationships"`
}

type amCollectionResponse struct {
	Data []amCollection `json:"data"`
}

// bearerToken returns the cached web player token, scraping the
// player bundle on first use.
func (a *AppleMusic) bearerToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}

	page, err := a.fetchText(ctx, a.webBase, nil)
	if err != nil {
		return "", err
	}
	jsPath := appleIndexJSRe.FindString(page)
	if jsPath == "" {
		return "", New(ErrUpstream, "web player bundle reference not found")
	}

	bundle, err := a.fetchText(ctx, a.webBase+jsPath, nil)
	if err != nil {
		return "", err
	}
	token := appleTokenRe.FindString(bundle)
	if token == "" {
		return "", New(ErrUpstream, "bearer token not found in web player bundle")
	}

	a.log.Debug("scraped web player token")
	a.token = token
	return token, nil
}

func (a *AppleMusic) fetchText(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", Wrap(ErrInvalidURL, "building request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", classifyTransportErr("apple music request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", New(ErrUpstream, fmt.Sprintf("unexpected status %d from apple music", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportErr("reading apple music response", err)
	}
	return string(body), nil
}

// catalogGet performs an authorized amp-api request and decodes the
// JSON body into out. Catalog paths may be absolute (pagination
// cursors come back as "/v1/catalog/..." references).
func (a *AppleMusic) catalogGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	token, err := a.bearerToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBase+path, nil)
	if err != nil {
		return Wrap(ErrInvalidURL, "building catalog request", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", appleUserAgent)
	req.Header.Set("Origin", appleOrigin)
	if a.mediaUserToken != "" {
		req.Header.Set("Media-User-Token", a.mediaUserToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return classifyTransportErr("catalog request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// scraped tokens age out; drop it so the next call rescrapes
		a.mu.Lock()
		a.token = ""
		a.mu.Unlock()
		return New(ErrAccessDenied, fmt.Sprintf("catalog rejected request with status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return New(ErrUpstream, "catalog entry not found")
	case resp.StatusCode != http.StatusOK:
		return New(ErrUpstream, fmt.Sprintf("unexpected catalog status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Wrap(ErrUpstream, "decoding catalog response", err)
	}
	return nil
}

func (a *AppleMusic) song(ctx context.Context, id string) (*amSong, string, error) {
	storefront, catalogID := a.splitID(id)

	query := url.Values{}
	query.Set("include", "albums")
	query.Set("extend", "extendedAssetUrls")

	var out amSongResponse
	path := fmt.Sprintf("/v1/catalog/%s/songs/%s", storefront, catalogID)
	if err := a.catalogGet(ctx, path, query, &out); err != nil {
		return nil, "", err
	}
	for i := range out.Data {
		if out.Data[i].ID == catalogID {
			return &out.Data[i], storefront, nil
		}
	}
	return nil, "", New(ErrUpstream, "song missing from catalog response")
}

// Track implements Platform
func (a *AppleMusic) Track(ctx context.Context, id string) (*ItemDescriptor, error) {
	song, storefront, err := a.song(ctx, id)
	if err != nil {
		return nil, err
	}
	d := song.descriptor(storefront, 0)
	return &d, nil
}

// Members implements Platform. Long playlists page their track
// relationship; every page is followed so the snapshot is complete.
func (a *AppleMusic) Members(ctx context.Context, kind Kind, id string) (*Collection, error) {
	storefront, catalogID := a.splitID(id)

	var resource string
	switch kind {
	case KindAlbum:
		resource = "albums"
	case KindPlaylist:
		resource = "playlists"
	default:
		return nil, New(ErrUnsupported, fmt.Sprintf("apple music cannot enumerate %q", kind))
	}

	query := url.Values{}
	query.Set("include", "tracks")

	var out amCollectionResponse
	path := fmt.Sprintf("/v1/catalog/%s/%s/%s", storefront, resource, catalogID)
	if err := a.catalogGet(ctx, path, query, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, New(ErrUpstream, "collection missing from catalog response")
	}

	entry := out.Data[0]
	songs := entry.Relationships.Tracks.Data
	next := entry.Relationships.Tracks.Next
	for next != "" {
		var page amTracks
		if err := a.catalogGet(ctx, next, nil, &page); err != nil {
			return nil, err
		}
		songs = append(songs, page.Data...)
		next = page.Next
	}

	items := make([]ItemDescriptor, 0, len(songs))
	for i, s := range songs {
		items = append(items, s.descriptor(storefront, i+1))
	}

	return &Collection{
		Kind:  kind,
		ID:    id,
		Title: entry.Attributes.Name,
		Items: items,
	}, nil
}

// ResolveLocator implements Platform. The locator points at the media
// playlist of the variant matching the tier; a missing manifest or an
// absent codec rung resolves to nil.
func (a *AppleMusic) ResolveLocator(ctx context.Context, itemID string, tier quality.Tier) (*FetchLocator, error) {
	song, _, err := a.song(ctx, itemID)
	if err != nil {
		return nil, err
	}

	masterURL := song.Attributes.ExtendedAssetUrls["enhancedHls"]
	if masterURL == "" {
		a.log.Debug("no streaming manifest for item", zap.String("item", itemID))
		return nil, nil
	}

	master, base, err := a.masterPlaylist(ctx, masterURL)
	if err != nil {
		return nil, err
	}

	variant := appleVariantForTier(master.Variants, tier)
	if variant == nil {
		a.log.Debug("tier not present in master playlist",
			zap.String("item", itemID),
			zap.String("tier", tier.String()))
		return nil, nil
	}

	mediaURL, err := base.Parse(variant.URI)
	if err != nil {
		return nil, Wrap(ErrUpstream, "resolving variant URI", err)
	}

	return &FetchLocator{
		URL:    mediaURL.String(),
		Tier:   tier,
		Format: "m4a",
		Headers: map[string]string{
			"User-Agent": appleUserAgent,
			"Origin":     appleOrigin,
		},
	}, nil
}

func (a *AppleMusic) masterPlaylist(ctx context.Context, rawURL string) (*m3u8.MasterPlaylist, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, Wrap(ErrUpstream, "parsing master playlist URL", err)
	}

	body, err := a.fetchText(ctx, rawURL, map[string]string{
		"User-Agent": appleUserAgent,
		"Origin":     appleOrigin,
	})
	if err != nil {
		return nil, nil, err
	}

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(body), true)
	if err != nil || listType != m3u8.MASTER {
		return nil, nil, New(ErrUpstream, "manifest is not a master playlist")
	}
	return playlist.(*m3u8.MasterPlaylist), base, nil
}

// appleVariantForTier picks the audio rendition for one ladder step,
// scanning variants from highest to lowest bandwidth. A missing rung
// returns nil so the caller can fall through.
func appleVariantForTier(variants []*m3u8.Variant, tier quality.Tier) *m3u8.Variant {
	sorted := make([]*m3u8.Variant, 0, len(variants))
	for _, v := range variants {
		if v != nil {
			sorted = append(sorted, v)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return appleBandwidth(sorted[i]) > appleBandwidth(sorted[j])
	})

	switch tier {
	case quality.TierLossless:
		for _, v := range sorted {
			if v.Codecs == appleCodecALAC && appleSampleRate(v.Audio) <= appleMaxSampleRate {
				return v
			}
		}
	case quality.TierHigh:
		for _, v := range sorted {
			if v.Codecs == appleCodecAAC {
				return v
			}
		}
	case quality.TierStandard:
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].Codecs == appleCodecAAC && appleBandwidth(sorted[i]) <= appleStandardBandwidthCap {
				return sorted[i]
			}
		}
	case quality.TierLow:
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].Codecs == appleCodecHEAAC || sorted[i].Codecs == appleCodecHEAACv2 {
				return sorted[i]
			}
		}
	}
	return nil
}

func appleBandwidth(v *m3u8.Variant) uint32 {
	if v.AverageBandwidth > 0 {
		return v.AverageBandwidth
	}
	return v.Bandwidth
}

// appleSampleRate reads the rate out of an audio group name such as
// "alac-stereo-44100-16". Unknown shapes count as zero.
func appleSampleRate(group string) int {
	parts := strings.Split(group, "-")
	if len(parts) < 2 {
		return 0
	}
	rate, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0
	}
	return rate
}

type appleSegment struct {
	url       string
	byteRange string
}

// appleSegments flattens a media playlist into fetchable pieces, the
// init section first. The returned total is zero when any piece has
// no declared byte range.
func appleSegments(media *m3u8.MediaPlaylist, base *url.URL) ([]appleSegment, int64, error) {
	var (
		segs  []appleSegment
		total int64
		sized = true
	)

	add := func(uri string, offset, limit int64) error {
		u, err := base.Parse(uri)
		if err != nil {
			return Wrap(ErrUpstream, "resolving segment URI", err)
		}
		seg := appleSegment{url: u.String()}
		if limit > 0 {
			seg.byteRange = fmt.Sprintf("bytes=%d-%d", offset, offset+limit-1)
			total += limit
		} else {
			sized = false
		}
		segs = append(segs, seg)
		return nil
	}

	if media.Map != nil && media.Map.URI != "" {
		if err := add(media.Map.URI, media.Map.Offset, media.Map.Limit); err != nil {
			return nil, 0, err
		}
	}
	for _, s := range media.Segments {
		if s == nil {
			continue
		}
		if err := add(s.URI, s.Offset, s.Limit); err != nil {
			return nil, 0, err
		}
	}

	if len(segs) == 0 {
		return nil, 0, New(ErrUpstream, "media playlist has no segments")
	}
	if !sized {
		total = 0
	}
	return segs, total, nil
}

// Fetch implements Platform. Segments append into a single file in
// playlist order.
func (a *AppleMusic) Fetch(ctx context.Context, item ItemDescriptor, loc *FetchLocator, destDir string, sink progress.Sink) (*Outcome, error) {
	if err := ensureDir(destDir); err != nil {
		return nil, err
	}

	media, base, err := a.mediaPlaylist(ctx, loc)
	if err != nil {
		return nil, err
	}
	segs, total, err := appleSegments(media, base)
	if err != nil {
		return nil, err
	}

	destPath := destinationPath(destDir, item, loc.Format)
	if size, ok := existingFile(destPath, total); ok {
		a.log.Info("file already downloaded, skipping",
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

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, Wrap(ErrFilesystem, "creating destination file", err)
	}
	defer out.Close()

	m := newMeter(sink, item.Label(), item.Index, total)
	var written int64
	for _, seg := range segs {
		headers := make(map[string]string, len(loc.Headers)+1)
		for k, v := range loc.Headers {
			headers[k] = v
		}
		if seg.byteRange != "" {
			headers["Range"] = seg.byteRange
		}

		n, fetchErr := fetchToWriter(ctx, a.client, seg.url, headers, out, m)
		written += n
		if fetchErr != nil {
			out.Close()
			os.Remove(destPath)
			return nil, fetchErr
		}
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

func (a *AppleMusic) mediaPlaylist(ctx context.Context, loc *FetchLocator) (*m3u8.MediaPlaylist, *url.URL, error) {
	base, err := url.Parse(loc.URL)
	if err != nil {
		return nil, nil, Wrap(ErrUpstream, "parsing media playlist URL", err)
	}

	body, err := a.fetchText(ctx, loc.URL, loc.Headers)
	if err != nil {
		return nil, nil, err
	}

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(body), true)
	if err != nil || listType != m3u8.MEDIA {
		return nil, nil, New(ErrUpstream, "manifest is not a media playlist")
	}
	return playlist.(*m3u8.MediaPlaylist), base, nil
}
