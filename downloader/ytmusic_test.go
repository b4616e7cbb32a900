package downloader

import (
	"context"
	"testing"

	"github.com/lrstanley/go-ytdlp"

	"tunesync/quality"
)

func strPtr(s string) *string { return &s }

func TestYTMusicParseURL(t *testing.T) {
	y := NewYTMusic(nil, "")

	testCases := []struct {
		name         string
		inputURL     string
		expectedKind Kind
		expectedID   string
	}{
		{
			name:         "music watch URL",
			inputURL:     "https://music.youtube.com/watch?v=dQw4w9WgXcQ",
			expectedKind: KindSong,
			expectedID:   "dQw4w9WgXcQ",
		},
		{
			name:         "plain youtube watch URL",
			inputURL:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			expectedKind: KindSong,
			expectedID:   "dQw4w9WgXcQ",
		},
		{
			name:         "short link",
			inputURL:     "https://youtu.be/dQw4w9WgXcQ",
			expectedKind: KindSong,
			expectedID:   "dQw4w9WgXcQ",
		},
		{
			name:         "playlist URL",
			inputURL:     "https://music.youtube.com/playlist?list=PLabc123",
			expectedKind: KindPlaylist,
			expectedID:   "PLabc123",
		},
		{
			name:         "watch URL inside a playlist is the playlist",
			inputURL:     "https://music.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc123",
			expectedKind: KindPlaylist,
			expectedID:   "PLabc123",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := y.ParseURL(tc.inputURL)
			if parsed == nil {
				t.Fatalf("Expected a match for %q", tc.inputURL)
			}
			if parsed.Platform != "ytmusic" {
				t.Errorf("Expected platform ytmusic, got %q", parsed.Platform)
			}
			if parsed.Kind != tc.expectedKind {
				t.Errorf("Expected kind %q, got %q", tc.expectedKind, parsed.Kind)
			}
			if parsed.ID != tc.expectedID {
				t.Errorf("Expected ID %q, got %q", tc.expectedID, parsed.ID)
			}
		})
	}
}

func TestYTMusicParseURLRejects(t *testing.T) {
	y := NewYTMusic(nil, "")

	for _, raw := range []string{
		"",
		"https://vimeo.com/12345",
		"https://music.163.com/song?id=347230",
		"https://youtube.com/@somechannel",
	} {
		if parsed := y.ParseURL(raw); parsed != nil {
			t.Errorf("Expected nil for %q, got %+v", raw, parsed)
		}
	}
}

func TestYTFormatForTier(t *testing.T) {
	testCases := []struct {
		tier     quality.Tier
		expected string
	}{
		{quality.TierHigh, "bestaudio[abr>=160]/bestaudio"},
		{quality.TierStandard, "bestaudio[ext=m4a]/bestaudio"},
		{quality.TierLow, "worstaudio"},
	}

	for _, tc := range testCases {
		if got := ytFormatForTier(tc.tier); got != tc.expected {
			t.Errorf("Tier %v: expected %q, got %q", tc.tier, tc.expected, got)
		}
	}
}

func TestYTMusicResolveLocator(t *testing.T) {
	y := NewYTMusic(nil, "")

	loc, err := y.ResolveLocator(context.Background(), "dQw4w9WgXcQ", quality.TierLossless)
	if err != nil {
		t.Fatalf("Expected lossless absence to be a normal outcome, got %v", err)
	}
	if loc != nil {
		t.Errorf("Expected nil locator for lossless, got %+v", loc)
	}

	loc, err = y.ResolveLocator(context.Background(), "dQw4w9WgXcQ", quality.TierStandard)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if loc == nil {
		t.Fatal("Expected a locator")
	}
	if loc.URL != "https://music.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("Expected canonical watch URL, got %q", loc.URL)
	}
	if loc.Tier != quality.TierStandard {
		t.Errorf("Expected tier preserved, got %v", loc.Tier)
	}
}

func TestYTMusicMembersRejectsSongKind(t *testing.T) {
	y := NewYTMusic(nil, "")
	_, err := y.Members(context.Background(), KindSong, "dQw4w9WgXcQ")
	if !IsKind(err, ErrUnsupported) {
		t.Errorf("Expected unsupported, got %v", err)
	}
}

func TestYTDescriptor(t *testing.T) {
	testCases := []struct {
		name           string
		info           *ytdlp.ExtractedInfo
		expectedArtist string
		expectedTitle  string
	}{
		{
			name: "artist field preferred",
			info: &ytdlp.ExtractedInfo{
				ID:       "abc",
				Title:    strPtr("Song"),
				Artist:   strPtr("Real Artist"),
				Uploader: strPtr("Some Channel"),
			},
			expectedArtist: "Real Artist",
			expectedTitle:  "Song",
		},
		{
			name: "uploader fallback strips topic suffix",
			info: &ytdlp.ExtractedInfo{
				ID:       "abc",
				Title:    strPtr("Song"),
				Uploader: strPtr("Rick Astley - Topic"),
			},
			expectedArtist: "Rick Astley",
			expectedTitle:  "Song",
		},
		{
			name: "nothing known",
			info: &ytdlp.ExtractedInfo{
				ID: "abc",
			},
			expectedArtist: "",
			expectedTitle:  "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := ytDescriptor(tc.info, 3)
			if d.Artist != tc.expectedArtist {
				t.Errorf("Expected artist %q, got %q", tc.expectedArtist, d.Artist)
			}
			if d.Title != tc.expectedTitle {
				t.Errorf("Expected title %q, got %q", tc.expectedTitle, d.Title)
			}
			if d.ID != "abc" || d.Index != 3 {
				t.Errorf("Unexpected descriptor %+v", d)
			}
		})
	}
}
