// Package downloader defines the capability contract every music platform
// implements, the quality-fallback fetch driver, and the platform
// implementations themselves.
package downloader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tunesync/progress"
	"tunesync/quality"
)

// Kind of content a platform URL points at
type Kind string

const (
	KindSong     Kind = "song"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
)

// ParsedURL is the result of a successful URL match
type ParsedURL struct {
	Platform string
	Kind     Kind
	ID       string
	RawURL   string
}

// ItemDescriptor is one downloadable item as enumerated by a platform
type ItemDescriptor struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	CoverURL string // artwork location, empty when the platform has none
	Index    int    // 1-based position within its collection, 0 for singles
}

// Label returns the display name used in progress messages and filenames
func (d ItemDescriptor) Label() string {
	if d.Artist == "" {
		return d.Title
	}
	return fmt.Sprintf("%s - %s", d.Artist, d.Title)
}

// Collection is a full ordered snapshot of an album or playlist. Ordering
// is stable across calls absent actual upstream change.
type Collection struct {
	Kind  Kind
	ID    string
	Title string
	Items []ItemDescriptor
}

// FetchLocator carries the platform-specific parameters to fetch one item
// at one tier: a direct media URL for HTTP platforms, or a format selector
// for extractor-based ones.
type FetchLocator struct {
	URL       string
	Tier      quality.Tier
	Format    string // container extension or extractor format expression
	Headers   map[string]string
	SizeBytes int64 // 0 when unknown
}

// Outcome is the success result of one item fetch
type Outcome struct {
	ItemID    string
	Title     string
	Artist    string
	Album     string
	FilePath  string
	SizeBytes int64
	TierUsed  quality.Tier
	Skipped   bool // an identical file was already on disk
}

// BatchKind maps a content kind onto the progress template family
func BatchKind(k Kind) progress.BatchKind {
	switch k {
	case KindAlbum:
		return progress.BatchAlbum
	case KindPlaylist:
		return progress.BatchPlaylist
	default:
		return progress.BatchSingle
	}
}

// Platform is the capability contract implemented once per music service.
// A platform that cannot serve an operation returns ErrUnsupported rather
// than omitting the method.
type Platform interface {
	// Name returns the stable platform identifier used in the ledger
	Name() string

	// ParseURL matches raw against the platform's URL shapes. It is pure:
	// nil means "not one of mine", never an error.
	ParseURL(raw string) *ParsedURL

	// Track fetches the descriptor of a single item
	Track(ctx context.Context, id string) (*ItemDescriptor, error)

	// Members enumerates a collection as a full ordered snapshot
	Members(ctx context.Context, kind Kind, id string) (*Collection, error)

	// ResolveLocator maps an item to concrete fetch parameters at one tier.
	// (nil, nil) means the item exists but this tier is unavailable, which
	// is a normal outcome, not a fault.
	ResolveLocator(ctx context.Context, itemID string, tier quality.Tier) (*FetchLocator, error)

	// Fetch streams the located content into destDir, emitting monotonically
	// non-decreasing byte counts to sink. Safe to call repeatedly for the
	// same item: an existing identical file is skipped.
	Fetch(ctx context.Context, item ItemDescriptor, loc *FetchLocator, destDir string, sink progress.Sink) (*Outcome, error)
}

// FetchItem downloads one item at the best available tier at or below the
// requested one. Tiers are tried in strictly descending order; the first
// non-nil locator wins and the tier actually used is surfaced on the
// outcome. Exhausting every tier is the terminal ErrTierUnavailable.
//
// A transport fault while resolving fails the item immediately: degrading
// on network errors would mask outages and hammer a flaky upstream.
func FetchItem(ctx context.Context, p Platform, item ItemDescriptor, destDir string, requested quality.Tier, sink progress.Sink, log *zap.Logger) (*Outcome, error) {
	if log == nil {
		log = zap.NewNop()
	}

	for _, tier := range quality.Degrade(requested) {
		loc, err := p.ResolveLocator(ctx, item.ID, tier)
		if err != nil {
			return nil, err
		}
		if loc == nil {
			log.Debug("tier unavailable",
				zap.String("platform", p.Name()),
				zap.String("item", item.ID),
				zap.String("tier", tier.String()))
			continue
		}

		if tier != requested {
			log.Info("quality degraded",
				zap.String("platform", p.Name()),
				zap.String("item", item.ID),
				zap.String("requested", requested.String()),
				zap.String("using", tier.String()))
		}

		outcome, err := p.Fetch(ctx, item, loc, destDir, sink)
		if err != nil {
			return nil, err
		}
		outcome.TierUsed = loc.Tier
		return outcome, nil
	}

	return nil, New(ErrTierUnavailable, msgNoPlayableTier).
		WithContext("platform", p.Name()).
		WithContext("item", item.ID)
}
