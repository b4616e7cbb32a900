package store

import "time"

// Logical track states derived from the downloaded flag and fail_reason.
const (
	StatePending    = "pending"
	StateFailed     = "failed"
	StateDownloaded = "downloaded"
)

// Subscription is a remotely hosted collection (album or playlist) the bot
// keeps in sync. One row per platform+collection pair.
type Subscription struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform     string `gorm:"column:platform;uniqueIndex:idx_platform_collection;not null" json:"platform"`
	CollectionID string `gorm:"column:collection_id;uniqueIndex:idx_platform_collection;not null" json:"collection_id"`
	Kind         string `gorm:"column:kind;not null" json:"kind"` // album / playlist
	DisplayName  string `gorm:"column:display_name" json:"display_name"`
	SourceURL    string `gorm:"column:source_url" json:"source_url"`
	ChatID       int64  `gorm:"column:chat_id;index" json:"chat_id"`

	AutoSync      bool `gorm:"column:auto_sync" json:"auto_sync"`
	CheckInterval int  `gorm:"column:check_interval" json:"check_interval"` // seconds
	Enabled       bool `gorm:"column:enabled" json:"enabled"`

	LastCheckAt     *time.Time `gorm:"column:last_check_at" json:"last_check_at"`
	LastItemCount   int        `gorm:"column:last_item_count;default:0" json:"last_item_count"`
	TotalDownloaded int        `gorm:"column:total_downloaded;default:0" json:"total_downloaded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Subscription) TableName() string {
	return "subscriptions"
}

// Track is one item's ledger row under a subscription. A track stays pending
// until it downloads or fails; a failed track returns to pending only through
// an explicit retry.
type Track struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SubscriptionID uint   `gorm:"column:subscription_id;uniqueIndex:idx_sub_item;not null" json:"subscription_id"`
	ItemID         string `gorm:"column:item_id;uniqueIndex:idx_sub_item;not null" json:"item_id"`

	Title  string `gorm:"column:title" json:"title"`
	Artist string `gorm:"column:artist" json:"artist"`
	Album  string `gorm:"column:album" json:"album"`

	Downloaded   bool       `gorm:"column:downloaded;index" json:"downloaded"`
	DownloadedAt *time.Time `gorm:"column:downloaded_at" json:"downloaded_at"`
	FailReason   string     `gorm:"column:fail_reason" json:"fail_reason"`
	FailAt       *time.Time `gorm:"column:fail_at" json:"fail_at"`
	RetryCount   int        `gorm:"column:retry_count;default:0" json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Track) TableName() string {
	return "tracks"
}

// State reports the logical state of the track.
func (t *Track) State() string {
	switch {
	case t.Downloaded:
		return StateDownloaded
	case t.FailReason != "":
		return StateFailed
	default:
		return StatePending
	}
}

// HistoryEntry is one completed one-shot download. It answers /status and
// lets repeated links skip content that is already on disk.
type HistoryEntry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform  string `gorm:"column:platform;uniqueIndex:idx_platform_content;not null" json:"platform"`
	ContentID string `gorm:"column:content_id;uniqueIndex:idx_platform_content;not null" json:"content_id"`
	Kind      string `gorm:"column:kind" json:"kind"`

	Title        string `gorm:"column:title" json:"title"`
	Artist       string `gorm:"column:artist" json:"artist"`
	FilePath     string `gorm:"column:file_path" json:"file_path"`
	SizeBytes    int64  `gorm:"column:size_bytes;default:0" json:"size_bytes"`
	DurationSecs int    `gorm:"column:duration_secs;default:0" json:"duration_secs"`
	TierUsed     string `gorm:"column:tier_used" json:"tier_used"`
	ChatID       int64  `gorm:"column:chat_id" json:"chat_id"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (HistoryEntry) TableName() string {
	return "download_history"
}
