package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tunesync/quality"
)

// Config holds every runtime setting. It is loaded once in main and passed
// down explicitly; no package reads the environment after startup.
type Config struct {
	Token   string // Telegram bot token
	APIID   int    // Telegram API ID
	APIHash string // Telegram API hash

	LogLevel string // debug, info, warn, error

	DownloadDir   string // destination root for fetched audio
	DBPath        string // ledger sqlite path
	SessionDBPath string // gotgproto session sqlite path

	Quality           quality.Tier  // requested tier, top of the fallback ladder
	ProgressInterval  time.Duration // minimum delay between progress edits
	SyncCheckInterval int           // default per-subscription interval, seconds
	ItemPacing        time.Duration // sleep between batch items
	HTTPTimeout       time.Duration // per-request timeout

	AllowedUsers []int64 // empty admits everyone

	NeteaseCookie       string // optional MUSIC_U cookie unlocking gated tiers
	AppleStorefront     string // default storefront for bare catalog IDs
	AppleMediaUserToken string // optional entitlement token
	YTMusicCookieFile   string // optional cookies.txt for age-gated content
}

// LoadConfig loads and validates the configuration from environment
// variables, reading a .env file first when one exists.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	validator := NewEnvValidator()
	if err := validator.ValidateRequired(); err != nil {
		return nil, fmt.Errorf("environment validation failed: %w", err)
	}

	apiID, apiHash, err := validator.GetAPICredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to get API credentials: %w", err)
	}

	tier, err := quality.Parse(validator.String("QUALITY", "lossless"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUALITY: %w", err)
	}

	progressInterval, err := validator.Duration("PROGRESS_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	itemPacing, err := validator.Duration("ITEM_PACING", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := validator.Duration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	syncInterval, err := validator.Int("SYNC_CHECK_INTERVAL", 3600)
	if err != nil {
		return nil, err
	}
	allowedUsers, err := validator.UserIDs("ALLOWED_USERS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Token:   validator.GetBotToken(),
		APIID:   apiID,
		APIHash: apiHash,

		LogLevel: strings.ToLower(validator.String("LOG_LEVEL", "info")),

		DownloadDir:   validator.String("DOWNLOAD_DIR", "./downloads"),
		DBPath:        validator.String("DB_PATH", "./tunesync.db"),
		SessionDBPath: validator.String("SESSION_DB_PATH", "./session.db"),

		Quality:           tier,
		ProgressInterval:  progressInterval,
		SyncCheckInterval: syncInterval,
		ItemPacing:        itemPacing,
		HTTPTimeout:       httpTimeout,

		AllowedUsers: allowedUsers,

		NeteaseCookie:       os.Getenv("NETEASE_COOKIE"),
		AppleStorefront:     validator.String("APPLE_STOREFRONT", "us"),
		AppleMediaUserToken: os.Getenv("APPLE_MEDIA_USER_TOKEN"),
		YTMusicCookieFile:   os.Getenv("YTMUSIC_COOKIE_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs structural validation on the loaded configuration.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("bot token cannot be empty")
	}
	if c.APIID <= 0 {
		return fmt.Errorf("API ID must be a positive integer, got: %d", c.APIID)
	}
	if c.APIHash == "" {
		return fmt.Errorf("API hash cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s. Valid levels are: debug, info, warn, error", c.LogLevel)
	}

	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got: %v", c.ProgressInterval)
	}
	if c.SyncCheckInterval <= 0 {
		return fmt.Errorf("sync check interval must be positive seconds, got: %d", c.SyncCheckInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got: %v", c.HTTPTimeout)
	}
	if c.ItemPacing < 0 {
		return fmt.Errorf("item pacing cannot be negative, got: %v", c.ItemPacing)
	}
	return nil
}

// UserAllowed reports whether the allowlist admits the user. An empty
// allowlist admits everyone.
func (c *Config) UserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
