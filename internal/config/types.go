package config

// Config is the on-disk configuration (JSON or YAML).
//
// Channels, storage, scheduler, fetch and delivery are read once at startup.
// Only the logging section is applied on hot reload.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Channels  []ChannelConfig `json:"channels"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Fetch     FetchConfig     `json:"fetch"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	// Token is normally supplied via TELEGRAM_TOKEN; the env value wins.
	Token string `json:"token,omitempty"`
	// GroupLog is the chat id that receives log lines when logging.telegram is enabled.
	GroupLog string `json:"group_log,omitempty"`
	// APIURL overrides the Bot API endpoint (self-hosted bot API server).
	APIURL string `json:"api_url,omitempty"`
}

// ChannelConfig maps one destination chat to its ordered sources.
// Earlier sources take precedence.
//
// Example:
//
//	channels:
//	  - id: -4723752995
//	    name: cats
//	    sources:
//	      - https://www.reddit.com/r/cat/.json
//	      - feed:https://example.org/cats.rss
type ChannelConfig struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name,omitempty"`
	Sources []string `json:"sources"`
}

// SchedulerConfig controls how often a delivery cycle runs.
//
// Schedule accepts an interval ("10m", "every:10m", "00:10") or a cron
// expression ("*/10 * * * *", "@hourly"). WAIT_TIME (minutes) overrides it.
type SchedulerConfig struct {
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// RunOnStart runs one cycle immediately at startup. Defaults to true.
	RunOnStart *bool `json:"run_on_start,omitempty"`
}

// FetchConfig controls listing retrieval. Durations are Go duration strings.
type FetchConfig struct {
	Timeout    string `json:"timeout,omitempty"`    // default "15s"
	UserAgent  string `json:"user_agent,omitempty"` // default "petitchat/1.0 (telegram-bot)"
	// RatePerSec paces requests across all sources: 0 means the default of
	// 1, a negative value disables pacing.
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// Limit is appended as ?limit=N to reddit listings when > 0.
	Limit int `json:"limit,omitempty"`
}

type DeliveryConfig struct {
	SendTimeout    string `json:"send_timeout,omitempty"` // default "30s"
	CaptionLimit   int    `json:"caption_limit,omitempty"`
	DefaultCaption string `json:"default_caption,omitempty"`
}

// StorageConfig selects the ledger backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./sent_photos.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
