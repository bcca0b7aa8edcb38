package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingToken is returned when no bot token is configured in the file or the environment.
var ErrMissingToken = errors.New("telegram token is required (set TELEGRAM_TOKEN)")

// Validate checks the static parts of the configuration. Duration and
// schedule strings are checked where they are mapped.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if len(cfg.Channels) == 0 {
		return errors.New("channels: at least one channel is required")
	}
	seen := make(map[int64]struct{}, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.ID == 0 {
			return fmt.Errorf("channels[%d].id is required", i)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("channels[%d]: duplicate id %d", i, ch.ID)
		}
		seen[ch.ID] = struct{}{}
		if len(ch.Sources) == 0 {
			return fmt.Errorf("channels[%d] (%d): at least one source is required", i, ch.ID)
		}
		for j, src := range ch.Sources {
			if strings.TrimSpace(src) == "" {
				return fmt.Errorf("channels[%d].sources[%d] is empty", i, j)
			}
		}
	}
	if cfg.Fetch.Limit < 0 {
		return errors.New("fetch.limit must be >= 0")
	}
	if cfg.Delivery.CaptionLimit < 0 {
		return errors.New("delivery.caption_limit must be >= 0")
	}
	if _, err := ParseDurationField("fetch.timeout", cfg.Fetch.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("delivery.send_timeout", cfg.Delivery.SendTimeout); err != nil {
		return err
	}
	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// ChannelIDs returns the configured destination ids in config order.
func (c *Config) ChannelIDs() []int64 {
	if c == nil {
		return nil
	}
	ids := make([]int64, 0, len(c.Channels))
	for _, ch := range c.Channels {
		ids = append(ids, ch.ID)
	}
	return ids
}
