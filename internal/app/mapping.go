package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"petitchat/internal/config"
	"petitchat/internal/delivery"
	"petitchat/internal/scheduler"
	"petitchat/internal/source"
	"petitchat/internal/storage"
	logx "petitchat/pkg/logx"
)

const defaultSchedule = "10m"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// parseChatID accepts a decimal chat id; blank or malformed means "no target".
func parseChatID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: storage.DefaultPath}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = storage.DefaultPath
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapFetchOptions(cfg *config.Config) (source.Options, time.Duration, error) {
	timeout, err := config.ParseDurationOrDefault("fetch.timeout", cfg.Fetch.Timeout, 15*time.Second)
	if err != nil {
		return source.Options{}, 0, err
	}
	// source.Options treats <= 0 as unlimited, so only 0 takes the default.
	rps := cfg.Fetch.RatePerSec
	if rps == 0 {
		rps = 1
	}
	return source.Options{
		UserAgent:  cfg.Fetch.UserAgent,
		Limit:      cfg.Fetch.Limit,
		RatePerSec: rps,
		Client:     &http.Client{Timeout: timeout},
	}, timeout, nil
}

func mapDeliveryOptions(cfg *config.Config, fetchTimeout time.Duration) (delivery.Options, error) {
	send, err := config.ParseDurationOrDefault("delivery.send_timeout", cfg.Delivery.SendTimeout, 30*time.Second)
	if err != nil {
		return delivery.Options{}, err
	}
	return delivery.Options{
		FetchTimeout:   fetchTimeout,
		SendTimeout:    send,
		CaptionLimit:   cfg.Delivery.CaptionLimit,
		DefaultCaption: cfg.Delivery.DefaultCaption,
	}, nil
}

func mapChannels(cfg *config.Config) []delivery.Channel {
	out := make([]delivery.Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		srcs := make([]string, 0, len(ch.Sources))
		for _, s := range ch.Sources {
			if s = strings.TrimSpace(s); s != "" {
				srcs = append(srcs, s)
			}
		}
		out = append(out, delivery.Channel{ID: ch.ID, Name: ch.Name, Sources: srcs})
	}
	return out
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	sched := strings.TrimSpace(cfg.Scheduler.Schedule)
	if sched == "" {
		sched = defaultSchedule
	}
	runOnStart := true
	if cfg.Scheduler.RunOnStart != nil {
		runOnStart = *cfg.Scheduler.RunOnStart
	}
	return scheduler.Config{Schedule: sched, Timezone: cfg.Scheduler.Timezone, RunOnStart: runOnStart}
}

// validateConfig runs the static checks plus everything the mappers parse,
// so a bad hot reload is rejected before it is committed.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, ft, err := mapFetchOptions(cfg)
	if err != nil {
		return err
	}
	if _, err := mapDeliveryOptions(cfg, ft); err != nil {
		return err
	}
	if _, err := scheduler.New(mapSchedulerConfig(cfg), noopJob, logx.Nop()); err != nil {
		return err
	}
	return nil
}
