package config

import "reflect"

// ChangedSections lists the top-level sections that differ between two configs.
// The bot token is never compared so it cannot leak into logs.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			changed = append(changed, name)
		}
	}

	oldTG, newTG := oldCfg.Telegram, newCfg.Telegram
	oldTG.Token, newTG.Token = "", ""
	add("log_target", oldTG.GroupLog, newTG.GroupLog)
	oldTG.GroupLog, newTG.GroupLog = "", ""
	add("telegram", oldTG, newTG)
	add("channels", oldCfg.Channels, newCfg.Channels)
	add("scheduler", oldCfg.Scheduler, newCfg.Scheduler)
	add("fetch", oldCfg.Fetch, newCfg.Fetch)
	add("delivery", oldCfg.Delivery, newCfg.Delivery)
	add("storage", oldCfg.Storage, newCfg.Storage)
	add("logging", oldCfg.Logging, newCfg.Logging)
	return changed
}

// RestartRequired reports whether any changed section only takes effect after a restart.
func RestartRequired(sections []string) bool {
	for _, s := range sections {
		if s != "logging" && s != "log_target" {
			return true
		}
	}
	return false
}
