package config

import (
	"sort"
	"strings"

	logx "bosstimer/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.AlertChatID != newCfg.Telegram.AlertChatID ||
		oldCfg.Telegram.AlertThreadID != newCfg.Telegram.AlertThreadID ||
		strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int64("telegram.alert_chat_id", newCfg.Telegram.AlertChatID),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Tracker
	if strings.TrimSpace(oldCfg.Tracker.Timezone) != strings.TrimSpace(newCfg.Tracker.Timezone) ||
		strings.TrimSpace(oldCfg.Tracker.PollInterval) != strings.TrimSpace(newCfg.Tracker.PollInterval) ||
		oldCfg.Tracker.DefaultAlertLeadMinutes != newCfg.Tracker.DefaultAlertLeadMinutes ||
		oldCfg.Tracker.NotifyRatePerSec != newCfg.Tracker.NotifyRatePerSec {
		changed = append(changed, "tracker")
		attrs = append(attrs,
			logx.String("tracker.timezone", strings.TrimSpace(newCfg.Tracker.Timezone)),
			logx.String("tracker.poll_interval", strings.TrimSpace(newCfg.Tracker.PollInterval)),
			logx.Int("tracker.default_alert_lead_minutes", newCfg.Tracker.DefaultAlertLeadMinutes),
			logx.Int("tracker.notify_rate_per_sec", newCfg.Tracker.NotifyRatePerSec),
		)
	}

	// Storage (nil means disabled). Paths are compared but only path_set is
	// logged; file locations stay out of the log stream.
	var oDriver, nDriver, oBusy, nBusy, oPath, nPath string
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPath = strings.TrimSpace(oldCfg.Storage.Path)
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPath = strings.TrimSpace(newCfg.Storage.Path)
	}
	if oDriver != nDriver || oBusy != nBusy || oPath != nPath {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
