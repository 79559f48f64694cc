package config

import (
	"reflect"
	"strings"

	logx "classbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Tokens and passwords are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Classroom, newCfg.Classroom) {
		changed = append(changed, "classroom")
		attrs = append(attrs,
			logx.Int("classroom.page_size", newCfg.Classroom.PageSize),
			logx.Int("classroom.batch_concurrency", newCfg.Classroom.BatchConcurrency),
		)
	}
	if !reflect.DeepEqual(oldCfg.Poll, newCfg.Poll) {
		changed = append(changed, "poll")
		attrs = append(attrs, logx.String("poll.schedule", newCfg.Poll.Schedule))
		if newCfg.Poll.IntervalMinutes != nil {
			attrs = append(attrs, logx.Float64("poll.interval_minutes", *newCfg.Poll.IntervalMinutes))
		}
	}
	if !reflect.DeepEqual(oldCfg.Reminder, newCfg.Reminder) {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.String("reminder.schedule", newCfg.Reminder.Schedule),
			logx.String("reminder.dedupe_window", newCfg.Reminder.DedupeWindow),
		)
	}
	if !reflect.DeepEqual(oldCfg.Routing, newCfg.Routing) {
		changed = append(changed, "routing")
		attrs = append(attrs,
			logx.Int("routing.group_blacklist", len(newCfg.Routing.GroupBlacklist)),
			logx.Int("routing.course_blacklist", len(newCfg.Routing.CourseBlacklist)),
			logx.Int("routing.groups", len(newCfg.Routing.Groups)),
			logx.Int("routing.courses", len(newCfg.Routing.Courses)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Messages, newCfg.Messages) {
		changed = append(changed, "messages")
	}
	if !reflect.DeepEqual(oldCfg.Appearance, newCfg.Appearance) {
		changed = append(changed, "appearance")
	}

	if oldCfg.Discord.Enabled != newCfg.Discord.Enabled ||
		strings.TrimSpace(oldCfg.Discord.APIBase) != strings.TrimSpace(newCfg.Discord.APIBase) ||
		oldCfg.Discord.NewsChannelName != newCfg.Discord.NewsChannelName ||
		oldCfg.Discord.RequestTimeout != newCfg.Discord.RequestTimeout ||
		oldCfg.Discord.Token != newCfg.Discord.Token {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.enabled", newCfg.Discord.Enabled),
			logx.String("discord.news_channel_name", newCfg.Discord.NewsChannelName),
			logx.Bool("discord.token_set", strings.TrimSpace(newCfg.Discord.Token) != ""),
		)
	}
	if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.LogChatID != newCfg.Telegram.LogChatID ||
		!reflect.DeepEqual(oldCfg.Telegram.Groups, newCfg.Telegram.Groups) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Int("telegram.groups", len(newCfg.Telegram.Groups)),
			logx.Bool("telegram.log_chat_set", newCfg.Telegram.LogChatID != 0),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.String("notifier.dedup_window", n.DedupWindow),
				logx.Bool("notifier.persist_dedup", n.PersistDedup),
			)
		}
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if st := newCfg.Storage; st != nil {
			attrs = append(attrs, logx.String("storage.driver", st.Driver))
		}
	}

	// Ops (never log token)
	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	return changed, attrs
}
