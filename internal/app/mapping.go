package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"classbot/internal/classroom"
	"classbot/internal/config"
	"classbot/internal/notifier"
	"classbot/internal/observability/ops"
	"classbot/internal/poller"
	"classbot/internal/reminder"
	"classbot/internal/schedule"
	"classbot/internal/snapshot"
	"classbot/internal/storage"
	"classbot/internal/transport/discord"
	"classbot/internal/transport/telegram"
	logx "classbot/pkg/logx"
)

const (
	defaultCredentialsFile = "./credentials.json"
	defaultTokenFile       = "./token.json"
	defaultRetryMax        = 3
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ThreadID:   cfg.Logging.Chat.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapClassroomOptions(cfg *config.Config) (classroom.Options, error) {
	timeout, err := config.ParseDurationOrDefault("classroom.request_timeout", cfg.Classroom.RequestTimeout, classroom.DefaultRequestTimeout)
	if err != nil {
		return classroom.Options{}, err
	}
	if cfg.Classroom.PageSize < 0 {
		return classroom.Options{}, fmt.Errorf("classroom.page_size must be >= 0")
	}
	return classroom.Options{
		BaseURL:   cfg.Classroom.BaseURL,
		PageSize:  cfg.Classroom.PageSize,
		Timeout:   timeout,
		UserAgent: "classbot",
	}, nil
}

func batchConcurrency(cfg *config.Config) int {
	if n := cfg.Classroom.BatchConcurrency; n > 0 {
		return n
	}
	return snapshot.DefaultConcurrency
}

func credentialsFiles(cfg *config.Config) (creds, token string) {
	creds = strings.TrimSpace(cfg.Classroom.CredentialsFile)
	if creds == "" {
		creds = defaultCredentialsFile
	}
	token = strings.TrimSpace(cfg.Classroom.TokenFile)
	if token == "" {
		token = defaultTokenFile
	}
	return creds, token
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	out := notifier.Config{RetryMax: defaultRetryMax}
	nc := cfg.Notifier
	if nc == nil {
		return out, nil
	}
	if nc.RatePerSec < 0 {
		return out, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if nc.DedupMaxEntries < 0 {
		return out, fmt.Errorf("notifier.dedup_max_entries must be >= 0")
	}
	out.RatePerSec = nc.RatePerSec
	out.DedupMaxEntries = nc.DedupMaxEntries
	out.PersistDedup = nc.PersistDedup
	if nc.RetryMax != nil {
		if *nc.RetryMax < 0 {
			return out, fmt.Errorf("notifier.retry_max must be >= 0")
		}
		out.RetryMax = *nc.RetryMax
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", nc.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay); err != nil {
		return out, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", nc.SendTimeout); err != nil {
		return out, err
	}
	if _, err = config.ParseDurationField("notifier.dedup_window", nc.DedupWindow); err != nil {
		return out, err
	}
	return out, nil
}

// changeDedupWindow is notifier.dedup_window, or the poll interval.
func changeDedupWindow(cfg *config.Config, l config.Lookup) time.Duration {
	if cfg.Notifier != nil {
		if d, err := config.ParseDurationField("notifier.dedup_window", cfg.Notifier.DedupWindow); err == nil && d > 0 {
			return d
		}
	}
	return l.PollInterval()
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	if sc.DeliveryHistory < 0 {
		return storage.Config{}, false, fmt.Errorf("storage.delivery_history must be >= 0")
	}
	out := storage.Config{
		Driver:          driver,
		Path:            strings.TrimSpace(sc.Path),
		DeliveryHistory: sc.DeliveryHistory,
	}
	switch driver {
	case "file":
	case "sqlite", "sqlite3":
		if out.Path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
	case "redis":
		if strings.TrimSpace(sc.Addr) == "" {
			return storage.Config{}, false, fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		out.Addr = strings.TrimSpace(sc.Addr)
		out.Password = sc.Password
		out.DB = sc.DB
		out.KeyPrefix = sc.KeyPrefix
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, true, nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	out := ops.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		PprofPrefix:   oc.PprofPrefix,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 5*time.Second); err != nil {
		return out, err
	}
	// pprof profile/trace stream for up to 30s by default.
	if out.WriteTimeout, err = config.ParseDurationOrDefault("ops.write_timeout", oc.WriteTimeout, 35*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, time.Minute); err != nil {
		return out, err
	}
	return out, nil
}

func mapDiscordConfig(cfg *config.Config) (discord.Config, error) {
	timeout, err := config.ParseDurationOrDefault("discord.request_timeout", cfg.Discord.RequestTimeout, discord.DefaultRequestTimeout)
	if err != nil {
		return discord.Config{}, err
	}
	return discord.Config{
		Token:           cfg.Discord.Token,
		APIBase:         cfg.Discord.APIBase,
		NewsChannelName: cfg.Discord.NewsChannelName,
		Timeout:         timeout,
	}, nil
}

func mapTelegramGroups(cfg *config.Config) []telegram.GroupConfig {
	out := make([]telegram.GroupConfig, 0, len(cfg.Telegram.Groups))
	for _, g := range cfg.Telegram.Groups {
		out = append(out, telegram.GroupConfig{Name: g.Name, ChatID: g.ChatID, ThreadID: g.ThreadID})
	}
	return out
}

// pollSettings never fails; a bad schedule falls back to the interval with a warning.
func pollSettings(cfg *config.Config, l config.Lookup, log logx.Logger) poller.Settings {
	c, err := schedule.NewCadence(l.PollSchedule(), l.PollInterval())
	if err != nil {
		log.Warn("invalid poll.schedule; using interval", logx.Err(err), logx.Duration("interval", l.PollInterval()))
	}
	return poller.Settings{Cadence: c, DedupWindow: changeDedupWindow(cfg, l)}
}

func reminderSettings(l config.Lookup, log logx.Logger) reminder.Settings {
	c, err := schedule.NewCadence(l.ReminderSchedule(), l.ReminderInterval())
	if err != nil {
		log.Warn("invalid reminder.schedule; using interval", logx.Err(err), logx.Duration("interval", l.ReminderInterval()))
	}
	return reminder.Settings{Cadence: c, Within: l.RemindWithin(), DedupWindow: l.ReminderDedupe()}
}

// validate rejects a config before it is committed, on boot and on hot reload.
func validate(_ context.Context, cfg *config.Config) error {
	if !cfg.Discord.Enabled && !cfg.Telegram.Enabled {
		return fmt.Errorf("at least one of discord.enabled or telegram.enabled must be true")
	}
	if cfg.Discord.Enabled && strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required when discord.enabled")
	}
	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required when telegram.enabled")
	}
	if _, err := config.MinutesField("poll.interval_minutes", cfg.Poll.IntervalMinutes, config.DefaultPollInterval); err != nil {
		return err
	}
	if _, err := config.MinutesField("reminder.interval_minutes", cfg.Reminder.IntervalMinutes, config.DefaultReminderInterval); err != nil {
		return err
	}
	if _, err := config.HoursField("reminder.remind_within_hours", cfg.Reminder.RemindWithinHours, config.DefaultRemindWithin); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("reminder.dedupe_window", cfg.Reminder.DedupeWindow); err != nil {
		return err
	}
	for key, raw := range map[string]string{"poll.schedule": cfg.Poll.Schedule, "reminder.schedule": cfg.Reminder.Schedule} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := schedule.NewCadence(raw, time.Minute); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if cfg.Classroom.BatchConcurrency < 0 {
		return fmt.Errorf("classroom.batch_concurrency must be >= 0")
	}
	if _, err := mapClassroomOptions(cfg); err != nil {
		return err
	}
	if _, err := mapDiscordConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapOpsConfig(cfg); err != nil {
		return err
	}
	return nil
}
