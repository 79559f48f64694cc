package config

type Config struct {
	Classroom ClassroomConfig `json:"classroom"`
	Poll      LoopConfig      `json:"poll"`
	Reminder  ReminderConfig  `json:"reminder"`
	Routing   RoutingConfig   `json:"routing"`
	Messages  MessagesConfig  `json:"messages"`

	Appearance AppearanceConfig `json:"appearance,omitempty"`

	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Ops      OpsConfig       `json:"ops,omitempty"`
	Logging  LoggingConfig   `json:"logging"`
}

// ClassroomConfig configures the upstream content source.
//
// Defaults (when omitted/zero):
//   - credentials_file: "./credentials.json"
//   - token_file: "./token.json"
//   - base_url: "https://classroom.googleapis.com/v1"
//   - page_size: 20
//   - batch_concurrency: 8
//   - request_timeout: "30s"
type ClassroomConfig struct {
	CredentialsFile  string `json:"credentials_file,omitempty"`
	TokenFile        string `json:"token_file,omitempty"`
	BaseURL          string `json:"base_url,omitempty"`
	PageSize         int    `json:"page_size,omitempty"`
	BatchConcurrency int    `json:"batch_concurrency,omitempty"`
	RequestTimeout   string `json:"request_timeout,omitempty"`
}

// LoopConfig controls a scheduled loop cadence.
//
// Schedule, when set, overrides IntervalMinutes and accepts a cron
// expression ("*/2 * * * *"), a Go duration ("90s") or HH:MM ("00:05").
type LoopConfig struct {
	IntervalMinutes *float64 `json:"interval_minutes,omitempty"`
	Schedule        string   `json:"schedule,omitempty"`
}

type ReminderConfig struct {
	// Enabled is a pointer so omission means "on".
	Enabled *bool `json:"enabled,omitempty"`
	LoopConfig
	RemindWithinHours *float64 `json:"remind_within_hours,omitempty"`
	// DedupeWindow suppresses re-announcing the same item to the same group
	// within the window. Empty keeps the announce-every-cycle behavior.
	DedupeWindow string `json:"dedupe_window,omitempty"`
}

// RoutingConfig holds per-course and per-group destination rules.
// Course and group keys are display names, matched exactly.
type RoutingConfig struct {
	GroupBlacklist  []string                 `json:"group_blacklist,omitempty"`
	CourseBlacklist []string                 `json:"course_blacklist,omitempty"`
	Groups          map[string]GroupRouting  `json:"groups,omitempty"`
	Courses         map[string]CourseRouting `json:"courses,omitempty"`
}

type GroupRouting struct {
	CourseBlacklist []string            `json:"course_blacklist,omitempty"`
	RoleMentions    map[string][]string `json:"role_mentions,omitempty"`
}

type CourseRouting struct {
	RoleMentions []string `json:"role_mentions,omitempty"`
	TeacherImage string   `json:"teacher_image,omitempty"`
}

// MessagesConfig holds header templates per notification kind.
// "{course}" is replaced with the course display name.
type MessagesConfig struct {
	NewCourseWork       string `json:"new_course_work,omitempty"`
	UpdatedCourseWork   string `json:"updated_course_work,omitempty"`
	NewAnnouncement     string `json:"new_announcement,omitempty"`
	UpdatedAnnouncement string `json:"updated_announcement,omitempty"`
	Reminder            string `json:"reminder,omitempty"`
	UntitledWork        string `json:"untitled_work,omitempty"`
	DueFooter           string `json:"due_footer,omitempty"`
	PostedFooter        string `json:"posted_footer,omitempty"`
	MaterialsField      string `json:"materials_field,omitempty"`
	UnknownTeacher      string `json:"unknown_teacher,omitempty"`
}

// AppearanceConfig overrides document colours and icons.
type AppearanceConfig struct {
	WorkColor         string `json:"work_color,omitempty"`         // "#36474F"
	AnnouncementColor string `json:"announcement_color,omitempty"` // "#F17A16"
	ClockIcon         string `json:"clock_icon,omitempty"`
	TaskIcon          string `json:"task_icon,omitempty"`
	AnnouncementIcon  string `json:"announcement_icon,omitempty"`
	DefaultAvatar     string `json:"default_avatar,omitempty"`
}

type DiscordConfig struct {
	Enabled         bool   `json:"enabled"`
	Token           string `json:"token,omitempty"`
	APIBase         string `json:"api_base,omitempty"`
	NewsChannelName string `json:"news_channel_name,omitempty"`
	RequestTimeout  string `json:"request_timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled bool            `json:"enabled"`
	Token   string          `json:"token,omitempty"`
	Groups  []TelegramGroup `json:"groups,omitempty"`
	// LogChatID receives chat-sink log records (see logging.chat).
	LogChatID int64 `json:"log_chat_id,omitempty"`
}

type TelegramGroup struct {
	Name     string `json:"name"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// NotifierConfig controls delivery fan-out.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// An empty dedup_window defaults to the poll interval.
type NotifierConfig struct {
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        *int   `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/classbot.db" }
//	"storage": { "driver": "redis", "addr": "127.0.0.1:6379" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite

	Addr      string `json:"addr,omitempty"`     // redis
	Password  string `json:"password,omitempty"` // redis (never logged)
	DB        int    `json:"db,omitempty"`       // redis
	KeyPrefix string `json:"key_prefix,omitempty"`

	// DeliveryHistory caps retained delivery records (redis list / sqlite rows). 0 keeps the default.
	DeliveryHistory int `json:"delivery_history,omitempty"`
}

// OpsConfig controls the optional ops HTTP server (/healthz, /metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"` // default: "/debug/pprof/"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
