package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kit "classbot/internal/transport"
)

const (
	timeFormat      = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile  = "./classbot.log"
	defaultChatRate = 1
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig controls the chat sink. Records at or above MinLevel are
// forwarded to the chat target set via Service.SetChatTarget.
type ChatConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the live sink set. Apply rebuilds the root logger; every
// Logger derived from the Service picks the new root up on its next record.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu   sync.Mutex
	file *fileSink
	chat *chatSink
}

var globalsOnce sync.Once

func setGlobals() {
	globalsOnce.Do(func() {
		zerolog.ErrorFieldName = "err"
		zerolog.TimeFieldFormat = timeFormat
	})
}

// New builds the Service and applies cfg. sender may be nil, in which case
// the chat sink stays inert.
func New(cfg Config, sender kit.TextSender) (*Service, Logger) {
	setGlobals()
	s := &Service{chat: newChatSink(sender)}
	boot := newConsoleRoot(parseLevel(cfg.Level, zerolog.InfoLevel))
	s.root.Store(&boot)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetChatTarget sets where chat-sink records go. chatID 0 disables forwarding;
// threadID 0 keeps the configured thread.
func (s *Service) SetChatTarget(chatID int64, threadID int) {
	s.chat.setTarget(chatID, threadID)
}

// Apply swaps sinks and level at runtime. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	if w := s.applyFile(cfg.File); w != nil {
		writers = append(writers, w)
	}

	s.chat.configure(cfg.Chat)
	if cfg.Chat.Enabled {
		s.chat.start()
		writers = append(writers, s.chat)
		if !s.chat.hasTarget() {
			fmt.Fprintln(os.Stderr, "logx: chat sink enabled without telegram.log_chat_id")
		}
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// applyFile keeps the open file when the path is unchanged.
func (s *Service) applyFile(fc FileConfig) io.Writer {
	if !fc.Enabled {
		s.closeFile()
		return nil
	}
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	if s.file != nil && s.file.path == path {
		return s.file.w
	}
	s.closeFile()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: open log file %q: %v\n", path, err)
		return nil
	}
	s.file = &fileSink{path: path, f: f, w: zerolog.SyncWriter(f)}
	return s.file.w
}

func (s *Service) closeFile() {
	if s.file != nil {
		_ = s.file.f.Close()
		s.file = nil
	}
}

// Close stops the chat worker and closes the log file.
func (s *Service) Close() error {
	s.chat.stop()
	s.mu.Lock()
	s.closeFile()
	s.mu.Unlock()
	return nil
}

type fileSink struct {
	path string
	f    *os.File
	w    io.Writer
}

func newConsoleRoot(lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(newConsoleWriter(os.Stdout)).Level(lvl).With().Timestamp().Logger()
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}
