package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	logx "classbot/pkg/logx"
)

// validateTimeout bounds a single validator call during Reload.
const validateTimeout = 5 * time.Second

// Validator vets a freshly parsed config before it is committed.
type Validator func(ctx context.Context, cfg *Config) error

type committed struct {
	cfg  *Config
	hash uint64
}

// ConfigManager owns the live config and republishes it when the file on
// disk changes. A parsed file is validated before it replaces the current
// config; subscribers only ever observe committed configs.
type ConfigManager struct {
	path string
	log  logx.Logger

	cur       atomic.Pointer[committed]
	validator atomic.Pointer[Validator]

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path, subs: map[chan *Config]struct{}{}}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

func (m *ConfigManager) SetValidator(fn Validator) {
	if fn == nil {
		m.validator.Store(nil)
		return
	}
	m.validator.Store(&fn)
}

// Parse reads and strictly decodes the config file without committing it.
func (m *ConfigManager) Parse() (*Config, error) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(m.path, raw)
}

// Load parses the file and commits it unconditionally (startup path).
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg, fingerprint(cfg))
	return cfg, nil
}

func (m *ConfigManager) commit(cfg *Config, hash uint64) {
	m.cur.Store(&committed{cfg: cfg, hash: hash})
}

// Get returns the committed config, or nil before Load.
func (m *ConfigManager) Get() *Config {
	if c := m.cur.Load(); c != nil {
		return c.cfg
	}
	return nil
}

// Subscribe registers a channel that receives every committed config after
// this call. A full channel keeps only the newest config.
func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; !ok {
		return
	}
	delete(m.subs, ch)
	close(ch)
}

func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		if !offerLatest(ch, cfg) {
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// offerLatest sends cfg without blocking, evicting one stale entry if ch is full.
func offerLatest(ch chan *Config, cfg *Config) bool {
	select {
	case ch <- cfg:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- cfg:
		return true
	default:
		return false
	}
}

// Reload re-reads the file and, if its content changed and passes the
// validator, commits and publishes it. A rejected file keeps the current config.
func (m *ConfigManager) Reload(ctx context.Context) error {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return err
	}

	h := fingerprint(cfg)
	if c := m.cur.Load(); c != nil && h != 0 && c.hash == h {
		m.log.Debug("config content unchanged", logx.String("path", m.path))
		return nil
	}

	if fn := m.validator.Load(); fn != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := (*fn)(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected; keeping previous", logx.String("path", m.path), logx.Err(err))
			return err
		}
	}

	m.commit(cfg, h)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%016x", h)))
	return nil
}
