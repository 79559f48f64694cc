package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "classbot/internal/transport"
)

const (
	chatQueueSize   = 128
	chatSendTimeout = 10 * time.Second
	chatMaxLen      = 3500
	chatMaxValueLen = 500
)

// leadKeys are printed first, in this order, when present.
var leadKeys = []string{"comp", "course", "group", "platform", "kind"}

// skipKeys never reach chat messages.
var skipKeys = map[string]bool{"time": true, "level": true, "message": true, zerolog.CallerFieldName: true}

// chatSink is a zerolog.LevelWriter that forwards operator-relevant records
// to a chat. It never blocks the logging call: records past the rate limit
// or a full queue are dropped and counted.
type chatSink struct {
	sender kit.TextSender

	mu       sync.Mutex
	target   kit.ChatTarget
	thread   int // configured default thread
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue   chan chatItem
	dropped atomic.Uint64

	runOnce sync.Once
	cancel  context.CancelFunc
	done    chan struct{}
}

type chatItem struct {
	to   kit.ChatTarget
	text string
}

func newChatSink(sender kit.TextSender) *chatSink {
	return &chatSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(defaultChatRate, defaultChatRate),
		queue:    make(chan chatItem, chatQueueSize),
	}
}

func (c *chatSink) configure(cfg ChatConfig) {
	rps := max(defaultChatRate, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter.SetLimit(rate.Limit(rps))
	c.limiter.SetBurst(rps)
	if cfg.ThreadID != 0 {
		c.thread = cfg.ThreadID
		c.target.ThreadID = cfg.ThreadID
	}
	c.mu.Unlock()
}

func (c *chatSink) setTarget(chatID int64, threadID int) {
	c.mu.Lock()
	if threadID == 0 {
		threadID = c.thread
	}
	c.target = kit.ChatTarget{ChatID: chatID, ThreadID: threadID}
	c.mu.Unlock()
}

func (c *chatSink) hasTarget() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target.ChatID != 0
}

func (c *chatSink) start() {
	c.runOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.mu.Lock()
		c.cancel, c.done = cancel, done
		c.mu.Unlock()
		go c.run(ctx, done)
	})
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *chatSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-c.queue:
			if c.sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			if err := c.sender.SendText(sctx, it.to, it.text); err != nil {
				c.dropped.Add(1)
			}
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.NoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to, minLvl, lim := c.target, c.minLevel, c.limiter
	c.mu.Unlock()

	if c.sender == nil || to.ChatID == 0 || level < minLvl || level == zerolog.NoLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		c.dropped.Add(1)
		return len(p), nil
	}
	text := formatChat(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case c.queue <- chatItem{to: to, text: text}:
	default:
		c.dropped.Add(1)
	}
	return len(p), nil
}

// formatChat renders a zerolog JSON record as a short plain-text alert:
// "LEVEL message" followed by one "key: value" line per field, lead keys
// first and the rest sorted. Non-JSON input is passed through trimmed.
func formatChat(p []byte) string {
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(strings.TrimSpace(string(p)), chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec["level"].(string); lvl != "" {
		b.WriteString(strings.ToUpper(lvl))
		b.WriteByte(' ')
	}
	msg, _ := rec["message"].(string)
	b.WriteString(msg)

	seen := make(map[string]bool, len(rec))
	line := func(k string) {
		v, ok := rec[k]
		if !ok || seen[k] || skipKeys[k] {
			return
		}
		seen[k] = true
		fmt.Fprintf(&b, "\n%s: %s", k, clip(fmt.Sprint(v), chatMaxValueLen))
	}
	for _, k := range leadKeys {
		line(k)
	}
	rest := make([]string, 0, len(rec))
	for k := range rec {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		line(k)
	}
	return clip(b.String(), chatMaxLen)
}

// clip cuts s to at most n bytes, marking the cut with "...".
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
