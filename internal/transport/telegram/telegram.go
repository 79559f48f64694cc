// Package telegram delivers notifications to configured Telegram chats and
// backs the log chat sink.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "classbot/internal/transport"
	"classbot/pkg/logx"
)

const PlatformName = "telegram"

type GroupConfig struct {
	Name     string
	ChatID   int64
	ThreadID int
}

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL  string
	Timeout time.Duration
	Groups  []GroupConfig
}

// Platform implements transport.Platform and transport.TextSender on top of telebot.
// It never long-polls; the bot is send-only.
type Platform struct {
	bot    *tele.Bot
	client *http.Client
	log    logx.Logger
	groups atomic.Pointer[[]kit.Group]
}

func New(cfg Config, log logx.Logger) (*Platform, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  client,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Platform{bot: b, client: client, log: log.With(logx.String("comp", "telegram"))}
	p.SetGroups(cfg.Groups)
	return p, nil
}

func (p *Platform) Name() string { return PlatformName }

// SetGroups replaces the configured destination chats.
func (p *Platform) SetGroups(cfgs []GroupConfig) {
	gs := make([]kit.Group, 0, len(cfgs))
	for _, c := range cfgs {
		if c.ChatID == 0 {
			continue
		}
		id := strconv.FormatInt(c.ChatID, 10)
		name := c.Name
		if name == "" {
			name = id
		}
		gs = append(gs, kit.Group{
			Platform: PlatformName,
			ID:       id,
			Name:     name,
			Channel:  &kit.Channel{ID: id, Name: name, Thread: c.ThreadID},
			// Telegram has no role mentions; the sentinel renders no token.
			Everyone: kit.Role{ID: id, Name: "@everyone"},
		})
	}
	p.groups.Store(&gs)
}

func (p *Platform) Groups(context.Context) ([]kit.Group, error) {
	gs := *p.groups.Load()
	return append([]kit.Group(nil), gs...), nil
}

func (p *Platform) Send(ctx context.Context, g kit.Group, m kit.Message) error {
	if g.Channel == nil {
		return errors.New("telegram: group has no chat")
	}
	chatID, err := strconv.ParseInt(g.Channel.ID, 10, 64)
	if err != nil {
		return err
	}
	to := kit.ChatTarget{ChatID: chatID, ThreadID: g.Channel.Thread}
	return p.send(ctx, to, splitMessage(renderHTML(m), messageLimit, true), tele.ModeHTML)
}

// SendText sends plain text, split into chunks when needed.
func (p *Platform) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	return p.send(ctx, to, splitMessage(text, messageLimit, false), tele.ModeDefault)
}

func (p *Platform) send(ctx context.Context, to kit.ChatTarget, chunks []string, mode tele.ParseMode) error {
	if len(chunks) == 0 {
		return nil
	}
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{
			ParseMode:             mode,
			DisableWebPagePreview: true,
			ThreadID:              to.ThreadID,
		}
		if _, err := p.bot.Send(chat, chunk, opt); err != nil {
			return err
		}
	}
	return nil
}

// Close drops idle keep-alive connections.
func (p *Platform) Close() { p.client.CloseIdleConnections() }
