// Package discord delivers notifications to the news channel of every guild
// the bot has joined.
package discord

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	kit "classbot/internal/transport"
	"classbot/pkg/logx"
)

const (
	PlatformName           = "discord"
	DefaultNewsChannelName = "classroom-news"

	guildPageSize    = 200
	guildConcurrency = 4
)

type Config struct {
	Token           string
	APIBase         string
	NewsChannelName string
	Timeout         time.Duration
	Transport       http.RoundTripper
}

type Platform struct {
	http *resty.Client
	log  logx.Logger

	mu          sync.RWMutex
	newsChannel string
}

func New(cfg Config, log logx.Logger) (*Platform, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Platform{
		http: newHTTP(cfg.APIBase, strings.TrimSpace(cfg.Token), cfg.Timeout, cfg.Transport),
		log:  log.With(logx.String("comp", "discord")),
	}
	p.SetNewsChannel(cfg.NewsChannelName)
	return p, nil
}

func (p *Platform) Name() string { return PlatformName }

// SetNewsChannel changes the channel name looked up in each guild.
func (p *Platform) SetNewsChannel(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultNewsChannelName
	}
	p.mu.Lock()
	p.newsChannel = name
	p.mu.Unlock()
}

func (p *Platform) newsChannelName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.newsChannel
}

// Groups lists joined guilds with their news channel and roles.
// A guild without a matching channel is returned with a nil Channel.
func (p *Platform) Groups(ctx context.Context) ([]kit.Group, error) {
	guilds, err := p.guilds(ctx)
	if err != nil {
		return nil, err
	}
	news := p.newsChannelName()
	out := make([]kit.Group, len(guilds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(guildConcurrency)
	for i, guild := range guilds {
		g.Go(func() error {
			grp, err := p.group(gctx, guild, news)
			if err != nil {
				return err
			}
			out[i] = grp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Platform) guilds(ctx context.Context) ([]apiGuild, error) {
	var all []apiGuild
	after := ""
	for {
		path := "/users/@me/guilds?limit=" + strconv.Itoa(guildPageSize)
		if after != "" {
			path += "&after=" + after
		}
		var page []apiGuild
		if err := do(ctx, p.http, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < guildPageSize {
			return all, nil
		}
		after = page[len(page)-1].ID
	}
}

func (p *Platform) group(ctx context.Context, guild apiGuild, news string) (kit.Group, error) {
	var chans []apiChannel
	if err := do(ctx, p.http, http.MethodGet, "/guilds/"+guild.ID+"/channels", nil, &chans); err != nil {
		return kit.Group{}, err
	}
	var roles []apiRole
	if err := do(ctx, p.http, http.MethodGet, "/guilds/"+guild.ID+"/roles", nil, &roles); err != nil {
		return kit.Group{}, err
	}

	grp := kit.Group{
		Platform: PlatformName,
		ID:       guild.ID,
		Name:     guild.Name,
		Everyone: kit.Role{ID: guild.ID, Name: "@everyone", Mention: "@everyone"},
	}
	for _, c := range chans {
		if c.Name == news && (c.Type == channelText || c.Type == channelAnnouncement) {
			grp.Channel = &kit.Channel{ID: c.ID, Name: c.Name}
			break
		}
	}
	for _, r := range roles {
		if r.ID == guild.ID {
			continue
		}
		grp.Roles = append(grp.Roles, kit.Role{ID: r.ID, Name: r.Name, Mention: "<@&" + r.ID + ">"})
	}
	if grp.Channel == nil {
		p.log.Debug("guild has no news channel", logx.String("guild", guild.Name), logx.String("channel", news))
	}
	return grp, nil
}

func (p *Platform) Send(ctx context.Context, g kit.Group, m kit.Message) error {
	if g.Channel == nil {
		return errors.New("discord: group has no news channel")
	}
	body := createMessage{
		Content:         truncate(m.Header, 2000),
		Embeds:          []embed{toEmbed(m.Document)},
		AllowedMentions: mentionsFor(m.Header, g),
	}
	var msg apiMessage
	return do(ctx, p.http, http.MethodPost, "/channels/"+g.Channel.ID+"/messages", body, &msg)
}

// mentionsFor only lets the tokens actually present in the header ping.
func mentionsFor(header string, g kit.Group) allowedMentions {
	am := allowedMentions{Parse: []string{}}
	if g.Everyone.Mention != "" && strings.Contains(header, g.Everyone.Mention) {
		am.Parse = append(am.Parse, "everyone")
	}
	for _, r := range g.Roles {
		if strings.Contains(header, r.Mention) {
			am.Roles = append(am.Roles, r.ID)
		}
	}
	return am
}

func toEmbed(d kit.Document) embed {
	e := embed{
		Title:       truncate(d.Title, 256),
		Description: truncate(d.Description, 4096),
		URL:         d.URL,
		Color:       d.Color,
	}
	if !d.Timestamp.IsZero() {
		e.Timestamp = d.Timestamp.UTC().Format(time.RFC3339)
	}
	if d.Footer.Text != "" || d.Footer.IconURL != "" {
		e.Footer = &embedFooter{Text: truncate(d.Footer.Text, 2048), IconURL: d.Footer.IconURL}
	}
	if d.Thumbnail != "" {
		e.Thumbnail = &embedImage{URL: d.Thumbnail}
	}
	if d.Author.Name != "" {
		e.Author = &embedAuthor{Name: truncate(d.Author.Name, 256), URL: d.Author.URL, IconURL: d.Author.IconURL}
	}
	for i, f := range d.Fields {
		if i == 25 {
			break
		}
		e.Fields = append(e.Fields, embedField{Name: truncate(f.Name, 256), Value: truncate(f.Value, 1024)})
	}
	return e
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n-1]) + "…"
}

// Close drops idle keep-alive connections.
func (p *Platform) Close() { p.http.GetClient().CloseIdleConnections() }
