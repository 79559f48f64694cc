// Package auth performs the OAuth handshake with the content provider and
// exposes a one-shot readiness signal plus an authorizing HTTP transport.
package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"classbot/pkg/logx"
)

// ErrNotReady is returned by Transport before the handshake has completed.
var ErrNotReady = errors.New("auth: not ready")

// Scopes requested from the provider.
var Scopes = []string{
	"https://www.googleapis.com/auth/classroom.courses.readonly",
	"https://www.googleapis.com/auth/classroom.coursework.me.readonly",
	"https://www.googleapis.com/auth/classroom.announcements.readonly",
	"https://www.googleapis.com/auth/classroom.rosters.readonly",
	"https://www.googleapis.com/auth/classroom.profile.photos",
	"https://www.googleapis.com/auth/classroom.profile.emails",
}

// PromptFunc shows authURL to an operator and returns the pasted code.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

type Options struct {
	CredentialsFile string
	TokenFile       string
	Prompt          PromptFunc
	// Base is the transport used beneath the oauth2 layer; nil means http.DefaultTransport.
	Base http.RoundTripper
}

type Authenticator struct {
	opts Options
	log  logx.Logger

	ready     chan struct{}
	readyOnce sync.Once
	source    atomic.Pointer[oauth2.TokenSource]
}

func New(opts Options, log logx.Logger) *Authenticator {
	if opts.CredentialsFile == "" {
		opts.CredentialsFile = "./credentials.json"
	}
	if opts.TokenFile == "" {
		opts.TokenFile = "./token.json"
	}
	if opts.Prompt == nil {
		opts.Prompt = ConsolePrompt(os.Stdin, log)
	}
	return &Authenticator{
		opts:  opts,
		log:   log.With(logx.String("comp", "auth")),
		ready: make(chan struct{}),
	}
}

// Ready is closed exactly once, when a token source is available.
func (a *Authenticator) Ready() <-chan struct{} { return a.ready }

// IsReady reports whether Ready has been closed.
func (a *Authenticator) IsReady() bool {
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}

// Run completes the handshake once. It returns nil after readiness and is
// safe to retry on error.
func (a *Authenticator) Run(ctx context.Context) error {
	if a.IsReady() {
		return nil
	}
	raw, err := os.ReadFile(a.opts.CredentialsFile)
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return fmt.Errorf("parse credentials: %w", err)
	}

	if a.opts.Base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: a.opts.Base})
	}

	tok, err := loadToken(a.opts.TokenFile)
	switch {
	case err == nil:
		a.log.Info("using cached token", logx.String("file", a.opts.TokenFile))
	case errors.Is(err, os.ErrNotExist):
		tok, err = a.exchange(ctx, conf)
		if err != nil {
			return err
		}
		if err := saveToken(a.opts.TokenFile, tok); err != nil {
			a.log.Warn("token cache write failed", logx.Err(err))
		}
	default:
		return fmt.Errorf("read token: %w", err)
	}

	// Refresh under a detached context; the source outlives Run.
	base := conf.TokenSource(context.WithoutCancel(ctx), tok)
	var ts oauth2.TokenSource = &savingSource{
		src:  oauth2.ReuseTokenSource(tok, base),
		path: a.opts.TokenFile,
		last: tok.AccessToken,
		log:  a.log,
	}
	a.source.Store(&ts)
	a.readyOnce.Do(func() { close(a.ready) })
	a.log.Info("authenticated")
	return nil
}

func (a *Authenticator) exchange(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	url := conf.AuthCodeURL("state", oauth2.AccessTypeOffline)
	code, err := a.opts.Prompt(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("auth prompt: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("auth prompt: empty code")
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

// Transport returns a RoundTripper that authorizes requests once Ready is
// closed and fails with ErrNotReady before that.
func (a *Authenticator) Transport() http.RoundTripper {
	base := a.opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{a: a, base: base}
}

type transport struct {
	a    *Authenticator
	base http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	src := t.a.source.Load()
	if src == nil {
		return nil, ErrNotReady
	}
	return (&oauth2.Transport{Source: *src, Base: t.base}).RoundTrip(req)
}

// ConsolePrompt logs the URL and reads one line from r.
func ConsolePrompt(r io.Reader, log logx.Logger) PromptFunc {
	return func(ctx context.Context, authURL string) (string, error) {
		log.Warn("authorization required, open the URL and paste the code on stdin", logx.String("url", authURL))
		type result struct {
			line string
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			line, err := bufio.NewReader(r).ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				ch <- result{err: err}
				return
			}
			ch <- result{line: line}
		}()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-ch:
			return res.line, res.err
		}
	}
}

type savingSource struct {
	src  oauth2.TokenSource
	path string
	log  logx.Logger

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			s.log.Warn("token cache write failed", logx.Err(err))
		}
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
