package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"classbot/pkg/logx"
)

func writeCredentials(t *testing.T, dir, tokenURL string) string {
	t.Helper()
	body := map[string]any{
		"installed": map[string]any{
			"client_id":     "cid",
			"client_secret": "secret",
			"auth_uri":      "https://accounts.example/auth",
			"token_uri":     tokenURL,
			"redirect_uris": []string{"urn:ietf:wg:oauth:2.0:oob"},
		},
	}
	b, _ := json.Marshal(body)
	p := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatalf("write credentials: %v", err)
	}
	return p
}

func TestTransportNotReadyBeforeRun(t *testing.T) {
	t.Parallel()
	a := New(Options{}, logx.Nop())
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	_, err := a.Transport().RoundTrip(req)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if a.IsReady() {
		t.Fatalf("must not be ready")
	}
}

func TestRunWithCachedToken(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	creds := writeCredentials(t, dir, "https://oauth.example/token")
	tokPath := filepath.Join(dir, "token.json")
	tok := &oauth2.Token{AccessToken: "cached", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	if err := saveToken(tokPath, tok); err != nil {
		t.Fatalf("save token: %v", err)
	}

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	a := New(Options{
		CredentialsFile: creds,
		TokenFile:       tokPath,
		Prompt: func(context.Context, string) (string, error) {
			t.Fatalf("prompt must not run with a cached token")
			return "", nil
		},
	}, logx.Nop())
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	select {
	case <-a.Ready():
	default:
		t.Fatalf("ready must be closed")
	}

	resp, err := (&http.Client{Transport: a.Transport()}).Get(api.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if gotAuth != "Bearer cached" {
		t.Fatalf("authorization=%q", gotAuth)
	}

	// A second Run is a no-op.
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestRunExchangesPromptedCode(t *testing.T) {
	t.Parallel()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "abc" {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	dir := t.TempDir()
	creds := writeCredentials(t, dir, tokenSrv.URL)
	tokPath := filepath.Join(dir, "sub", "token.json")

	var prompted string
	a := New(Options{
		CredentialsFile: creds,
		TokenFile:       tokPath,
		Prompt: func(_ context.Context, url string) (string, error) {
			prompted = url
			return " abc\n", nil
		},
	}, logx.Nop())
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(prompted, "client_id=cid") {
		t.Fatalf("unexpected auth url %q", prompted)
	}
	cached, err := loadToken(tokPath)
	if err != nil || cached.AccessToken != "fresh" {
		t.Fatalf("token not cached: %v %+v", err, cached)
	}
}

func TestRunMissingCredentials(t *testing.T) {
	t.Parallel()
	a := New(Options{CredentialsFile: filepath.Join(t.TempDir(), "nope.json")}, logx.Nop())
	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if a.IsReady() {
		t.Fatalf("must not be ready after failure")
	}
}

func TestConsolePromptReadsLine(t *testing.T) {
	t.Parallel()
	p := ConsolePrompt(strings.NewReader("code-123\nrest"), logx.Nop())
	got, err := p(context.Background(), "https://auth")
	if err != nil || got != "code-123\n" {
		t.Fatalf("got %q err=%v", got, err)
	}
}
