package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kit "classbot/internal/transport"
	"classbot/pkg/logx"
)

func TestSplitMessagePrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	got := splitMessage(s, 40, false)
	if len(got) != 2 || got[0] != strings.Repeat("a", 30) || got[1] != strings.Repeat("b", 30) {
		t.Fatalf("unexpected chunks %q", got)
	}
	if got := splitMessage("short", 40, false); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}
}

func TestSplitMessageKeepsMarkupBalanced(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("x", 15) + "<b>bold</b>"
	got := splitMessage(s, 18, true)
	if len(got) != 2 || got[1] != "<b>bold</b>" {
		t.Fatalf("element split across chunks: %q", got)
	}

	ent := strings.Repeat("y", 16) + "&amp;z"
	for _, c := range splitMessage(ent, 18, true) {
		if strings.Contains(c, "&") && !strings.Contains(c, "&amp;") {
			t.Fatalf("chunk splits an entity: %q", c)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()
	got := renderHTML(kit.Message{
		Header: "New coursework in Math <1>",
		Document: kit.Document{
			Title:       "HW1",
			URL:         "https://classroom.example/w1",
			Description: "a & b",
			Timestamp:   time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC),
			Footer:      kit.Footer{Text: "Due"},
			Fields:      []kit.Field{{Name: "Material:", Value: "[Sheet](https://drive.example/s)\n"}},
		},
	})
	for _, want := range []string{
		"<b>New coursework in Math &lt;1&gt;</b>",
		`<b><a href="https://classroom.example/w1">HW1</a></b>`,
		"a &amp; b",
		`<a href="https://drive.example/s">Sheet</a>`,
		"<i>Due 2024-05-02 09:30 UTC</i>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("rendered text missing %q:\n%s", want, got)
		}
	}
}

func TestGroupsFromConfig(t *testing.T) {
	t.Parallel()
	p, err := New(Config{Token: "t", Groups: []GroupConfig{
		{Name: "Class A", ChatID: -100, ThreadID: 7},
		{Name: "ignored"},
	}}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gs, _ := p.Groups(context.Background())
	if len(gs) != 1 {
		t.Fatalf("groups = %+v", gs)
	}
	g := gs[0]
	if g.Key() != "telegram:-100" || g.Channel == nil || g.Channel.Thread != 7 || g.Everyone.Mention != "" {
		t.Fatalf("unexpected group %+v", g)
	}
}

func TestSendPostsHTML(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	p, err := New(Config{Token: "t", APIURL: srv.URL, Groups: []GroupConfig{{Name: "A", ChatID: -100}}}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gs, _ := p.Groups(context.Background())
	if err := p.Send(context.Background(), gs[0], kit.Message{Header: "Hello", Document: kit.Document{Title: "HW"}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(body["parse_mode"]) != "HTML" || !strings.Contains(fmt.Sprint(body["text"]), "<b>Hello</b>") {
		t.Fatalf("unexpected request %v", body)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
