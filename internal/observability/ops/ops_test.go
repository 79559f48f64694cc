package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "classbot/pkg/logx"
)

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "m 1\n") })
	s := New(Config{}, Routes{Health: func() any { return map[string]string{"poll": "sleeping"} }, Metrics: metrics}, logx.Nop())
	srv := httptest.NewServer(s.Handler(Config{Pprof: true}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body["poll"] != "sleeping" {
		t.Fatalf("healthz body = %v", body)
	}

	for _, path := range []string{"/metrics", "/debug/pprof/"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestHandlerWithoutPprof(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Routes{}, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("pprof should be off, got %d", rec.Code)
	}
}

func TestTokenGuard(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Routes{}, logx.Nop())
	h := s.Handler(Config{Token: "sekrit"})

	tests := []struct {
		name string
		mod  func(r *http.Request)
		want int
	}{
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer sekrit") }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=sekrit" }, http.StatusOK},
		{"wrong", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			tt.mod(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDeliveriesRoute(t *testing.T) {
	t.Parallel()
	var gotLimit int
	fail := false
	s := New(Config{}, Routes{Deliveries: func(_ context.Context, limit int) (any, error) {
		gotLimit = limit
		if fail {
			return nil, errors.New("store down")
		}
		return []map[string]any{{"course": "Math", "ok": true}}, nil
	}}, logx.Nop())
	h := s.Handler(Config{})

	tests := []struct {
		query     string
		fail      bool
		wantCode  int
		wantLimit int
	}{
		{"", false, http.StatusOK, 0},
		{"?limit=5", false, http.StatusOK, 5},
		{"?limit=100000", false, http.StatusOK, maxDeliveriesLimit},
		{"?limit=-1", false, http.StatusBadRequest, -1},
		{"?limit=x", false, http.StatusBadRequest, -1},
		{"", true, http.StatusServiceUnavailable, 0},
	}
	for _, tt := range tests {
		gotLimit, fail = -1, tt.fail
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deliveries"+tt.query, nil))
		if rec.Code != tt.wantCode || gotLimit != tt.wantLimit {
			t.Fatalf("%q: code=%d limit=%d, want %d/%d", tt.query, rec.Code, gotLimit, tt.wantCode, tt.wantLimit)
		}
	}
}

func TestPprofPrefix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":             "/debug/pprof/",
		"/":            "/debug/pprof/",
		"ops/pprof":    "/ops/pprof/",
		"/x/debug/":    "/x/debug/",
		" /trim/me/  ": "/trim/me/",
	} {
		if got := pprofPrefix(in); got != want {
			t.Fatalf("pprofPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInsecureBindRefused(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Routes{}, logx.Nop())
	err := s.serve(context.Background(), &running{}, Config{Addr: "0.0.0.0:0"})
	if !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("serve err = %v, want ErrInsecureBind", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"bogus":          false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Routes{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never bound")
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	if s.Supervisor() != nil {
		t.Fatal("supervisor should be cleared after Stop")
	}
}
