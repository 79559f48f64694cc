// Package ops serves the operator HTTP surface: /healthz, /metrics,
// /deliveries and, optionally, net/http/pprof.
package ops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "classbot/internal/runtime/supervisor"
	logx "classbot/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9090"

// Config controls the ops HTTP server.
//
// Binding to a non-loopback address requires Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	Pprof       bool
	PprofPrefix string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Routes supplies the data behind the endpoints. Nil members disable their
// route (a nil Health serves a bare {"status":"ok"}).
type Routes struct {
	Health     func() any
	Metrics    http.Handler
	Deliveries func(ctx context.Context, limit int) (any, error)
}

// ErrInsecureBind is returned when a non-loopback bind has no token.
var ErrInsecureBind = errors.New("ops: non-loopback addr requires token or allow_insecure")

type Service struct {
	log    logx.Logger
	routes Routes

	mu  sync.Mutex
	cfg Config
	run *running
}

// running is one Start..Stop span of the server.
type running struct {
	sup *rtsup.Supervisor

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, routes Routes, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, routes: routes, log: log.With(logx.String("comp", "ops"))}
}

// Supervisor returns the server supervisor, nil while stopped.
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run.sup
}

// Addr is the bound listen address, empty while not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return ""
	}
	return r.ln.Addr().String()
}

// Reconfigure applies cfg, then starts, stops or restarts the server when
// the effective settings changed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	changed := s.cfg != cfg
	wasRunning := s.run != nil
	s.cfg = cfg
	s.mu.Unlock()

	if wasRunning && (changed || !cfg.Enabled) {
		s.Stop(ctx)
	}
	if cfg.Enabled {
		s.Start(ctx)
	}
}

// Start launches the server under a restarting supervisor and returns
// immediately. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil || !s.cfg.Enabled {
		return
	}
	// The server outlives the caller's context; only Stop ends it.
	r := &running{sup: rtsup.NewSupervisor(context.WithoutCancel(ctx),
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)}
	s.run = r
	cfg := s.cfg
	r.sup.GoRestart("http.serve", func(c context.Context) error { return s.serve(c, r, cfg) },
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Stop shuts the server down and waits for it, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()
	if r == nil {
		return
	}

	r.sup.Cancel()
	r.mu.Lock()
	srv := r.srv
	r.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	_ = r.sup.Wait(ctx)
	s.log.Info("ops server stopped")
}

func (s *Service) serve(ctx context.Context, r *running, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("ops server refused to start", logx.String("addr", addr), logx.Err(ErrInsecureBind))
		return ErrInsecureBind
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	r.mu.Lock()
	r.ln, r.srv = ln, srv
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.ln, r.srv = nil, nil
		r.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", cfg.Pprof),
		logx.Bool("token_set", cfg.Token != ""))

	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(h) == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
