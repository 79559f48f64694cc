package ops

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"

	logx "classbot/pkg/logx"
)

const maxDeliveriesLimit = 500

// Handler builds the route table for cfg.
func (s *Service) Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	guard := func(h http.Handler) http.Handler { return requireToken(cfg.Token, h) }

	mux.Handle("GET /healthz", guard(http.HandlerFunc(s.serveHealth)))
	if s.routes.Metrics != nil {
		mux.Handle("GET /metrics", guard(s.routes.Metrics))
	}
	if s.routes.Deliveries != nil {
		mux.Handle("GET /deliveries", guard(http.HandlerFunc(s.serveDeliveries)))
	}
	if cfg.Pprof {
		prefix := pprofPrefix(cfg.PprofPrefix)
		mux.Handle(prefix, guard(pprofIndexAt(prefix)))
		for name, h := range map[string]http.HandlerFunc{
			"cmdline": hpprof.Cmdline,
			"profile": hpprof.Profile,
			"symbol":  hpprof.Symbol,
			"trace":   hpprof.Trace,
		} {
			mux.Handle(prefix+name, guard(h))
		}
	}
	return mux
}

func (s *Service) serveHealth(w http.ResponseWriter, _ *http.Request) {
	var body any = map[string]string{"status": "ok"}
	if s.routes.Health != nil {
		body = s.routes.Health()
	}
	writeJSON(w, http.StatusOK, body)
}

// serveDeliveries lists the newest delivery records; ?limit= caps the count.
func (s *Service) serveDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = min(n, maxDeliveriesLimit)
	}
	out, err := s.routes.Deliveries(r.Context(), limit)
	if err != nil {
		s.log.Warn("deliveries query failed", logx.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

// requireToken accepts "Authorization: Bearer <token>" or ?token=<token>.
func requireToken(token string, h http.Handler) http.Handler {
	want := strings.TrimSpace(token)
	if want == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			got = strings.TrimSpace(bearer)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func pprofPrefix(prefix string) string {
	p := "/" + strings.Trim(strings.TrimSpace(prefix), "/") + "/"
	if p == "//" {
		return "/debug/pprof/"
	}
	return p
}

// pprof.Index only understands /debug/pprof/; map custom prefixes onto it.
func pprofIndexAt(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	})
}
