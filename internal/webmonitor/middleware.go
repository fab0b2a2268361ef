package webmonitor

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yuyu-tech02/Blink-counter/internal/logger"
)

const (
	visitorIdle   = 10 * time.Minute
	sweepInterval = time.Minute
)

// contentSecurityPolicy builds the CSP header value. Configured sources
// extend the built-in ones; frame-ancestors replaces 'self' when set.
func contentSecurityPolicy(cfg Config) string {
	scriptSrc := append([]string{"'self'"}, cfg.ScriptSrc...)
	imgSrc := append([]string{"'self'", "data:", "blob:"}, cfg.ImgSrc...)
	connectSrc := append([]string{"'self'"}, cfg.ConnectSrc...)
	frameAncestors := cfg.FrameAncestors
	if len(frameAncestors) == 0 {
		frameAncestors = []string{"'self'"}
	}

	directives := []string{
		"default-src 'self'",
		"base-uri 'self'",
		"form-action 'self'",
		"object-src 'none'",
		"script-src " + strings.Join(scriptSrc, " "),
		"script-src-attr 'none'",
		"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com",
		"font-src 'self' https://fonts.gstatic.com",
		"img-src " + strings.Join(imgSrc, " "),
		"connect-src " + strings.Join(connectSrc, " "),
		"frame-ancestors " + strings.Join(frameAncestors, " "),
	}
	return strings.Join(directives, "; ")
}

// securityHeaders sets hardening headers on every response and disables
// caching of API responses.
func securityHeaders(cfg Config, next http.Handler) http.Handler {
	csp := contentSecurityPolicy(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("X-Permitted-Cross-Domain-Policies", "none")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client.
type rateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

// newRateLimiter returns nil when limiting is disabled.
func newRateLimiter(cfg Config) *rateLimiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return &rateLimiter{
		limit:      rate.Limit(cfg.RateLimit),
		burst:      cfg.RateBurst,
		trustProxy: cfg.TrustProxy,
		now:        time.Now,
		visitors:   make(map[string]*visitor),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > sweepInterval {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// clientKey identifies the client. X-Forwarded-For is only honoured behind a
// trusted proxy.
func (rl *rateLimiter) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if client := strings.TrimSpace(first); client != "" {
				return client
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// limited wraps a handler with the per-client rate limit.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.limiter.clientKey(r)
		if !s.limiter.allow(key) {
			s.metrics.RateLimited.Add(1)
			logger.Debug("WebMonitor", "Rate limited %s %s from %s", r.Method, r.URL.Path, key)
			w.Header().Set("Retry-After", "1")
			writeJSONWithStatus(w, map[string]any{"error": "too many requests"}, http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
