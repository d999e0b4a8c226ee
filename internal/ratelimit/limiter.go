package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beacon-api/beacon/internal/platform/httpx"
	"github.com/beacon-api/beacon/internal/shared"
)

// incrScript increments the window counter and stamps its expiry on the first
// hit in a single server-side step, so concurrent requests on the same key
// cannot race past the quota or leave an immortal counter.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces fixed-window quotas against a shared Redis counter store.
//
// The limiter fails closed: when the store is unreachable the request is
// denied with an infrastructure error, never admitted silently.
type Limiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLimiter constructs a Limiter.
func NewLimiter(client *redis.Client, logger *slog.Logger) *Limiter {
	return &Limiter{client: client, logger: logger}
}

// Allow increments the counter for key and reports whether the request fits
// within rule's quota. RetryAfter is derived from the counter's remaining TTL.
func (l *Limiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	res, err := incrScript.Run(ctx, l.client, []string{key}, rule.Window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: counter store: %v", shared.ErrUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: counter store: unexpected reply", shared.ErrUnavailable)
	}
	count, _ := res[0].(int64)
	ttlMillis, _ := res[1].(int64)

	if count > int64(rule.Quota) {
		retryAfter := time.Duration(ttlMillis) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = rule.Window
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return Decision{Allowed: true, Remaining: rule.Quota - int(count)}, nil
}

// Middleware returns an HTTP middleware enforcing the scope's rule, with any
// per-endpoint overrides applied. The counter key is built from the resolved
// client IP, the authenticated identity when present, the sanitized X-API-Key
// header, and the request path and method.
func (l *Limiter) Middleware(scope Scope, opts ...RuleOption) func(http.Handler) http.Handler {
	rule := RuleFor(scope, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP, err := ResolveClientIP(
				remoteIP(r),
				r.Header.Get("X-Forwarded-For"),
				r.Header.Get("X-Real-IP"),
			)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}

			parts := KeyParts{
				APIKey: sanitizeHeaderValue(r.Header.Get("X-API-Key")),
				IP:     clientIP,
				Path:   r.URL.Path,
				Method: r.Method,
			}
			if id := shared.IdentityFromContext(r.Context()); id != nil {
				parts.UserID = id.ID.String()
			}
			key := BuildKey(rule.Prefix, parts)

			decision, err := l.Allow(r.Context(), key, rule)
			if err != nil {
				if l.logger != nil {
					l.logger.Error("rate limit check failed", slog.Any("error", err), slog.String("key", key))
				}
				httpx.RespondError(w, err)
				return
			}
			if !decision.Allowed {
				if l.logger != nil {
					l.logger.Warn("rate limit exceeded", slog.String("key", key), slog.String("ip", clientIP))
				}
				seconds := int(decision.RetryAfter.Round(time.Second).Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", shared.ErrRateLimited.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// remoteIP strips the port from the connection's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
