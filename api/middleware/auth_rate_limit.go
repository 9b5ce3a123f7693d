package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

const maxPeekBytes = 64 << 10

// RateLimiterStore counts attempts in fixed windows; *redis.Client satisfies it.
type RateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy is one throttled credential endpoint.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) active() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// bucket is a single counter checked for a request.
type bucket struct {
	kind    string
	subject string
	limit   int
}

func (b bucket) scope(policy string) string {
	return b.kind + ":" + policy + ":" + b.subject
}

// AuthRateLimit caps login and register attempts per client address and per
// submitted email. Counter failures are logged and the request continues so a
// cache outage never locks customers out. A nil store disables the check.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, b := range policy.buckets(r) {
				allowed, count, err := store.FixedWindowAllow(ctx, b.scope(policy.name), int64(b.limit), policy.window)
				if err != nil {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{"policy": policy.name, "bucket": b.kind, "error": err.Error()}), "auth.rate_limit.unavailable")
					}
					continue
				}
				if !allowed {
					policy.reject(ctx, logg, w, b, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// buckets collects the counters for r. Reading the email restores the body for
// the next handler.
func (p AuthRateLimitPolicy) buckets(r *http.Request) []bucket {
	var out []bucket
	if p.ipLimit > 0 {
		if ip := remoteIP(r); ip != "" {
			out = append(out, bucket{kind: "ip", subject: ip, limit: p.ipLimit})
		}
	}
	if p.emailLimit > 0 && r.Body != nil {
		if email := peekEmail(r); email != "" {
			sum := sha256.Sum256([]byte(email))
			out = append(out, bucket{kind: "email", subject: hex.EncodeToString(sum[:]), limit: p.emailLimit})
		}
	}
	return out
}

func (p AuthRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, b bucket, count int64) {
	if logg != nil {
		fields := map[string]any{
			"policy":   p.name,
			"bucket":   b.kind,
			"attempts": count,
			"limit":    b.limit,
		}
		if b.kind == "ip" {
			fields["ip"] = b.subject
		} else {
			fields["email_hash"] = b.subject
		}
		logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.window.Round(time.Second)/time.Second)))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "Too many attempts. Please try again later."))
}

func peekEmail(r *http.Request) string {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	if err != nil {
		return ""
	}
	var probe struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(probe.Email))
}

// remoteIP prefers the first well-formed forwarded address, since the service
// runs behind a load balancer.
func remoteIP(r *http.Request) string {
	for _, candidate := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.String()
		}
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
