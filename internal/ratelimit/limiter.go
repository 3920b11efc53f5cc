// Package ratelimit throttles manual dashboard refreshes and booking writes.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/fieldbook/internal/api/apiutil"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration.
type Config struct {
	RefreshCooldown    time.Duration // Minimum time between manual refreshes per owner (default: 10s)
	RefreshMaxPerHour  int           // Max manual refreshes per owner per hour (default: 60)
	ActionMaxIPPerHour int           // Max booking writes per client IP per hour (default: 120)

	// Clock for testing (nil uses real time)
	Clock Clock
}

func DefaultConfig() *Config {
	return &Config{
		RefreshCooldown:    10 * time.Second,
		RefreshMaxPerHour:  60,
		ActionMaxIPPerHour: 120,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

type entry struct {
	count   int
	firstAt time.Time // First request in window
	lastAt  time.Time // Most recent request (for cooldown)
}

type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex

	refreshByOwner map[int64]*entry
	actionsByIP    map[string]*entry

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:         cfg,
		clock:          clock,
		refreshByOwner: make(map[int64]*entry),
		actionsByIP:    make(map[string]*entry),
		cleanupCtx:     ctx,
		cleanupCancel:  cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// AllowRefresh checks and records a manual dashboard refresh for ownerID.
func (l *Limiter) AllowRefresh(ownerID int64) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.refreshByOwner[ownerID]
	if e != nil {
		if elapsed := now.Sub(e.lastAt); elapsed < l.config.RefreshCooldown {
			return LimitResult{RetryAfter: l.config.RefreshCooldown - elapsed, Reason: "cooldown"}
		}
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.RefreshMaxPerHour {
			return LimitResult{RetryAfter: time.Hour - now.Sub(e.firstAt), Reason: "hourly_limit"}
		}
	}
	l.refreshByOwner[ownerID] = bump(e, now)
	return LimitResult{Allowed: true}
}

// AllowAction checks and records a booking write from ip.
func (l *Limiter) AllowAction(ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.actionsByIP[ip]
	if e != nil && now.Sub(e.firstAt) < time.Hour && e.count >= l.config.ActionMaxIPPerHour {
		return LimitResult{RetryAfter: time.Hour - now.Sub(e.firstAt), Reason: "ip_hourly_limit"}
	}
	l.actionsByIP[ip] = bump(e, now)
	return LimitResult{Allowed: true}
}

// bump counts one request, starting a new window once an hour has passed.
func bump(e *entry, now time.Time) *entry {
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		return &entry{count: 1, firstAt: now, lastAt: now}
	}
	e.count++
	e.lastAt = now
	return e
}

// ActionMiddleware rejects booking writes over the per-IP budget with 429.
func (l *Limiter) ActionMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r, trustProxy)
			if result := l.AllowAction(ip); !result.Allowed {
				LogRateLimitExceeded(r, "booking_action", ip, result.Reason)
				WriteLimited(w, r, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteLimited answers 429 with a Retry-After header in whole seconds.
func WriteLimited(w http.ResponseWriter, r *http.Request, result LimitResult) {
	seconds := int(math.Ceil(result.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	apiutil.WriteError(w, r, apiutil.HandlerError{
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("Too many requests, retry in %ds", seconds),
	})
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.refreshByOwner {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.refreshByOwner, k)
		}
	}
	for k, e := range l.actionsByIP {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.actionsByIP, k)
		}
	}
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost public IP from X-Forwarded-For.
// When trustProxy is false, ignores X-Forwarded-For entirely.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func LogRateLimitExceeded(r *http.Request, limitType, key, reason string) {
	log.Ctx(r.Context()).Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("key", key).
		Str("reason", reason).
		Msg("Rate limit exceeded")
}
