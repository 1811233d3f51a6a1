package strava

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDetailLimit is the number of detail requests made before pausing.
	// It stays under Strava's 200 requests per 15 minutes.
	DefaultDetailLimit = 195
	// DefaultPause is the fixed pause: the 15 minute window plus 30 seconds.
	DefaultPause = 15*time.Minute + windowMargin

	rateWindow   = 15 * time.Minute
	windowMargin = 30 * time.Second
)

// rateHeaders are the limit/usage header pairs Strava sends.
// Each value is "<15 minute>,<daily>".
var rateHeaders = [][2]string{
	{"X-RateLimit-Limit", "X-RateLimit-Usage"},
	{"X-ReadRateLimit-Limit", "X-ReadRateLimit-Usage"},
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Usage is one observed rate limit pair.
type Usage struct {
	ShortLimit int
	ShortUsage int
	DailyLimit int
	DailyUsage int
}

func (u Usage) shortExhausted() bool {
	return u.ShortLimit > 0 && u.ShortUsage >= u.ShortLimit
}

func (u Usage) dailyExhausted() bool {
	return u.DailyLimit > 0 && u.DailyUsage >= u.DailyLimit
}

// Governor paces detail requests.
//
// Every call to Tick counts one request. After limit requests the governor
// sleeps for pause and starts counting from zero. Independently, when the
// last observed response headers show the 15 minute quota used up it sleeps
// until the next quarter hour, and when the daily quota is used up Wait
// fails with ErrRateLimited before the next request is sent.
type Governor struct {
	mu sync.Mutex

	limit  int
	pause  time.Duration
	count  int
	pauses int
	usage  []Usage

	sleep   SleepFunc
	now     func() time.Time
	onPause func(time.Duration)
	logger  Logger
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithSleep replaces the sleep function, mainly for tests.
func WithSleep(sleep SleepFunc) GovernorOption {
	return func(g *Governor) {
		g.sleep = sleep
	}
}

// WithClock replaces the clock used to find the next rate window.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) {
		g.now = now
	}
}

// WithPauseHook registers fn to be called before every pause.
func WithPauseHook(fn func(time.Duration)) GovernorOption {
	return func(g *Governor) {
		g.onPause = fn
	}
}

// WithGovernorLogger sets the logger for pause events.
func WithGovernorLogger(logger Logger) GovernorOption {
	return func(g *Governor) {
		g.logger = logger
	}
}

// NewGovernor returns a governor that pauses for pause after limit requests.
// Non-positive values select DefaultDetailLimit and DefaultPause.
func NewGovernor(limit int, pause time.Duration, opts ...GovernorOption) *Governor {
	if limit <= 0 {
		limit = DefaultDetailLimit
	}
	if pause <= 0 {
		pause = DefaultPause
	}

	g := &Governor{
		limit:  limit,
		pause:  pause,
		sleep:  Sleep,
		now:    time.Now,
		logger: nopLogger{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Observe records the rate limit headers of a response.
// Responses without rate limit headers leave the previous state untouched.
func (g *Governor) Observe(h http.Header) {
	var observed []Usage
	for _, pair := range rateHeaders {
		if u, ok := parseUsage(h.Get(pair[0]), h.Get(pair[1])); ok {
			observed = append(observed, u)
		}
	}
	if len(observed) == 0 {
		return
	}

	g.mu.Lock()
	g.usage = observed
	g.mu.Unlock()
}

// Wait is called before a request. It fails with ErrRateLimited when the
// last observed daily quota is used up.
func (g *Governor) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, u := range g.usage {
		if u.dailyExhausted() {
			return fmt.Errorf("daily quota used %d/%d: %w", u.DailyUsage, u.DailyLimit, ErrRateLimited)
		}
	}
	return nil
}

// Tick counts one completed request and pauses when a limit is reached.
func (g *Governor) Tick(ctx context.Context) error {
	g.mu.Lock()
	g.count++

	var wait time.Duration
	reason := ""
	switch {
	case g.shortExhausted():
		wait = untilNextWindow(g.now()) + windowMargin
		reason = "quota"
	case g.count >= g.limit:
		wait = g.pause
		reason = "count"
	}

	if wait == 0 {
		g.mu.Unlock()
		return nil
	}

	requests := g.count
	g.count = 0
	g.usage = nil
	g.pauses++
	onPause := g.onPause
	g.mu.Unlock()

	g.logger.Info("pausing for rate limit", "reason", reason, "requests", requests, "pause", wait.String())
	if onPause != nil {
		onPause(wait)
	}

	if err := g.sleep(ctx, wait); err != nil {
		return err
	}

	g.logger.Info("resuming after rate limit pause")
	return nil
}

// Pauses returns how many times the governor has paused.
func (g *Governor) Pauses() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pauses
}

func (g *Governor) shortExhausted() bool {
	for _, u := range g.usage {
		if u.shortExhausted() {
			return true
		}
	}
	return false
}

// untilNextWindow is the time until the next quarter hour. Strava's short
// windows reset at 0, 15, 30 and 45 minutes past the hour.
func untilNextWindow(now time.Time) time.Duration {
	next := now.Truncate(rateWindow).Add(rateWindow)
	return next.Sub(now)
}

// parseUsage parses a "<short>,<daily>" limit and usage header pair.
func parseUsage(limit, usage string) (Usage, bool) {
	if limit == "" || usage == "" {
		return Usage{}, false
	}

	l, ok := parsePair(limit)
	if !ok {
		return Usage{}, false
	}
	u, ok := parsePair(usage)
	if !ok {
		return Usage{}, false
	}

	return Usage{
		ShortLimit: l[0],
		ShortUsage: u[0],
		DailyLimit: l[1],
		DailyUsage: u[1],
	}, true
}

func parsePair(s string) ([2]int, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return [2]int{}, false
	}

	var out [2]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [2]int{}, false
		}
		out[i] = n
	}
	return out, true
}
