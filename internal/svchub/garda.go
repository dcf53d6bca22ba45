package svchub

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Garda is a per-key rate limiter used to track repeated auth
// failures (ban_pw) and 404 probing (ban_404), grounded on
// original_source/copyparty/svchub.py's "self.gpwd = Garda(args.ban_pw)"
// / "self.g404 = Garda(args.ban_404)". A spec string "hits,window,ban"
// (all in minutes except hits) configures the threshold; once a key
// accrues more than hits within window minutes, it is banned for ban
// minutes. An empty spec disables the limiter entirely.
type Garda struct {
	mu       sync.Mutex
	hits     int
	window   time.Duration
	ban      time.Duration
	disabled bool
	state    map[string]*gardaState
	now      func() time.Time
}

type gardaState struct {
	count       int
	windowStart time.Time
	bannedUntil time.Time
}

// NewGarda parses a "hits,window_minutes,ban_minutes" spec. A blank or
// malformed spec disables the limiter, matching the original's
// tolerance for an empty --ban-pw/--ban-404 default.
func NewGarda(spec string) *Garda {
	g := &Garda{state: map[string]*gardaState{}, now: time.Now}

	parts := strings.Split(spec, ",")
	if spec == "" || len(parts) != 3 {
		g.disabled = true
		return g
	}

	hits, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	windowMin, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	banMin, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil || hits <= 0 {
		g.disabled = true
		return g
	}

	g.hits = hits
	g.window = time.Duration(windowMin) * time.Minute
	g.ban = time.Duration(banMin) * time.Minute
	return g
}

// Hit records one offense for key and reports whether that offense
// just pushed the key over the threshold into a ban.
func (g *Garda) Hit(key string) bool {
	if g.disabled {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st, ok := g.state[key]
	if !ok || now.Sub(st.windowStart) > g.window {
		st = &gardaState{windowStart: now}
		g.state[key] = st
	}

	st.count++
	if st.count > g.hits {
		st.bannedUntil = now.Add(g.ban)
		return true
	}
	return false
}

// Banned reports whether key is currently serving a ban.
func (g *Garda) Banned(key string) bool {
	if g.disabled {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[key]
	if !ok {
		return false
	}
	return g.now().Before(st.bannedUntil)
}
