// Package ratelimit bounds ingress admission per request origin with
// a sliding window. Requests over a cap are dropped, never queued.
package ratelimit

import (
	"sync"
	"time"
)

// Scope selects which cap applies to a request.
type Scope int

const (
	// ScopeGeneral covers every ingress request.
	ScopeGeneral Scope = iota
	// ScopeBlock covers block place/remove; it has its own, stricter
	// cap enforced independently of the general one.
	ScopeBlock
)

type Limiter struct {
	window     time.Duration
	generalMax int
	blockMax   int

	now func() time.Time

	mu      sync.Mutex
	origins map[string]*originWindow
}

type originWindow struct {
	general []time.Time
	block   []time.Time
}

func New(window time.Duration, generalMax, blockMax int) *Limiter {
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		window:     window,
		generalMax: generalMax,
		blockMax:   blockMax,
		now:        time.Now,
		origins:    make(map[string]*originWindow),
	}
}

// Allow records one request from origin and reports whether it is
// admitted. A block-scoped request counts against both caps.
func (l *Limiter) Allow(origin string, scope Scope) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.origins[origin]
	if w == nil {
		w = &originWindow{}
		l.origins[origin] = w
	}

	w.general = prune(w.general, now.Add(-l.window))
	if l.generalMax > 0 && len(w.general) >= l.generalMax {
		return false
	}
	if scope == ScopeBlock {
		w.block = prune(w.block, now.Add(-l.window))
		if l.blockMax > 0 && len(w.block) >= l.blockMax {
			return false
		}
		w.block = append(w.block, now)
	}
	w.general = append(w.general, now)
	return true
}

// Forget drops all window state for origin. Called when a session
// disconnects so the map does not grow without bound.
func (l *Limiter) Forget(origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.origins, origin)
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
