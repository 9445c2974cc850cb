package ratelimit

import (
	"context"
	"sync"
	"time"

	"example.com/socialgraph/internal/logger"
)

var logg = logger.New()

// Rule configures one action: how much weighted cost fits into the rolling
// window before further attempts are rejected, and how heavily outcomes are
// recorded after the fact. Failed signups and logins carry the largest
// failure cost so that credential or username probing locks itself out fast.
type Rule struct {
	Window      time.Duration
	Threshold   float64
	SuccessCost float64
	FailureCost float64
}

// DefaultRules returns the per-action configuration. window scales every
// rule; actions not listed fall back to the "default" entry.
func DefaultRules(window time.Duration) map[string]Rule {
	return map[string]Rule{
		"signup":  {Window: window, Threshold: 5, SuccessCost: 0, FailureCost: 4},
		"login":   {Window: window, Threshold: 8, SuccessCost: 0, FailureCost: 4},
		"delete":  {Window: window, Threshold: 3, SuccessCost: 1, FailureCost: 2},
		"default": {Window: window, Threshold: 30, SuccessCost: 0, FailureCost: 1},
	}
}

type attempt struct {
	at   time.Time
	cost float64
}

// Limiter tracks weighted attempts per (action, origin) key. Admit and
// Record run under one mutex, so the threshold check and the attempt write
// are a single atomic step for concurrent callers on the same key.
type Limiter struct {
	mu       sync.Mutex
	rules    map[string]Rule
	attempts map[key][]attempt
	now      func() time.Time
}

type key struct {
	Action string
	Origin string
}

// New creates a Limiter with the given rules; a "default" rule must be
// present for unlisted actions.
func New(rules map[string]Rule) *Limiter {
	return &Limiter{
		rules:    rules,
		attempts: make(map[key][]attempt),
		now:      time.Now,
	}
}

func (l *Limiter) rule(action string) Rule {
	if r, ok := l.rules[action]; ok {
		return r
	}
	return l.rules["default"]
}

// Admit reports whether an attempt for (action, origin) may proceed. When the
// weighted cost inside the window has reached the action's threshold, it
// returns false and records nothing; otherwise it records the attempt at
// unit cost and returns true.
func (l *Limiter) Admit(action, origin string) bool {
	r := l.rule(action)
	k := key{Action: action, Origin: origin}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(k, now.Add(-r.Window))

	var weight float64
	for _, a := range kept {
		weight += a.cost
	}
	if weight >= r.Threshold {
		return false
	}

	l.attempts[k] = append(kept, attempt{at: now, cost: 1})
	return true
}

// Record logs extra weighted cost for a completed attempt. Zero cost is
// dropped on the floor.
func (l *Limiter) Record(action, origin string, cost float64) {
	if cost <= 0 {
		return
	}
	k := key{Action: action, Origin: origin}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(k, now.Add(-l.rule(action).Window))
	l.attempts[k] = append(kept, attempt{at: now, cost: cost})
}

// RecordOutcome applies the action's configured success or failure cost.
func (l *Limiter) RecordOutcome(action, origin string, ok bool) {
	r := l.rule(action)
	if ok {
		l.Record(action, origin, r.SuccessCost)
	} else {
		l.Record(action, origin, r.FailureCost)
	}
}

// prune drops attempts older than cutoff. Caller holds the lock.
func (l *Limiter) prune(k key, cutoff time.Time) []attempt {
	kept := l.attempts[k][:0]
	for _, a := range l.attempts[k] {
		if a.at.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, k)
		return nil
	}
	l.attempts[k] = kept
	return kept
}

// Sweep periodically evicts keys whose every attempt fell out of its window.
// Eviction is hygiene, not correctness: Admit prunes on read anyway.
func (l *Limiter) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweepOnce()
		}
	}
}

func (l *Limiter) sweepOnce() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for k := range l.attempts {
		if len(l.prune(k, now.Add(-l.rule(k.Action).Window))) == 0 {
			evicted++
		}
	}
	if evicted > 0 {
		logg.Debug("ratelimit", "Evicted expired rate limit keys")
	}
}
