// Package ratelimit enforces the two generation quotas: a small per-caller
// lifetime cap and a global cap that resets every UTC calendar day. Counters
// live in an externally-owned store reachable only through the CounterStore
// interface, never as in-process state, so the limiter scales horizontally.
//
// The default store keeps plain read-then-write semantics: the
// limiter reads the count, compares, and writes count+1 with no mutual
// exclusion, so concurrent requests in the same scope can overshoot. Stores
// that support an atomic increment-and-compare primitive can implement
// AtomicCounterStore and the limiter will prefer it.
//
// If the store is unreachable the limiter fails OPEN: feature availability
// is preferred over strict quota enforcement.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Denial reasons returned to the gateway and surfaced in 429 responses.
const (
	ReasonCallerLimit = "user_limit_exceeded"
	ReasonDailyLimit  = "daily_limit_exceeded"
)

// GlobalDailyKey is the counter key shared by all callers for the daily cap.
const GlobalDailyKey = "global_daily"

// CounterStore is the minimal contract to the external counter service.
// Window selects the quota window: empty for lifetime counters, a
// "YYYY-MM-DD" UTC date for daily ones. A stored count under a different
// window must read as zero.
type CounterStore interface {
	Count(ctx context.Context, key, window string) (int64, error)
	Put(ctx context.Context, key, window string, count int64) error
}

// AtomicCounterStore is an optional extension for stores that can increment
// and compare in one round trip, closing the read-then-write race.
// IncrementIfBelow must only consume a slot when the pre-increment count is
// below limit, and must report the resulting allowed decision. Decrement
// releases a previously consumed slot so the limiter can undo a partial
// consume when a later quota denies.
type AtomicCounterStore interface {
	IncrementIfBelow(ctx context.Context, key, window string, limit int64) (allowed bool, err error)
	Decrement(ctx context.Context, key, window string) error
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Limiter checks and consumes both quotas in order: per-caller first (cheaper
// and more specific), then global daily. Denial at either stage mutates no
// counter; only full success increments and persists both.
type Limiter struct {
	Store          CounterStore
	PerCallerLimit int64
	DailyLimit     int64

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// CheckAndConsume applies both quotas for callerID. Store failures are logged
// and the request is allowed (fail open).
func (l *Limiter) CheckAndConsume(ctx context.Context, callerID string) Decision {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	today := now().UTC().Format("2006-01-02")

	if atomic, ok := l.Store.(AtomicCounterStore); ok {
		return l.checkAtomic(ctx, atomic, callerID, today)
	}

	callerCount, err := l.Store.Count(ctx, callerID, "")
	if err != nil {
		return l.failOpen(callerID, err)
	}
	if callerCount >= l.PerCallerLimit {
		return Decision{Allowed: false, Reason: ReasonCallerLimit}
	}

	dailyCount, err := l.Store.Count(ctx, GlobalDailyKey, today)
	if err != nil {
		return l.failOpen(callerID, err)
	}
	if dailyCount >= l.DailyLimit {
		return Decision{Allowed: false, Reason: ReasonDailyLimit}
	}

	// Both checks passed: consume. Known race: another request may have
	// passed its own checks between our read and this write.
	if err := l.Store.Put(ctx, callerID, "", callerCount+1); err != nil {
		return l.failOpen(callerID, err)
	}
	if err := l.Store.Put(ctx, GlobalDailyKey, today, dailyCount+1); err != nil {
		return l.failOpen(callerID, err)
	}

	l.Logger.Info().
		Str("caller_id", callerID).
		Int64("caller_count", callerCount+1).
		Int64("caller_limit", l.PerCallerLimit).
		Int64("daily_count", dailyCount+1).
		Int64("daily_limit", l.DailyLimit).
		Msg("request allowed")
	return Decision{Allowed: true}
}

// checkAtomic runs both quotas through the store's atomic primitive. The
// per-caller check still runs first; when the daily cap then denies, the
// consumed caller slot is released again so a denial leaves every counter
// unchanged.
func (l *Limiter) checkAtomic(ctx context.Context, store AtomicCounterStore, callerID, today string) Decision {
	allowed, err := store.IncrementIfBelow(ctx, callerID, "", l.PerCallerLimit)
	if err != nil {
		return l.failOpen(callerID, err)
	}
	if !allowed {
		return Decision{Allowed: false, Reason: ReasonCallerLimit}
	}

	allowed, err = store.IncrementIfBelow(ctx, GlobalDailyKey, today, l.DailyLimit)
	if err != nil {
		return l.failOpen(callerID, err)
	}
	if !allowed {
		if derr := store.Decrement(ctx, callerID, ""); derr != nil {
			l.Logger.Error().
				Err(derr).
				Str("caller_id", callerID).
				Msg("failed to release caller slot after daily denial")
		}
		return Decision{Allowed: false, Reason: ReasonDailyLimit}
	}
	return Decision{Allowed: true}
}

// failOpen logs the store failure and allows the request.
func (l *Limiter) failOpen(callerID string, err error) Decision {
	l.Logger.Error().
		Err(err).
		Str("caller_id", callerID).
		Msg("rate limit check failed, failing open")
	return Decision{Allowed: true}
}
