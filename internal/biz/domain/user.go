package domain

import "time"

// RateWindowLength is the fixed command-rate window
const RateWindowLength = 60 * time.Second

// RateWindow is a user's command-rate state
type RateWindow struct {
	Count        int
	ExpiresAt    time.Time
	Limited      bool
	LimitedUntil time.Time
}

// RateLimit configures the command-rate check
type RateLimit struct {
	MaxPerMinute int
	BlockTime    time.Duration
}

// RateDecision is the outcome of one rate check
type RateDecision struct {
	Allowed    bool
	RetryAfter time.Duration
	// JustLimited is set on the call that crossed the threshold
	JustLimited bool
}

// Consume applies one command attempt at now and returns the updated window.
// While limited, attempts are rejected without counting.
func (w RateWindow) Consume(now time.Time, limit RateLimit) (RateWindow, RateDecision) {
	if w.Limited {
		if now.Before(w.LimitedUntil) {
			return w, RateDecision{RetryAfter: w.LimitedUntil.Sub(now)}
		}
		w = RateWindow{}
	}

	if !now.Before(w.ExpiresAt) {
		w.Count = 1
		w.ExpiresAt = now.Add(RateWindowLength)
		return w, RateDecision{Allowed: true}
	}

	w.Count++
	if w.Count > limit.MaxPerMinute {
		w.Limited = true
		w.LimitedUntil = now.Add(limit.BlockTime)
		return w, RateDecision{RetryAfter: limit.BlockTime, JustLimited: true}
	}
	return w, RateDecision{Allowed: true}
}

// UserRecord is the per-user state
type UserRecord struct {
	UserID       string
	Name         string
	CommandCount int64
	Rate         RateWindow
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Activity is a participant's message counters in one group
type Activity struct {
	GroupID  string
	UserID   string
	Messages int64
	Text     int64
	Image    int64
	Media    int64
	Other    int64
	LastSeen time.Time
}
