package http

import "time"

// frameLimiter caps inbound frames per connection over a fixed one
// minute window. A limit of 0 disables it. Only the read loop touches
// it, so no locking.
type frameLimiter struct {
	limit       int
	count       int
	windowStart time.Time
}

func newFrameLimiter(limit int) *frameLimiter {
	return &frameLimiter{limit: limit}
}

func (l *frameLimiter) allow(now time.Time) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	if now.Sub(l.windowStart) >= time.Minute {
		l.windowStart = now
		l.count = 0
	}
	l.count++
	return l.count <= l.limit
}
