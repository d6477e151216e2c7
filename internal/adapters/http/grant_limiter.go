package http

import (
	"sync"
	"time"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/gammazero/deque"
)

// keys above this count trigger a sweep of idle browsers
const grantSweepAt = 1024

type grantKey struct {
	client string
	room   domain.RoomName
}

// GrantLimiter caps how many tokens one browser gets for one room within a
// sliding window. Grant times are kept oldest first.
type GrantLimiter struct {
	mu     sync.Mutex
	grants map[grantKey]*deque.Deque[time.Time]
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewGrantLimiter allows everything when limit is not positive.
func NewGrantLimiter(limit int, window time.Duration) *GrantLimiter {
	return &GrantLimiter{
		grants: make(map[grantKey]*deque.Deque[time.Time]),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a grant for client in room. When refused it returns how long
// until the oldest grant leaves the window.
func (l *GrantLimiter) Allow(client string, room domain.RoomName) (time.Duration, bool) {
	if l.limit <= 0 {
		return 0, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := grantKey{client: client, room: room}
	q, ok := l.grants[key]
	if !ok {
		if len(l.grants) >= grantSweepAt {
			l.sweep(now)
		}
		q = new(deque.Deque[time.Time])
		l.grants[key] = q
	}
	l.expire(q, now)
	if q.Len() >= l.limit {
		return q.Front().Add(l.window).Sub(now), false
	}
	q.PushBack(now)
	return 0, true
}

// Len is the number of tracked browser and room pairs.
func (l *GrantLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.grants)
}

func (l *GrantLimiter) expire(q *deque.Deque[time.Time], now time.Time) {
	start := now.Add(-l.window)
	for q.Len() > 0 && !q.Front().After(start) {
		q.PopFront()
	}
}

func (l *GrantLimiter) sweep(now time.Time) {
	for key, q := range l.grants {
		l.expire(q, now)
		if q.Len() == 0 {
			delete(l.grants, key)
		}
	}
}
