package middleware

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v9"
	"golang.org/x/time/rate"
)

const defaultLocalRateLimiterMaxKeys = 10_000

type limiterEntry struct {
	key      string
	limiter  *rate.Limiter
	period   time.Duration
	lastSeen time.Time
}

// LocalRateLimiter is an in-process RequestRateLimiter, one token bucket per key.
// Used when there is no redis to share the limits with.
// An entry idle for a whole limit period has a full bucket again, so it is
// dropped; at most maxKeys entries are held, the least recently seen go first.
type LocalRateLimiter struct {
	mutex    sync.Mutex
	limiters map[string]*list.Element
	// most recently seen at the front
	recency *list.List
	maxKeys int
	now     func() time.Time
}

var _ RequestRateLimiter = (*LocalRateLimiter)(nil)

func NewLocalRateLimiter() *LocalRateLimiter {
	return NewLocalRateLimiterWithMaxKeys(defaultLocalRateLimiterMaxKeys)
}

func NewLocalRateLimiterWithMaxKeys(maxKeys int) *LocalRateLimiter {
	if maxKeys <= 0 {
		maxKeys = defaultLocalRateLimiterMaxKeys
	}
	return &LocalRateLimiter{
		limiters: make(map[string]*list.Element),
		recency:  list.New(),
		maxKeys:  maxKeys,
		now:      time.Now,
	}
}

func (l *LocalRateLimiter) limiter(key string, limit redis_rate.Limit, now time.Time) *rate.Limiter {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if elem, ok := l.limiters[key]; ok {
		entry := elem.Value.(*limiterEntry)
		entry.lastSeen = now
		l.recency.MoveToFront(elem)
		return entry.limiter
	}

	l.sweep(now)
	for l.recency.Len() >= l.maxKeys {
		l.remove(l.recency.Back())
	}

	every := limit.Period / time.Duration(limit.Rate)
	entry := &limiterEntry{
		key:      key,
		limiter:  rate.NewLimiter(rate.Every(every), limit.Burst),
		period:   limit.Period,
		lastSeen: now,
	}
	l.limiters[key] = l.recency.PushFront(entry)
	return entry.limiter
}

// sweep drops the idle entries from the back of the recency list.
// Must hold the mutex.
func (l *LocalRateLimiter) sweep(now time.Time) {
	for elem := l.recency.Back(); elem != nil; elem = l.recency.Back() {
		entry := elem.Value.(*limiterEntry)
		if now.Sub(entry.lastSeen) < entry.period {
			return
		}
		l.remove(elem)
	}
}

func (l *LocalRateLimiter) remove(elem *list.Element) {
	entry := l.recency.Remove(elem).(*limiterEntry)
	delete(l.limiters, entry.key)
}

// Len returns the number of keys currently tracked.
func (l *LocalRateLimiter) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.limiters)
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	if limit.Rate <= 0 {
		return &redis_rate.Result{Limit: limit, Allowed: 1, RetryAfter: -1, ResetAfter: -1}, nil
	}

	now := l.now()
	lim := l.limiter(key, limit, now)
	reservation := lim.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return &redis_rate.Result{
			Limit:      limit,
			Allowed:    0,
			Remaining:  0,
			RetryAfter: delay,
			ResetAfter: delay,
		}, nil
	}

	return &redis_rate.Result{
		Limit:      limit,
		Allowed:    1,
		Remaining:  int(lim.TokensAt(now)),
		RetryAfter: -1,
		ResetAfter: limit.Period,
	}, nil
}
