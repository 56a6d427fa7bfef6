package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxKeys bounds the number of tracked keys when New is used.
const DefaultMaxKeys = 10000

type entry struct {
	key  string
	lim  *rate.Limiter
	last time.Time
	elem *list.Element
}

// Limiter is a per-key token bucket. Every key gets capacity tokens that
// refill at refillPerSec. At most maxKeys keys are tracked; the least
// recently seen key is evicted first, and an evicted key starts over with a
// full bucket.
type Limiter struct {
	mu       sync.Mutex
	m        map[string]*entry
	lru      *list.List // front = most recently seen
	capacity float64
	refill   rate.Limit
	maxKeys  int
	now      func() time.Time
}

func New(capacity, refillPerSec float64) *Limiter {
	return NewWithMaxKeys(capacity, refillPerSec, DefaultMaxKeys)
}

// NewWithMaxKeys is New with an explicit key bound.
func NewWithMaxKeys(capacity, refillPerSec float64, maxKeys int) *Limiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Limiter{
		m:        make(map[string]*entry),
		lru:      list.New(),
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		maxKeys:  maxKeys,
		now:      time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.maxKeys {
			l.evictOldestLocked()
		}
		e = &entry{key: key, lim: rate.NewLimiter(l.refill, int(l.capacity))}
		e.elem = l.lru.PushFront(e)
		l.m[key] = e
	} else {
		l.lru.MoveToFront(e.elem)
	}
	e.last = now
	return e.lim.AllowN(now, 1)
}

func (l *Limiter) evictOldestLocked() {
	back := l.lru.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	l.lru.Remove(back)
	delete(l.m, e.key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Prune drops keys unseen for at least idle whose bucket has refilled.
func (l *Limiter) Prune(idle time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for el := l.lru.Back(); el != nil; {
		e := el.Value.(*entry)
		if now.Sub(e.last) < idle {
			break
		}
		prev := el.Prev()
		if e.lim.TokensAt(now) >= l.capacity {
			l.lru.Remove(el)
			delete(l.m, e.key)
			n++
		}
		el = prev
	}
	return n
}

// Run prunes idle keys every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(idle)
		}
	}
}
