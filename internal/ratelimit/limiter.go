// Package ratelimit implements per-client token bucket admission control.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Config holds the bucket parameters shared by every client.
type Config struct {
	MaxTokens       int
	RefillRate      int // tokens per second
	CleanupInterval time.Duration
}

// DefaultConfig allows a burst of 100 operations refilled at 10 per second.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       100,
		RefillRate:      10,
		CleanupInterval: time.Minute,
	}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter keeps one lazily created bucket per client id. Refill is computed
// at check time, so no timer runs per client.
type Limiter struct {
	cfg    Config
	clock  Clock
	shards [shardCount]shard
}

func New(cfg Config, clock Clock) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.MaxTokens < 0 {
		cfg.MaxTokens = 0
	}
	if cfg.RefillRate < 0 {
		cfg.RefillRate = 0
	}
	l := &Limiter{cfg: cfg, clock: clock}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	return l
}

func (l *Limiter) shardFor(clientID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(clientID))
	return &l.shards[h.Sum32()%shardCount]
}

// bucketLocked returns the client's bucket, creating a full one if needed.
// The shard lock must be held.
func (l *Limiter) bucketLocked(s *shard, clientID string, now time.Time) *bucket {
	b, ok := s.buckets[clientID]
	if !ok {
		b = &bucket{tokens: l.cfg.MaxTokens, lastRefill: now}
		s.buckets[clientID] = b
	}
	return b
}

// refillLocked adds floor(elapsed * rate) tokens. lastRefill only moves when
// at least one token is added so partial progress toward the next token is
// not thrown away.
func (l *Limiter) refillLocked(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	rate := int64(l.cfg.RefillRate)
	add := int64(elapsed/time.Second)*rate + int64(elapsed%time.Second)*rate/int64(time.Second)
	if add <= 0 {
		return
	}
	if add > int64(l.cfg.MaxTokens-b.tokens) {
		b.tokens = l.cfg.MaxTokens
	} else {
		b.tokens += int(add)
	}
	b.lastRefill = now
}

// Check consumes cost tokens from the client's bucket and reports whether the
// operation is allowed. A denied check leaves the bucket unchanged.
func (l *Limiter) Check(clientID string, cost int) bool {
	if cost <= 0 {
		return true
	}
	now := l.clock.Now()
	s := l.shardFor(clientID)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := l.bucketLocked(s, clientID, now)
	l.refillLocked(b, now)
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Tokens returns the client's current token count after refill.
func (l *Limiter) Tokens(clientID string) int {
	now := l.clock.Now()
	s := l.shardFor(clientID)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := l.bucketLocked(s, clientID, now)
	l.refillLocked(b, now)
	return b.tokens
}

// Remove drops the client's bucket.
func (l *Limiter) Remove(clientID string) {
	s := l.shardFor(clientID)
	s.mu.Lock()
	delete(s.buckets, clientID)
	s.mu.Unlock()
}

// Sweep removes buckets whose last refill is older than the cleanup interval
// and returns how many were removed. Idleness is evaluated under the same
// shard lock Check uses, so a bucket refilled concurrently is kept.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, b := range s.buckets {
			if now.Sub(b.lastRefill) > l.cfg.CleanupInterval {
				delete(s.buckets, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

// Run sweeps idle buckets every cleanup interval until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.clock.Now())
		}
	}
}
