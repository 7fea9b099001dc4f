// Package rooms is the authoritative in-memory store of room pairings.
package rooms

import (
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/airtext/internal/ratelimit"
	"github.com/mossy-p/airtext/internal/roomcode"
)

const (
	shardCount          = 16
	maxGenerateAttempts = 100
)

type shard struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// Registry stores rooms in shards keyed by a hash of the code so that
// operations on unrelated rooms do not contend.
type Registry struct {
	clock    ratelimit.Clock
	generate roomcode.Generator
	shards   [shardCount]shard
}

type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(c ratelimit.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithGenerator overrides random code generation.
func WithGenerator(g roomcode.Generator) Option {
	return func(r *Registry) { r.generate = g }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock:    ratelimit.RealClock{},
		generate: roomcode.Generate,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i].rooms = make(map[string]*Room)
	}
	return r
}

func (r *Registry) shardFor(code string) *shard {
	h := fnv.New32a()
	h.Write([]byte(code))
	return &r.shards[h.Sum32()%shardCount]
}

// Create registers a new room owned by requesterID. With a desiredCode the
// room gets exactly that code; otherwise random codes are drawn until a free
// one is found.
func (r *Registry) Create(requesterID, desiredCode string) (string, error) {
	if desiredCode != "" {
		if !roomcode.Valid(desiredCode) {
			return "", ErrCodeInvalid
		}
		code := roomcode.Normalize(desiredCode)
		if !r.insert(code, requesterID) {
			return "", ErrCodeTaken
		}
		return code, nil
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := r.generate()
		if err != nil {
			return "", err
		}
		if !roomcode.Valid(code) {
			continue
		}
		code = roomcode.Normalize(code)
		if r.insert(code, requesterID) {
			return code, nil
		}
	}
	return "", ErrGenerationExhausted
}

func (r *Registry) insert(code, creatorID string) bool {
	s := r.shardFor(code)
	now := r.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[code]; exists {
		return false
	}
	s.rooms[code] = &Room{
		Code:           code,
		CreatorID:      creatorID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	return true
}

// Get returns a copy of the room. Malformed codes never reach storage.
func (r *Registry) Get(code string) (Room, bool) {
	if !roomcode.Valid(code) {
		return Room{}, false
	}
	code = roomcode.Normalize(code)
	s := r.shardFor(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return Room{}, false
	}
	return room.clone(), true
}

// update runs fn on the live room under its shard lock.
func (r *Registry) update(code string, fn func(*Room, time.Time) error) error {
	if !roomcode.Valid(code) {
		return ErrNotFound
	}
	code = roomcode.Normalize(code)
	s := r.shardFor(code)
	now := r.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return ErrNotFound
	}
	if err := fn(room, now); err != nil {
		return err
	}
	if now.After(room.LastActivityAt) {
		room.LastActivityAt = now
	}
	return nil
}

// SetJoiner binds clientID to the room's second seat. Exactly one caller
// can succeed per room.
func (r *Registry) SetJoiner(code, clientID string) error {
	return r.update(code, func(room *Room, _ time.Time) error {
		if room.JoinerID != "" {
			return ErrAlreadyFull
		}
		room.JoinerID = clientID
		return nil
	})
}

// RecordOffer stores the creator's negotiation description.
func (r *Registry) RecordOffer(code string, blob json.RawMessage) error {
	blob = cloneBlob(blob)
	return r.update(code, func(room *Room, _ time.Time) error {
		room.PendingOffer = blob
		return nil
	})
}

// RecordAnswer stores the joiner's negotiation response.
func (r *Registry) RecordAnswer(code string, blob json.RawMessage) error {
	blob = cloneBlob(blob)
	return r.update(code, func(room *Room, _ time.Time) error {
		room.PendingAnswer = blob
		return nil
	})
}

// Touch refreshes the room's activity timestamp.
func (r *Registry) Touch(code string) bool {
	return r.update(code, func(*Room, time.Time) error { return nil }) == nil
}

// Delete removes the room and reports whether it existed.
func (r *Registry) Delete(code string) bool {
	if !roomcode.Valid(code) {
		return false
	}
	code = roomcode.Normalize(code)
	s := r.shardFor(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[code]; !ok {
		return false
	}
	delete(s.rooms, code)
	return true
}

// DeleteIf removes the room only when remove reports true for its current
// state, returning the removed snapshot.
func (r *Registry) DeleteIf(code string, remove func(Room) bool) (Room, bool) {
	if !roomcode.Valid(code) {
		return Room{}, false
	}
	code = roomcode.Normalize(code)
	s := r.shardFor(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok || !remove(room.clone()) {
		return Room{}, false
	}
	delete(s.rooms, code)
	return room.clone(), true
}

// SweepExpired removes every room idle for longer than ttl and returns their
// codes in sorted order. Idleness is evaluated under the shard lock, so a
// room touched concurrently is never evicted on a stale reading.
func (r *Registry) SweepExpired(now time.Time, ttl time.Duration) []string {
	var removed []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for code, room := range s.rooms {
			if now.Sub(room.LastActivityAt) > ttl {
				delete(s.rooms, code)
				removed = append(removed, code)
			}
		}
		s.mu.Unlock()
	}
	sort.Strings(removed)
	return removed
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.rooms)
		s.mu.Unlock()
	}
	return n
}
