package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/airtext/internal/rooms"
	"github.com/mossy-p/airtext/internal/signaling"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"
)

var _ signaling.Observer = (*Mirror)(nil)

type fakeKV struct {
	mu      sync.Mutex
	values  map[string][]byte
	ttls    map[string]time.Duration
	stats   map[string]int64
	applied chan struct{}
	failSet bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{
		values:  make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
		stats:   make(map[string]int64),
		applied: make(chan struct{}, 64),
	}
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	if f.failSet {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	f.mu.Lock()
	f.values[key] = value.([]byte)
	f.ttls[key] = expiration
	f.mu.Unlock()
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "del")
	cmd.SetVal(n)
	return cmd
}

func (f *fakeKV) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	f.mu.Lock()
	f.stats[field] += incr
	v := f.stats[field]
	f.mu.Unlock()
	f.applied <- struct{}{}
	cmd := redis.NewIntCmd(ctx, "hincrby", key, field, incr)
	cmd.SetVal(v)
	return cmd
}

func (f *fakeKV) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.applied:
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d writes applied", i, n)
		}
	}
}

func TestMirror_RoomLifecycle(t *testing.T) {
	kv := newFakeKV()
	m := NewMirror(kv, 10*time.Minute, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	room := rooms.Room{Code: "K7M3Q9", CreatorID: "a", CreatedAt: created, LastActivityAt: created}
	m.RoomOpened(room)
	room.JoinerID = "b"
	m.RoomPaired(room)
	kv.wait(t, 2)

	kv.mu.Lock()
	data := kv.values[roomKeyPrefix+"K7M3Q9"]
	ttl := kv.ttls[roomKeyPrefix+"K7M3Q9"]
	kv.mu.Unlock()

	var rec RoomRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Code != "K7M3Q9" || rec.State != string(signaling.StatePaired) || !rec.CreatedAt.Equal(created) {
		t.Fatalf("record = %+v", rec)
	}
	if ttl != 10*time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	m.RoomClosed("K7M3Q9", signaling.ReasonPeerLeft)
	m.Relayed(signaling.EventOffer)
	m.Rejected(signaling.OpJoinRoom, signaling.ErrRoomFull)
	kv.wait(t, 3)

	kv.mu.Lock()
	defer kv.mu.Unlock()
	if _, ok := kv.values[roomKeyPrefix+"K7M3Q9"]; ok {
		t.Fatalf("closed room still mirrored")
	}
	for field, want := range map[string]int64{
		"opened":             1,
		"paired":             1,
		"closed:peer-left":   1,
		"relayed:offer":      1,
		"rejected:ROOM_FULL": 1,
	} {
		if kv.stats[field] != want {
			t.Fatalf("stat %s = %d, want %d", field, kv.stats[field], want)
		}
	}
}

func TestMirror_DropsWhenQueueFull(t *testing.T) {
	m := NewMirror(newFakeKV(), time.Minute, zaptest.NewLogger(t))
	// Run is not started, so the queue only fills.
	for i := 0; i < defaultQueueSize+5; i++ {
		m.Relayed(signaling.EventICECandidate)
	}
	if got := m.Dropped(); got != 5 {
		t.Fatalf("Dropped = %d, want 5", got)
	}
}

func TestMirror_WriteErrorsDoNotStopRun(t *testing.T) {
	kv := newFakeKV()
	kv.failSet = true
	m := NewMirror(kv, time.Minute, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.RoomOpened(rooms.Room{Code: "ABCDEF"})
	m.Relayed(signaling.EventAnswer)
	kv.wait(t, 2)
}
