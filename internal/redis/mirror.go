package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mossy-p/airtext/internal/rooms"
	"github.com/mossy-p/airtext/internal/signaling"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	roomKeyPrefix = "airtext:room:"
	statsKey      = "airtext:stats"

	defaultQueueSize = 256
	writeTimeout     = 2 * time.Second
)

// kv is the subset of the redis client the mirror writes through.
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
}

// RoomRecord is the mirrored view of a room. Client ids stay in memory.
type RoomRecord struct {
	Code           string    `msgpack:"code"`
	State          string    `msgpack:"state"`
	CreatedAt      time.Time `msgpack:"created_at"`
	LastActivityAt time.Time `msgpack:"last_activity_at"`
}

type mirrorOp struct {
	key    string
	record *RoomRecord // nil deletes key
	stat   string
}

// Mirror copies room lifecycle into redis for external dashboards. It
// implements signaling.Observer; writes happen on the Run goroutine and are
// dropped when the queue is full.
type Mirror struct {
	client kv
	ttl    time.Duration
	log    *zap.Logger
	queue  chan mirrorOp

	dropped atomic.Uint64
}

// NewMirror stores room records with the given ttl.
func NewMirror(client kv, ttl time.Duration, log *zap.Logger) *Mirror {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mirror{
		client: client,
		ttl:    ttl,
		log:    log,
		queue:  make(chan mirrorOp, defaultQueueSize),
	}
}

func (m *Mirror) RoomOpened(room rooms.Room) {
	m.enqueue(mirrorOp{key: roomKeyPrefix + room.Code, record: recordOf(room), stat: "opened"})
}

func (m *Mirror) RoomPaired(room rooms.Room) {
	m.enqueue(mirrorOp{key: roomKeyPrefix + room.Code, record: recordOf(room), stat: "paired"})
}

func (m *Mirror) RoomClosed(code string, reason signaling.CloseReason) {
	m.enqueue(mirrorOp{key: roomKeyPrefix + code, stat: "closed:" + string(reason)})
}

func (m *Mirror) Relayed(kind signaling.EventType) {
	m.enqueue(mirrorOp{stat: "relayed:" + string(kind)})
}

func (m *Mirror) Rejected(_ string, err error) {
	m.enqueue(mirrorOp{stat: "rejected:" + signaling.ErrorCode(err)})
}

// Dropped returns how many writes were discarded on a full queue.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Run applies queued writes until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-m.queue:
			m.apply(ctx, op)
		}
	}
}

func (m *Mirror) enqueue(op mirrorOp) {
	select {
	case m.queue <- op:
	default:
		m.dropped.Add(1)
	}
}

func (m *Mirror) apply(ctx context.Context, op mirrorOp) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if op.key != "" {
		if op.record != nil {
			data, err := msgpack.Marshal(op.record)
			if err != nil {
				m.log.Error("encode room record", zap.String("key", op.key), zap.Error(err))
				return
			}
			if err := m.client.Set(ctx, op.key, data, m.ttl).Err(); err != nil {
				m.log.Warn("mirror room", zap.String("key", op.key), zap.Error(err))
			}
		} else if err := m.client.Del(ctx, op.key).Err(); err != nil {
			m.log.Warn("unmirror room", zap.String("key", op.key), zap.Error(err))
		}
	}
	if op.stat != "" {
		if err := m.client.HIncrBy(ctx, statsKey, op.stat, 1).Err(); err != nil {
			m.log.Warn("mirror stat", zap.String("field", op.stat), zap.Error(err))
		}
	}
}

func recordOf(room rooms.Room) *RoomRecord {
	return &RoomRecord{
		Code:           room.Code,
		State:          string(signaling.StateOf(room)),
		CreatedAt:      room.CreatedAt,
		LastActivityAt: room.LastActivityAt,
	}
}
