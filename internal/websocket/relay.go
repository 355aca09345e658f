package websocket

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const roomChannelPrefix = "chat:room:"

// RedisRelay рассылает кадры комнат через Redis pub/sub, чтобы их получили
// подписчики на всех инстансах. Локальная доставка идет из Run, в том числе для
// собственных публикаций.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger
}

func NewRedisRelay(client *redis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{client: client, hub: hub, log: log}
}

func roomChannel(roomID uuid.UUID) string {
	return roomChannelPrefix + roomID.String()
}

func (r *RedisRelay) Broadcast(ctx context.Context, roomID uuid.UUID, data []byte) error {
	if err := r.client.Publish(ctx, roomChannel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish to room %s: %w", roomID, err)
	}
	return nil
}

// Run пересылает опубликованные кадры локальным подписчикам до отмены ctx.
// ready закрывается, когда подписка установлена.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe rooms: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			roomID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, roomChannelPrefix))
			if err != nil {
				r.log.Warn("relay: bad channel", zap.String("channel", msg.Channel))
				continue
			}
			r.hub.SendToRoom(roomID, []byte(msg.Payload))
		}
	}
}

// roomLocks мьютекс на комнату; запись отпускается, когда им никто не пользуется
type roomLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[uuid.UUID]*roomLock)}
}

func (l *roomLocks) lock(roomID uuid.UUID) func() {
	l.mu.Lock()
	rl, ok := l.locks[roomID]
	if !ok {
		rl = &roomLock{}
		l.locks[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomID)
		}
		l.mu.Unlock()
	}
}
