package streaming

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

// RedisBroker relays streams over redis pub/sub so the worker and server can run apart.
type RedisBroker struct {
	log *logger.Logger
	rdb goredis.UniversalClient
}

func NewRedisBroker(log *logger.Logger, rdb goredis.UniversalClient) *RedisBroker {
	return &RedisBroker{log: log.With("service", "RedisStreamBroker"), rdb: rdb}
}

func (b *RedisBroker) Publish(ctx context.Context, streamID string, msg string) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis stream broker not initialized")
	}
	return b.rdb.Publish(ctx, Channel(streamID), msg).Err()
}

type redisSub struct {
	ps   *goredis.PubSub
	out  chan string
	stop chan struct{}
	once sync.Once
}

func (s *redisSub) Messages() <-chan string { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.ps.Close()
	})
	return err
}

func (b *RedisBroker) Subscribe(ctx context.Context, streamID string) (Subscription, error) {
	if b == nil || b.rdb == nil {
		return nil, fmt.Errorf("redis stream broker not initialized")
	}
	ps := b.rdb.Subscribe(ctx, Channel(streamID))
	// wait for the subscription to be confirmed so no early token is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	sub := &redisSub{ps: ps, out: make(chan string), stop: make(chan struct{})}
	go func() {
		defer close(sub.out)
		in := ps.Channel()
		for {
			select {
			case <-sub.stop:
				return
			case m, ok := <-in:
				if !ok || m == nil {
					return
				}
				select {
				case sub.out <- m.Payload:
				case <-sub.stop:
					return
				}
			}
		}
	}()
	return sub, nil
}

// Close is a no-op; the redis client is owned by the caller.
func (b *RedisBroker) Close() error { return nil }
