package streaming

import (
	"context"
	"sync"
)

const defaultLocalBuffer = 1024

// LocalBroker is an in-process broker for running the server and worker together.
// Each stream gets a bounded channel; a full channel blocks the producer.
type LocalBroker struct {
	mu      sync.Mutex
	buffer  int
	streams map[string]*localSub
}

func NewLocalBroker(buffer int) *LocalBroker {
	if buffer <= 0 {
		buffer = defaultLocalBuffer
	}
	return &LocalBroker{buffer: buffer, streams: map[string]*localSub{}}
}

type localSub struct {
	broker   *LocalBroker
	streamID string
	ch       chan string
	done     chan struct{}
	once     sync.Once
}

func (s *localSub) Messages() <-chan string { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.broker.mu.Lock()
		if cur, ok := s.broker.streams[s.streamID]; ok && cur == s {
			delete(s.broker.streams, s.streamID)
		}
		s.broker.mu.Unlock()
	})
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, streamID string) (Subscription, error) {
	sub := &localSub{
		broker:   b,
		streamID: streamID,
		ch:       make(chan string, b.buffer),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	if prev, ok := b.streams[streamID]; ok {
		b.mu.Unlock()
		_ = prev.Close()
		b.mu.Lock()
	}
	b.streams[streamID] = sub
	b.mu.Unlock()
	return sub, nil
}

// Publish drops the message when nobody is subscribed, like redis pub/sub.
func (b *LocalBroker) Publish(ctx context.Context, streamID string, msg string) error {
	b.mu.Lock()
	sub, ok := b.streams[streamID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case sub.ch <- msg:
		return nil
	case <-sub.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	subs := make([]*localSub, 0, len(b.streams))
	for _, s := range b.streams {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}
