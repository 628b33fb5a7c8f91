package streaming

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
)

type safeBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func publishAll(t *testing.T, b Broker, id string, msgs ...string) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, b.Publish(context.Background(), id, m))
	}
}

func TestParseError(t *testing.T) {
	d, ok := ParseError(ErrorMessage("Lesson or Course not found"))
	assert.True(t, ok)
	assert.Equal(t, "Lesson or Course not found", d)
	_, ok = ParseError("token")
	assert.False(t, ok)
}

func TestRelayWritesTokensThenBlankLine(t *testing.T) {
	b := NewLocalBroker(16)
	sub, err := b.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	publishAll(t, b, "s1", "# Intro", "\nHello ", "world", EndSentinel, "late")

	var out bytes.Buffer
	got := Relay(context.Background(), &out, nil, sub, time.Second)
	assert.Equal(t, OutcomeEnd, got)
	assert.Equal(t, "# Intro\nHello world\n\n", out.String())
}

func TestRelayEmitsSingleErrorEvent(t *testing.T) {
	b := NewLocalBroker(16)
	sub, _ := b.Subscribe(context.Background(), "s2")
	publishAll(t, b, "s2", "partial", ErrorMessage("boom"), EndSentinel)

	var out bytes.Buffer
	got := Relay(context.Background(), &out, nil, sub, time.Second)
	assert.Equal(t, OutcomeError, got)
	assert.Equal(t, "partialevent: error\ndata: {\"error\":\"boom\"}\n\n", out.String())
	assert.Equal(t, 1, strings.Count(out.String(), "event: error"))
	assert.NotContains(t, out.String(), "\n\n\n")
}

func TestRelayIdleTimeout(t *testing.T) {
	b := NewLocalBroker(1)
	sub, _ := b.Subscribe(context.Background(), "s3")
	var out bytes.Buffer
	got := Relay(context.Background(), &out, nil, sub, 20*time.Millisecond)
	assert.Equal(t, OutcomeIdle, got)
	assert.Contains(t, out.String(), "stream timed out")
}

func TestRelayDisconnectClosesSubscription(t *testing.T) {
	b := NewLocalBroker(1)
	sub, _ := b.Subscribe(context.Background(), "s4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	assert.Equal(t, OutcomeDisconnect, Relay(ctx, &out, nil, sub, time.Second))
	assert.Empty(t, out.String())

	// producer is released instead of blocking on a dead stream
	require.NoError(t, b.Publish(context.Background(), "s4", "x"))
}

func TestLocalPublishWithoutSubscriberIsDropped(t *testing.T) {
	b := NewLocalBroker(1)
	require.NoError(t, b.Publish(context.Background(), "nobody", "x"))
}

func TestLocalPublishBlocksUntilClosed(t *testing.T) {
	b := NewLocalBroker(1)
	sub, _ := b.Subscribe(context.Background(), "s5")
	require.NoError(t, b.Publish(context.Background(), "s5", "fills buffer"))

	errCh := make(chan error, 1)
	go func() { errCh <- b.Publish(context.Background(), "s5", "blocked") }()
	time.Sleep(10 * time.Millisecond)
	_ = sub.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after close")
	}
}

func TestRedisBrokerRelaysInOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := NewRedisBroker(logger.Nop(), rdb)

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, len(mr.PubSubChannels("lesson_stream:*")))

	var out safeBuffer
	done := make(chan Outcome, 1)
	go func() { done <- Relay(context.Background(), &out, nil, sub, 2*time.Second) }()

	publishAll(t, b, "abc", "a", "b", "c", EndSentinel)
	select {
	case got := <-done:
		assert.Equal(t, OutcomeEnd, got)
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not finish")
	}
	assert.Equal(t, "abc\n\n", out.String())
}
