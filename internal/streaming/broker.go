package streaming

import (
	"context"
	"errors"
	"strings"
)

const (
	EndSentinel = "[[STREAM_END]]"
	ErrorPrefix = "[[ERROR]]"

	channelPrefix = "lesson_stream:"
)

var ErrClosed = errors.New("stream subscription closed")

// Channel is the pub/sub channel name for a stream id.
func Channel(streamID string) string { return channelPrefix + streamID }

// ErrorMessage builds the in-band error terminator.
func ErrorMessage(detail string) string { return ErrorPrefix + " " + detail }

// ParseError reports whether msg is an error terminator and returns its detail.
func ParseError(msg string) (string, bool) {
	if !strings.HasPrefix(msg, ErrorPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(msg, ErrorPrefix)), true
}

// Broker carries one token stream from a single producer to a single consumer.
// Messages published before Subscribe are lost, so consumers subscribe first.
type Broker interface {
	Publish(ctx context.Context, streamID string, msg string) error
	Subscribe(ctx context.Context, streamID string) (Subscription, error)
	Close() error
}

type Subscription interface {
	Messages() <-chan string
	Close() error
}
