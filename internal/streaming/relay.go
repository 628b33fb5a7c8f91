package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type Outcome string

const (
	OutcomeEnd        Outcome = "end"
	OutcomeError      Outcome = "error"
	OutcomeIdle       Outcome = "idle"
	OutcomeDisconnect Outcome = "disconnect"
)

const DefaultIdleTimeout = 120 * time.Second

// Relay copies a subscription to w until exactly one terminator has been written,
// the client goes away, or no message arrives within idle.
// Tokens are written raw. The end sentinel becomes a blank line and an error
// becomes an SSE error event. The subscription is always closed.
func Relay(ctx context.Context, w io.Writer, flush func(), sub Subscription, idle time.Duration) Outcome {
	defer sub.Close()
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if flush == nil {
		flush = func() {}
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()

	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return OutcomeDisconnect
		case <-timer.C:
			writeErrorEvent(w, "stream timed out")
			flush()
			return OutcomeIdle
		case msg, ok := <-msgs:
			if !ok {
				writeErrorEvent(w, "stream closed")
				flush()
				return OutcomeError
			}
			if msg == EndSentinel {
				_, _ = io.WriteString(w, "\n\n")
				flush()
				return OutcomeEnd
			}
			if detail, isErr := ParseError(msg); isErr {
				writeErrorEvent(w, detail)
				flush()
				return OutcomeError
			}
			if _, err := io.WriteString(w, msg); err != nil {
				return OutcomeDisconnect
			}
			flush()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		}
	}
}

func writeErrorEvent(w io.Writer, detail string) {
	b, _ := json.Marshal(map[string]string{"error": detail})
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", b)
}
