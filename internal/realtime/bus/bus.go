package bus

import (
	"context"

	"github.com/yungbote/coursebuilder-backend/internal/realtime"
)

// Bus carries realtime messages from worker processes to the process holding SSE clients.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
