package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/coursebuilder-backend/internal/domain"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/runtime"
	"github.com/yungbote/coursebuilder-backend/internal/platform/apierr"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

type StreamRecorder interface {
	StreamFinished(outcome string)
}

// Bridge answers polls and holds lesson streams open.
type Bridge struct {
	log        *logger.Logger
	registry   *Registry
	dispatcher *Dispatcher
	broker     streaming.Broker
	metrics    StreamRecorder
	idle       time.Duration
}

func NewBridge(baseLog *logger.Logger, registry *Registry, dispatcher *Dispatcher, broker streaming.Broker, metrics StreamRecorder, idle time.Duration) *Bridge {
	if idle <= 0 {
		idle = streaming.DefaultIdleTimeout
	}
	return &Bridge{
		log:        baseLog.With("service", "StatusBridge"),
		registry:   registry,
		dispatcher: dispatcher,
		broker:     broker,
		metrics:    metrics,
		idle:       idle,
	}
}

func (b *Bridge) Status(ctx context.Context, kind string, userID uuid.UUID, handle uuid.UUID) (Status, error) {
	task, ok := b.registry.Get(kind)
	if !ok {
		return nil, apierr.NotFound("unknown_kind", fmt.Errorf("unknown generation kind %q", kind))
	}
	return task.ReadStatus(ctx, userID, handle)
}

// Stream is an accepted stream dispatch whose tokens have not been relayed yet.
type Stream struct {
	Accepted *Accepted
	sub      streaming.Subscription
	bridge   *Bridge
}

// OpenStream subscribes to a fresh stream id and only then dispatches, so the
// first token cannot be published before anyone listens.
func (b *Bridge) OpenStream(ctx context.Context, kind string, req Request) (*Stream, error) {
	task, ok := b.registry.Get(kind)
	if !ok {
		return nil, apierr.NotFound("unknown_kind", fmt.Errorf("unknown generation kind %q", kind))
	}
	if task.Spec().Form != FormStream {
		return nil, apierr.BadRequest("not_streamable", fmt.Errorf("%s cannot be streamed", task.Spec().Kind))
	}
	req.StreamID = uuid.NewString()
	sub, err := b.broker.Subscribe(ctx, req.StreamID)
	if err != nil {
		return nil, fmt.Errorf("subscribe stream: %w", err)
	}
	acc, err := b.dispatcher.Dispatch(ctx, kind, req)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &Stream{Accepted: acc, sub: sub, bridge: b}, nil
}

// Relay blocks until the stream terminates, idles out or ctx ends.
func (s *Stream) Relay(ctx context.Context, w io.Writer, flush func()) streaming.Outcome {
	out := streaming.Relay(ctx, w, flush, s.sub, s.bridge.idle)
	if s.bridge.metrics != nil {
		s.bridge.metrics.StreamFinished(string(out))
	}
	s.bridge.log.Debug("stream finished", "task_id", s.Accepted.TaskID, "outcome", out)
	return out
}

// Close releases a stream that will not be relayed.
func (s *Stream) Close() { _ = s.sub.Close() }

// TerminalHook lets the owning task record a final failure.
func (r *Registry) TerminalHook(log *logger.Logger) runtime.TerminalHook {
	return func(ctx context.Context, job *types.JobRun, cause error) {
		if job == nil {
			return
		}
		task, ok := r.Get(job.JobType)
		if !ok {
			return
		}
		if cause == nil {
			cause = errors.New("generation failed")
		}
		if err := task.Advance(ctx, job, cause); err != nil && log != nil {
			log.Warn("advance on terminal failure failed", "job_id", job.ID, "job_type", job.JobType, "error", err)
		}
	}
}
