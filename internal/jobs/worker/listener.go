package worker

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// EnqueueChannel is the Postgres NOTIFY channel signalled after a job_run insert commits.
const EnqueueChannel = "job_run_enqueued"

// Listen wakes the pool on every notification sent to EnqueueChannel by another process.
// It returns when ctx is canceled. Polling keeps working if the listener connection drops.
func (w *Worker) Listen(ctx context.Context, dsn string) error {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			w.log.Warn("Queue listener event", "event", int(ev), "error", err)
		}
	}
	l := pq.NewListener(dsn, 2*time.Second, time.Minute, report)
	defer l.Close()
	if err := l.Listen(EnqueueChannel); err != nil {
		return err
	}
	w.log.Info("Listening for queue notifications", "channel", EnqueueChannel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.Notify:
			// A nil notification follows a reconnect; polling covers anything missed.
			w.Wake()
		case <-ping.C:
			go func() { _ = l.Ping() }()
		}
	}
}
