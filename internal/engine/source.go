package engine

import (
	"context"
	"time"

	"biofilter_monitor/internal/clock"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/models"

	"github.com/google/uuid"
)

// eventTimeout bounds a single EventSink.Append.
const eventTimeout = 2 * time.Second

// Source supplies the latest metrics. It never retries internally; the Poller
// owns the retry policy.
type Source interface {
	Fetch(ctx context.Context) (models.Reading, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (models.Reading, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) (models.Reading, error) { return f(ctx) }

// Observer receives engine activity for metrics.
type Observer interface {
	FetchDone(ok bool, took time.Duration)
	BackoffDelay(d time.Duration)
	Phase(p string)
	OwnedFields(n int)
	RunFinished(cancelled bool)
}

// EventSink records engine events. Errors are logged by the caller and never
// interrupt the engine.
type EventSink interface {
	Append(ctx context.Context, ev models.EngineEvent) error
}

type nopObserver struct{}

func (nopObserver) FetchDone(bool, time.Duration) {}
func (nopObserver) BackoffDelay(time.Duration) {}
func (nopObserver) Phase(string) {}
func (nopObserver) OwnedFields(int) {}
func (nopObserver) RunFinished(bool) {}

type nopSink struct{}

func (nopSink) Append(context.Context, models.EngineEvent) error { return nil }

// emit stamps ev and hands it to sink. Failures are logged only.
func emit(sched clock.Scheduler, sink EventSink, log *logger.Logger, ev models.EngineEvent) {
	ev.EventID = uuid.NewString()
	ev.OccurredAt = sched.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := sink.Append(ctx, ev); err != nil {
		log.Warnw("event_append_failed", "type", ev.Type, "err", err)
	}
}
