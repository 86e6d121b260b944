package appointments

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clinicbook/internal/domain"
	"clinicbook/internal/monitoring"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultEventQueueSize = 256
)

type queuedEvent struct {
	ctx context.Context
	evt domain.AppointmentEvent
}

// eventDispatcher publishes events on a single goroutine so a slow broker never
// holds up a committed write. Events leave in the order they were queued.
type eventDispatcher struct {
	pub     EventPublisher
	timeout time.Duration
	metrics *monitoring.Metrics
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

func newEventDispatcher(pub EventPublisher, size int, timeout time.Duration, metrics *monitoring.Metrics, log *slog.Logger) *eventDispatcher {
	if size <= 0 {
		size = defaultEventQueueSize
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	d := &eventDispatcher{
		pub:     pub,
		timeout: timeout,
		metrics: metrics,
		log:     log,
		queue:   make(chan queuedEvent, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue never blocks. The request context is detached from its cancellation
// but keeps its values, so trace and request ids still reach the publisher.
func (d *eventDispatcher) enqueue(ctx context.Context, evt domain.AppointmentEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.closed {
		select {
		case d.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), evt: evt}:
			return
		default:
		}
	}

	d.metrics.ObserveEvent(string(evt.Type), monitoring.OutcomeDropped)
	d.log.ErrorContext(ctx, "event dropped",
		slog.String("event_id", evt.ID),
		slog.String("event_type", string(evt.Type)),
		slog.Int64("appointment_id", evt.Appointment.ID),
		slog.Bool("closed", d.closed),
	)
}

func (d *eventDispatcher) run() {
	defer close(d.done)
	for q := range d.queue {
		d.publish(q)
	}
}

func (d *eventDispatcher) publish(q queuedEvent) {
	ctx, cancel := context.WithTimeout(q.ctx, d.timeout)
	defer cancel()

	if err := d.pub.Publish(ctx, q.evt); err != nil {
		d.metrics.ObserveEvent(string(q.evt.Type), monitoring.OutcomeError)
		d.log.ErrorContext(ctx, "event publish failed",
			slog.String("event_id", q.evt.ID),
			slog.String("event_type", string(q.evt.Type)),
			slog.Int64("appointment_id", q.evt.Appointment.ID),
			slog.String("err", err.Error()),
		)
		return
	}
	d.metrics.ObserveEvent(string(q.evt.Type), monitoring.OutcomeOK)
}

// close stops accepting events and waits until the queued ones are sent or
// ctx expires.
func (d *eventDispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
