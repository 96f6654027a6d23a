// Package sink delivers domain events and user notifications outside the
// request path. Producers enqueue without blocking; a worker pool drains
// the queue into the configured backends.
package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/asset-ledger/internal/core/domain"
	"github.com/rl1809/asset-ledger/internal/port"
)

var (
	ErrQueueFull = errors.New("sink queue full")
	ErrClosed    = errors.New("sink closed")
)

const deliveryTimeout = 5 * time.Second

type delivery struct {
	event        *domain.Event
	userID       string
	notification *domain.Notification
}

// Dispatcher implements port.AuditSink and port.NotificationSink.
type Dispatcher struct {
	queue     chan delivery
	audits    []port.AuditSink
	handlers  []port.EventHandler
	notifiers []port.NotificationSink
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var (
	_ port.AuditSink        = (*Dispatcher)(nil)
	_ port.NotificationSink = (*Dispatcher)(nil)
)

func NewDispatcher(queueSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  make(chan delivery, queueSize),
		logger: logger,
	}
}

// AddAudit registers an event backend. Call before Start.
func (d *Dispatcher) AddAudit(s port.AuditSink) { d.audits = append(d.audits, s) }

// AddHandler registers an event consumer such as a projection. Call before Start.
func (d *Dispatcher) AddHandler(h port.EventHandler) { d.handlers = append(d.handlers, h) }

// AddNotifier registers a notification backend. Call before Start.
func (d *Dispatcher) AddNotifier(n port.NotificationSink) { d.notifiers = append(d.notifiers, n) }

func (d *Dispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info("sink dispatcher started", zap.Int("workers", workers), zap.Int("queue_size", cap(d.queue)))
}

func (d *Dispatcher) Record(_ context.Context, event domain.Event) error {
	return d.enqueue(delivery{event: &event})
}

func (d *Dispatcher) Notify(_ context.Context, userID string, n domain.Notification) error {
	return d.enqueue(delivery{userID: userID, notification: &n})
}

func (d *Dispatcher) enqueue(job delivery) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued deliveries to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("sink dispatcher stopped")
}

func (d *Dispatcher) workerLoop(id int) {
	for job := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)

		if job.event != nil {
			d.deliverEvent(ctx, id, *job.event)
		}
		if job.notification != nil {
			d.deliverNotification(ctx, id, job.userID, *job.notification)
		}

		cancel()
	}
}

func (d *Dispatcher) deliverEvent(ctx context.Context, worker int, event domain.Event) {
	for _, audit := range d.audits {
		if err := audit.Record(ctx, event); err != nil {
			d.logger.Error("audit delivery failed",
				zap.Int("worker", worker),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
	for _, h := range d.handlers {
		if err := h.Handle(ctx, event); err != nil {
			d.logger.Error("event handler failed",
				zap.Int("worker", worker),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) deliverNotification(ctx context.Context, worker int, userID string, n domain.Notification) {
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, userID, n); err != nil {
			d.logger.Error("notification delivery failed",
				zap.Int("worker", worker),
				zap.String("user_id", userID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err),
			)
		}
	}
}
