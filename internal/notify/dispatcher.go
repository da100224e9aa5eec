package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/metrics"
)

const (
	// DefaultQueueSize bounds pending alerts.
	DefaultQueueSize = 64
	// DefaultDeliveryTimeout bounds a single delivery attempt.
	DefaultDeliveryTimeout = 30 * time.Second
)

// Dispatcher queues alerts and delivers them on a single worker so callers
// never wait on the mail server. Delivery failures are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	logger   *logging.Logger
	timeout  time.Duration
	clock    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Alert
	done   chan struct{}
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDeliveryTimeout sets the per-alert delivery timeout.
func WithDeliveryTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithClock sets the clock used to stamp alerts.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDispatcher starts a worker delivering to notifier. queueSize <= 0 uses
// DefaultQueueSize.
func NewDispatcher(notifier Notifier, queueSize int, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		notifier: notifier,
		logger:   logger,
		timeout:  DefaultDeliveryTimeout,
		clock:    time.Now,
		queue:    make(chan Alert, queueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.run()
	return d
}

// Alert enqueues an alert stamped with the current time.
func (d *Dispatcher) Alert(subject, body string) {
	if d == nil {
		return
	}
	d.Emit(Alert{Subject: subject, Body: body, At: d.clock()})
}

// Emit enqueues alert without blocking. It reports false when the queue is
// full or the dispatcher is closed.
func (d *Dispatcher) Emit(alert Alert) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.RecordAlert(alert.Subject, "dropped")
		return false
	}
	select {
	case d.queue <- alert:
		return true
	default:
		metrics.RecordAlert(alert.Subject, "dropped")
		if d.logger != nil {
			d.logger.Warn("Alert queue full, dropping alert", zap.String("subject", alert.Subject))
		}
		return false
	}
}

// Pending returns the number of queued alerts.
func (d *Dispatcher) Pending() int {
	if d == nil {
		return 0
	}
	return len(d.queue)
}

// Close stops accepting alerts and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
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
		return errors.Join(errors.New("alert queue not drained"), ctx.Err())
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for alert := range d.queue {
		d.deliver(alert)
	}
}

func (d *Dispatcher) deliver(alert Alert) {
	if d.notifier == nil {
		metrics.RecordAlert(alert.Subject, "dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, alert); err != nil {
		metrics.RecordAlert(alert.Subject, "failed")
		if d.logger != nil {
			d.logger.Error("Alert delivery failed",
				zap.String("subject", alert.Subject),
				zap.Error(err))
		}
		return
	}
	metrics.RecordAlert(alert.Subject, "delivered")
}
