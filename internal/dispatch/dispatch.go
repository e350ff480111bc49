// Package dispatch fans out post-commit send events to notification sinks.
//
// Events are enqueued after the transaction is committed, so a sink failure
// can never affect the send outcome. The queue is bounded: when it is full
// the event is dropped and counted rather than blocking the send path.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/sendgate/internal/idgen"
)

// EventType identifies what happened to a send.
type EventType string

const (
	EventSendAccepted  EventType = "send.accepted"
	EventSendDelivered EventType = "send.delivered"
	EventSendFailed    EventType = "send.failed"
)

// Event is one post-commit notification.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TenantID  string         `json:"tenant_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(eventType EventType, tenantID string, data map[string]any) *Event {
	return &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Sink receives events. Handle errors are logged and counted; they are
// never propagated back to the producer.
type Sink interface {
	Name() string
	Handle(ctx context.Context, event *Event) error
}

// Dispatcher runs a bounded queue drained by a fixed worker pool.
type Dispatcher struct {
	queue   chan *Event
	sinks   []Sink
	workers int
	logger  *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher over the given sinks. queueSize bounds
// how many events may be pending; workers sets drain concurrency.
func NewDispatcher(sinks []Sink, queueSize, workers int, logger *slog.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 256
	}
	if workers < 1 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:   make(chan *Event, queueSize),
		sinks:   sinks,
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker pool. Workers exit when the queue is closed.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues an event without blocking. A full queue drops the event;
// the send has already committed, so losing a notification is acceptable
// where stalling the request path is not.
func (d *Dispatcher) Enqueue(event *Event) {
	select {
	case d.queue <- event:
		dispatchEnqueued.WithLabelValues(string(event.Type)).Inc()
		dispatchQueueDepth.Set(float64(len(d.queue)))
	default:
		dispatchDropped.WithLabelValues(string(event.Type)).Inc()
		d.logger.Warn("dispatch queue full, event dropped",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"tenant_id", event.TenantID,
		)
	}
}

// Shutdown stops intake and drains the queue, waiting up to ctx's deadline
// for in-flight sink deliveries to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.queue) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for event := range d.queue {
		dispatchQueueDepth.Set(float64(len(d.queue)))
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	err := sink.Handle(ctx, event)
	sinkLatency.WithLabelValues(sink.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		sinkFailures.WithLabelValues(sink.Name(), string(event.Type)).Inc()
		d.logger.Warn("dispatch sink failed",
			"sink", sink.Name(),
			"event_id", event.ID,
			"event_type", string(event.Type),
			"tenant_id", event.TenantID,
			"error", err,
		)
	}
}
