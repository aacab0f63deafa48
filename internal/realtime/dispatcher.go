package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher accepts events from the mutation path. Publish never blocks.
type Publisher interface {
	Publish(e Event)
}

// Deliverer routes an encoded event to subscribers. The local Hub and the
// redis relay both implement it.
type Deliverer interface {
	Deliver(env Envelope) int
}

// Sink receives a copy of every event, e.g. the kafka export.
type Sink interface {
	Emit(ctx context.Context, env Envelope) error
}

const sinkTimeout = 5 * time.Second

// Dispatcher decouples mutations from delivery. Events are queued in a
// bounded channel and handed out by one goroutine in the order they were
// published, so two updates to the same entity reach a subscriber in
// emission order.
type Dispatcher struct {
	queue    chan Event
	deliver  Deliverer
	sinks    []Sink
	recorder Recorder
	logger   *slog.Logger

	wg sync.WaitGroup
}

func NewDispatcher(size int, deliver Deliverer, recorder Recorder, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(nopWriter{}, nil))
	}
	return &Dispatcher{
		queue:    make(chan Event, size),
		deliver:  deliver,
		sinks:    sinks,
		recorder: recorder,
		logger:   logger.With("component", "dispatcher"),
	}
}

// SetDeliverer replaces the deliverer. It must be called before Start; the
// hub usually depends on services that publish into this dispatcher.
func (d *Dispatcher) SetDeliverer(deliver Deliverer) {
	d.deliver = deliver
}

// Publish enqueues e, dropping it when the queue is full.
func (d *Dispatcher) Publish(e Event) {
	select {
	case d.queue <- e:
	default:
		d.recorder.EventDropped("queue")
		d.logger.Warn("event queue full, dropping event", "event", e.Name, "restaurant_id", e.RestaurantID)
	}
}

// Start runs the delivery loop until ctx is cancelled. Events still queued
// at cancellation are delivered before the loop exits.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-d.queue:
				d.dispatch(ctx, e)
			case <-ctx.Done():
				d.drain()
				return
			}
		}
	}()
}

// Wait blocks until the loop started by Start has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.queue:
			d.dispatch(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e Event) {
	env, err := e.Encode()
	if err != nil {
		d.logger.Error("failed to encode event", "event", e.Name, "error", err)
		return
	}

	if d.deliver != nil {
		n := d.deliver.Deliver(env)
		d.logger.Debug("event delivered", "event", env.Event, "restaurant_id", env.RestaurantID, "clients", n)
	}

	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		if err := sink.Emit(sinkCtx, env); err != nil {
			d.recorder.EventDropped("sink")
			d.logger.Debug("sink rejected event", "event", env.Event, "error", err)
		}
		cancel()
	}
}
