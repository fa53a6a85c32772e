package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mkravets/omnibot/internal/logger"
)

var (
	ErrQueueFull      = errors.New("publish queue is full")
	ErrAlreadyStarted = errors.New("message bus is already started")
	ErrNotStarted     = errors.New("message bus is not started")
)

// Subscription is one subscriber's view of a topic. The subscriber owns the
// queue exclusively for reads; a single distributor goroutine per topic is
// the only writer, which is what makes drop-oldest delivery safe without a
// lock around the queue itself.
type Subscription[T any] struct {
	id      int64
	ch      chan T
	dropped atomic.Uint64
	cancel  func()
}

// C returns the receive channel. Values arrive in publish order; when the
// subscriber lags past the queue size, the oldest unread value is dropped.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped returns how many values were dropped for this subscriber.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

// Close removes the subscription from its topic.
func (s *Subscription[T]) Close() { s.cancel() }

// topic is one named fan-out queue inside the bus.
type topic[T any] struct {
	name      string
	mu        sync.RWMutex
	publishCh chan T
	subs      map[int64]*Subscription[T]
	nextID    int64
	queueSize int
	metrics   *Metrics
	logger    *logger.Logger
}

func newTopic[T any](name string, capacity, queueSize int, m *Metrics, log *logger.Logger) *topic[T] {
	return &topic[T]{
		name:      name,
		publishCh: make(chan T, capacity),
		subs:      make(map[int64]*Subscription[T]),
		queueSize: queueSize,
		metrics:   m,
		logger:    log,
	}
}

func (t *topic[T]) publish(v T) error {
	select {
	case t.publishCh <- v:
		t.metrics.published.WithLabelValues(t.name).Inc()
		return nil
	default:
		t.logger.Warn("publish queue full", logger.Field{Key: "topic", Value: t.name})
		return ErrQueueFull
	}
}

func (t *topic[T]) subscribe() *Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	sub := &Subscription[T]{
		id: id,
		ch: make(chan T, t.queueSize),
	}
	sub.cancel = func() { t.unsubscribe(id) }
	t.subs[id] = sub
	return sub
}

func (t *topic[T]) unsubscribe(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(sub.ch)
	}
}

// distribute fans published values out to every current subscriber. Runs as
// a single goroutine per topic so per-subscriber delivery keeps publish order.
func (t *topic[T]) distribute(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-t.publishCh:
			if !ok {
				return
			}
			t.mu.RLock()
			for _, sub := range t.subs {
				t.deliver(sub, v)
			}
			t.mu.RUnlock()
		}
	}
}

// deliver enqueues v for one subscriber. A full queue sheds the oldest
// unread value so publishers are never blocked by a slow subscriber.
func (t *topic[T]) deliver(sub *Subscription[T], v T) {
	select {
	case sub.ch <- v:
		return
	default:
	}

	// Queue full: evict the oldest unread value, then retry once. The
	// consumer may have drained concurrently, in which case nothing is lost.
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		t.metrics.dropped.WithLabelValues(t.name).Inc()
		t.logger.Debug("subscriber queue full, dropped oldest",
			logger.Field{Key: "topic", Value: t.name},
			logger.Field{Key: "subscriber_id", Value: sub.id})
	default:
	}

	select {
	case sub.ch <- v:
	default:
	}
}

func (t *topic[T]) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
	close(t.publishCh)
}

// MessageBus is the in-process hub over the inbound, outbound, and event
// topics. Publish never waits for consumption; subscribe sees only values
// published after the call.
type MessageBus struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool

	inbound  *topic[InboundMessage]
	outbound *topic[OutboundMessage]
	events   *topic[Event]
}

// New creates a MessageBus. capacity sizes each topic's publish queue,
// queueSize each subscriber's delivery queue.
func New(capacity, queueSize int, metrics *Metrics, log *logger.Logger) *MessageBus {
	return &MessageBus{
		logger:   log,
		inbound:  newTopic[InboundMessage]("inbound", capacity, queueSize, metrics, log),
		outbound: newTopic[OutboundMessage]("outbound", capacity, queueSize, metrics, log),
		events:   newTopic[Event]("event", capacity, queueSize, metrics, log),
	}
}

// Start launches the distributor goroutines.
func (mb *MessageBus) Start(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.started {
		return ErrAlreadyStarted
	}

	mb.ctx, mb.cancel = context.WithCancel(ctx)
	mb.started = true

	go mb.inbound.distribute(mb.ctx)
	go mb.outbound.distribute(mb.ctx)
	go mb.events.distribute(mb.ctx)

	mb.logger.Info("message bus started",
		logger.Field{Key: "capacity", Value: cap(mb.inbound.publishCh)})
	return nil
}

// Stop cancels distribution and closes all subscriber channels.
func (mb *MessageBus) Stop() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if !mb.started {
		return ErrNotStarted
	}

	mb.cancel()
	mb.inbound.closeAll()
	mb.outbound.closeAll()
	mb.events.closeAll()
	mb.started = false

	mb.logger.Info("message bus stopped")
	return nil
}

// IsStarted reports whether the bus is running.
func (mb *MessageBus) IsStarted() bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.started
}

// PublishInbound enqueues an inbound message for all current subscribers.
func (mb *MessageBus) PublishInbound(msg InboundMessage) error {
	if !mb.IsStarted() {
		return ErrNotStarted
	}
	return mb.inbound.publish(msg)
}

// PublishOutbound enqueues an outbound message for all current subscribers.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) error {
	if !mb.IsStarted() {
		return ErrNotStarted
	}
	return mb.outbound.publish(msg)
}

// PublishEvent enqueues a lifecycle event for all current subscribers.
func (mb *MessageBus) PublishEvent(evt Event) error {
	if !mb.IsStarted() {
		return ErrNotStarted
	}
	return mb.events.publish(evt)
}

// SubscribeInbound subscribes to the inbound topic.
func (mb *MessageBus) SubscribeInbound() *Subscription[InboundMessage] {
	return mb.inbound.subscribe()
}

// SubscribeOutbound subscribes to the outbound topic.
func (mb *MessageBus) SubscribeOutbound() *Subscription[OutboundMessage] {
	return mb.outbound.subscribe()
}

// SubscribeEvents subscribes to the lifecycle event topic.
func (mb *MessageBus) SubscribeEvents() *Subscription[Event] {
	return mb.events.subscribe()
}
