// Package bus implements typed publish/subscribe routing between registered
// systems. The subscription topology is declared during an initialization
// phase and frozen by Seal; once sealed, dispatch reads an immutable routing
// table and publishing never takes a lock.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hadronized/demo-05/errors"
	"github.com/hadronized/demo-05/message"
	"github.com/hadronized/demo-05/metric"
	"github.com/hadronized/demo-05/system"
)

// Handler consumes messages delivered to a subscribed system. Handlers run on
// the subscriber's own delivery goroutine, one message at a time, in enqueue
// order. Handlers must not block on I/O; heavy work belongs on worker pools.
type Handler func(message.Message)

// DefaultQueueSize is the per-subscriber delivery queue depth.
const DefaultQueueSize = 256

type subscriber struct {
	id      system.ID
	topics  []message.Topic
	handler Handler
	queue   chan message.Message
	closed  atomic.Bool
}

// Handle is returned from Register and identifies a bus registration.
type Handle struct {
	id     system.ID
	topics []message.Topic
	sub    *subscriber
}

// ID returns the registered system id.
func (h *Handle) ID() system.ID { return h.id }

// Topics returns the subscribed topics.
func (h *Handle) Topics() []message.Topic { return h.topics }

// Close stops delivery to this registration. The routing table stays frozen;
// messages routed to a closed handle are dropped. Close is idempotent.
func (h *Handle) Close() {
	h.sub.closed.Store(true)
}

// Bus routes typed messages between registered systems.
type Bus struct {
	logger    *slog.Logger
	metrics   *metric.Metrics
	queueSize int

	mu       sync.Mutex
	order    []*subscriber
	byID     map[system.ID]*subscriber
	sealed   atomic.Bool
	shutdown atomic.Bool

	// drainMu serializes queue closes against in-flight enqueues. Publishers
	// only ever take the read side, so dispatch stays contention-free.
	drainMu sync.RWMutex

	// routes is built once by Seal and never mutated afterwards, which is what
	// makes lock-free dispatch sound.
	routes map[message.Topic][]*subscriber

	wg sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics wires core bus metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Bus) {
		b.metrics = registry.CoreMetrics()
	}
}

// WithQueueSize overrides the per-subscriber queue depth.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates an unsealed Bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger:    logger,
		queueSize: DefaultQueueSize,
		byID:      make(map[system.ID]*subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register declares a system and its subscribed topics. It may only be called
// during the initialization phase, before Seal. Systems that only publish
// register with no topics and a nil handler.
func (b *Bus) Register(id system.ID, topics []message.Topic, handler Handler) (*Handle, error) {
	if err := system.Validate(id); err != nil {
		return nil, errors.Wrap(err, "Bus", "Register", "id validation")
	}
	if len(topics) > 0 && handler == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Bus", "Register", "handler validation")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed.Load() {
		return nil, errors.WrapInvalid(errors.ErrTopologySealed, "Bus", "Register", "topology check")
	}
	if _, exists := b.byID[id]; exists {
		return nil, errors.WrapInvalid(errors.ErrDuplicateSystem, "Bus", "Register", "duplicate id check")
	}

	sub := &subscriber{
		id:      id,
		topics:  topics,
		handler: handler,
	}
	if len(topics) > 0 {
		sub.queue = make(chan message.Message, b.queueSize)
	}

	b.byID[id] = sub
	b.order = append(b.order, sub)

	b.logger.Debug("registered system", "system", id, "topics", len(topics))

	return &Handle{id: id, topics: topics, sub: sub}, nil
}

// Seal freezes the subscription topology, builds the dispatch table and
// starts one delivery goroutine per subscriber. Registration after Seal is
// rejected.
func (b *Bus) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed.Load() {
		return
	}

	routes := make(map[message.Topic][]*subscriber)
	for _, sub := range b.order {
		for _, topic := range sub.topics {
			routes[topic] = append(routes[topic], sub)
		}
	}
	b.routes = routes

	for _, sub := range b.order {
		if sub.queue == nil {
			continue
		}
		b.wg.Add(1)
		go b.deliver(sub)
	}

	b.sealed.Store(true)
	b.logger.Info("bus topology sealed", "systems", len(b.order), "topics", len(routes))
}

// Publish routes payload to every subscriber of its topic, in registration
// order. Publishing to a topic with no subscribers drops the message, logs a
// warning and returns nil; the publisher is unaffected. Delivery is
// at-most-once per subscriber: a saturated subscriber queue also drops.
func (b *Bus) Publish(sender system.ID, payload message.Payload) error {
	if !b.sealed.Load() {
		return errors.WrapInvalid(errors.ErrNotStarted, "Bus", "Publish", "seal check")
	}

	b.drainMu.RLock()
	defer b.drainMu.RUnlock()

	if b.shutdown.Load() {
		return errors.WrapInvalid(errors.ErrBusShutDown, "Bus", "Publish", "shutdown check")
	}

	msg := message.New(payload, sender)
	if err := msg.Validate(); err != nil {
		return errors.WrapInvalid(err, "Bus", "Publish", "message validation")
	}

	topic := msg.Topic()
	if b.metrics != nil {
		b.metrics.MessagesPublished.WithLabelValues(topic.String()).Inc()
	}

	subs := b.routes[topic]
	if len(subs) == 0 {
		b.logger.Warn("no subscriber for topic; message dropped", "topic", topic, "sender", sender)
		if b.metrics != nil {
			b.metrics.MessagesDropped.WithLabelValues(topic.String()).Inc()
		}
		return nil
	}

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			b.logger.Warn("subscriber queue full; message dropped",
				"topic", topic, "system", sub.id, "sender", sender)
			if b.metrics != nil {
				b.metrics.MessagesDropped.WithLabelValues(topic.String()).Inc()
			}
		}
	}

	return nil
}

// deliver drains one subscriber queue. One goroutine per subscriber preserves
// enqueue order per subscriber.
func (b *Bus) deliver(sub *subscriber) {
	defer b.wg.Done()

	for msg := range sub.queue {
		sub.handler(msg)
		if b.metrics != nil {
			b.metrics.MessagesDelivered.WithLabelValues(msg.Topic().String(), sub.id.String()).Inc()
		}
	}
}

// Shutdown closes all subscriber queues and waits for in-flight deliveries to
// drain, up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	b.drainMu.Lock()
	if !b.shutdown.CompareAndSwap(false, true) {
		b.drainMu.Unlock()
		return nil
	}
	for _, sub := range b.order {
		if sub.queue != nil {
			close(sub.queue)
		}
	}
	b.drainMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(errors.ErrStopTimeout, "Bus", "Shutdown", "queue drain")
	}
}
