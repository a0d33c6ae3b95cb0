package bus

import (
	"errors"
	"sync"
	"time"

	"botkit/internal/logger"
	"botkit/internal/types"

	"github.com/google/uuid"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus: closed")

// DefaultQueueSize bounds a subscriber's pending-event queue unless
// overridden per subscription.
const DefaultQueueSize = 256

// Handler processes one delivered event. A returned error (or a panic) is
// recorded as a delivery failure for that subscriber only.
type Handler func(types.Event) error

// Policy decides what happens when a subscriber's queue is full.
type Policy int

const (
	// DropOldest discards the oldest pending event to make room.
	DropOldest Policy = iota
	// BlockPublisher makes Publish wait for queue space.
	BlockPublisher
)

// Bus is a topic-keyed publish/subscribe dispatcher. Each subscriber gets
// its own bounded queue and delivery goroutine, so a slow or failing
// handler never stalls the publisher or its peers. Events on one topic are
// observed by every subscriber in publish order.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription
	byID   map[string]*Subscription
	seq    uint64
	closed bool
	wg     sync.WaitGroup

	queueSize int
	published uint64
}

// Option customizes a Bus.
type Option func(*Bus)

// WithQueueSize sets the default per-subscriber queue bound.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates a bus ready for subscriptions.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[string][]*Subscription),
		byID:      make(map[string]*Subscription),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one topic and starts its delivery
// worker. The returned subscription is the handle for Unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler, opts ...SubOption) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		Topic:  topic,
		handler: handler,
		policy: DropOldest,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queueCap <= 0 {
		s.queueCap = b.queueSize
	}
	s.queue = make(chan types.Event, s.queueCap)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.abort()
		return s
	}
	b.subs[topic] = append(b.subs[topic], s)
	b.byID[s.ID] = s
	b.wg.Add(1)
	b.mu.Unlock()

	go b.deliverLoop(s)
	logger.Debugf("bus: subscribed %s topic=%s queue=%d", s.ID, topic, s.queueCap)
	return s
}

// Unsubscribe removes the subscription and stops its worker once the
// already-queued events are delivered.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.byID[s.ID]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.byID, s.ID)
	list := b.subs[s.Topic]
	for i := range list {
		if list[i] == s {
			b.subs[s.Topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	close(s.queue)
	b.mu.Unlock()
}

// Publish stamps the event with a sequence number and timestamp, enqueues
// it for every subscriber of its topic and returns without waiting for any
// handler to run.
func (b *Bus) Publish(evt types.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.seq++
	evt.Sequence = b.seq
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.published++
	targets := b.subs[evt.Topic]
	for _, s := range targets {
		s.enqueue(evt)
	}
	b.mu.Unlock()
	return nil
}

func (b *Bus) deliverLoop(s *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case evt, ok := <-s.queue:
			if !ok {
				return
			}
			s.deliver(evt)
		case <-s.done:
			return
		}
	}
}

// Close stops accepting publishes, lets workers drain their queues for up
// to grace, then discards whatever is still pending and releases all
// subscriptions.
func (b *Bus) Close(grace time.Duration) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	all := make([]*Subscription, 0, len(b.byID))
	for _, s := range b.byID {
		all = append(all, s)
	}
	b.subs = make(map[string][]*Subscription)
	b.byID = make(map[string]*Subscription)
	for _, s := range all {
		close(s.queue)
	}
	b.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-time.After(grace):
		for _, s := range all {
			s.abort()
		}
		logger.Warnf("bus: close grace %s elapsed, discarding pending deliveries", grace)
		return nil
	}
}

// Status reports bus-level and per-subscriber counters.
func (b *Bus) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Status{
		Published: b.published,
		Closed:    b.closed,
	}
	for _, s := range b.byID {
		sub := s.status()
		st.Dropped += sub.Dropped
		st.Delivered += sub.Delivered
		st.Failures += sub.Failures
		st.Subscribers = append(st.Subscribers, sub)
	}
	return st
}

// Status is a point-in-time view of bus counters.
type Status struct {
	Published   uint64             `json:"published"`
	Delivered   uint64             `json:"delivered"`
	Dropped     uint64             `json:"dropped"`
	Failures    uint64             `json:"failures"`
	Closed      bool               `json:"closed"`
	Subscribers []SubscriberStatus `json:"subscribers,omitempty"`
}
