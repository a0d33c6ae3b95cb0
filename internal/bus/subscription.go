package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"botkit/internal/logger"
	"botkit/internal/types"
)

// Subscription is one subscriber's handle: its queue, policy and counters.
type Subscription struct {
	ID    string
	Topic string
	Name  string

	handler  Handler
	policy   Policy
	queueCap int
	queue    chan types.Event

	done     chan struct{}
	abortOne sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
}

// SubOption customizes a subscription.
type SubOption func(*Subscription)

// WithName labels the subscription in status output and logs.
func WithName(name string) SubOption {
	return func(s *Subscription) { s.Name = name }
}

// WithQueue overrides the queue bound for this subscription.
func WithQueue(n int) SubOption {
	return func(s *Subscription) { s.queueCap = n }
}

// WithPolicy sets the queue-full policy for this subscription.
func WithPolicy(p Policy) SubOption {
	return func(s *Subscription) { s.policy = p }
}

// enqueue adds the event to the pending queue. Callers serialize via the
// bus mutex, so queue order is publish order.
func (s *Subscription) enqueue(evt types.Event) {
	if s.policy == BlockPublisher {
		select {
		case s.queue <- evt:
		case <-s.done:
		}
		return
	}
	for {
		select {
		case s.queue <- evt:
			return
		default:
		}
		// Full: discard the oldest pending event and retry. The worker may
		// race us for the head, in which case the retry simply succeeds.
		select {
		case <-s.queue:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription) deliver(evt types.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			logger.Errorf("bus: handler panic sub=%s topic=%s seq=%d: %v", s.label(), evt.Topic, evt.Sequence, r)
		}
	}()
	start := time.Now()
	if err := s.handler(evt); err != nil {
		s.failures.Add(1)
		logger.Warnf("bus: delivery failed sub=%s topic=%s seq=%d: %v", s.label(), evt.Topic, evt.Sequence, err)
	} else {
		s.delivered.Add(1)
	}
	if dur := time.Since(start); dur > 100*time.Millisecond {
		logger.Warnf("bus: slow handler sub=%s topic=%s took %v", s.label(), evt.Topic, dur)
	}
}

// abort makes the delivery worker return without draining.
func (s *Subscription) abort() {
	s.abortOne.Do(func() { close(s.done) })
}

// Dropped returns how many pending events this subscriber lost to the
// drop-oldest policy.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

func (s *Subscription) status() SubscriberStatus {
	return SubscriberStatus{
		ID:        s.ID,
		Name:      s.Name,
		Topic:     s.Topic,
		Pending:   len(s.queue),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
		Failures:  s.failures.Load(),
	}
}

// SubscriberStatus is one subscriber's counters within Status.
type SubscriberStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Topic     string `json:"topic"`
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failures  uint64 `json:"failures"`
}
