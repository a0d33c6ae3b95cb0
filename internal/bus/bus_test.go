package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"botkit/internal/types"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	var mu sync.Mutex
	var got []int
	b.Subscribe("market.tick", func(evt types.Event) error {
		mu.Lock()
		got = append(got, evt.Payload["n"].(int))
		mu.Unlock()
		return nil
	})

	const n = 50
	for i := 0; i < n; i++ {
		err := b.Publish(types.Event{Topic: "market.tick", Payload: map[string]any{"n": i}})
		assert.NoError(t, err)
	}

	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	}))
	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		assert.Equal(t, i, got[i])
	}
}

func TestSequenceIsMonotonic(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	var mu sync.Mutex
	var seqs []uint64
	b.Subscribe("a", func(evt types.Event) error {
		mu.Lock()
		seqs = append(seqs, evt.Sequence)
		mu.Unlock()
		return nil
	})
	for i := 0; i < 10; i++ {
		b.Publish(types.Event{Topic: "a"})
		b.Publish(types.Event{Topic: "other"})
	}
	assert.True(t, waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) == 10
	}))
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}

func TestFailingSubscriberDoesNotAffectOthers(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	var healthy sync.WaitGroup
	healthy.Add(5)
	bad := b.Subscribe("trade.done", func(types.Event) error {
		return errors.New("boom")
	}, WithName("bad"))
	b.Subscribe("trade.done", func(types.Event) error {
		healthy.Done()
		return nil
	}, WithName("good"))

	for i := 0; i < 5; i++ {
		assert.NoError(t, b.Publish(types.Event{Topic: "trade.done"}))
	}

	done := make(chan struct{})
	go func() {
		healthy.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("healthy subscriber did not receive all events")
	}
	assert.True(t, waitFor(t, time.Second, func() bool {
		return bad.failures.Load() == 5
	}))
}

func TestPanickingHandlerIsContained(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	sub := b.Subscribe("x", func(types.Event) error {
		panic("handler bug")
	})
	b.Publish(types.Event{Topic: "x"})
	b.Publish(types.Event{Topic: "x"})
	assert.True(t, waitFor(t, time.Second, func() bool {
		return sub.failures.Load() == 2
	}))
}

func TestDropOldestKeepsNewest(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	var mu sync.Mutex
	var got []int
	sub := b.Subscribe("burst", func(evt types.Event) error {
		once.Do(func() {
			close(started)
			<-release
		})
		mu.Lock()
		got = append(got, evt.Payload["n"].(int))
		mu.Unlock()
		return nil
	}, WithQueue(2), WithPolicy(DropOldest))

	// The primer occupies the worker so the burst queues deterministically.
	b.Publish(types.Event{Topic: "burst", Payload: map[string]any{"n": 0}})
	<-started
	for i := 1; i <= 5; i++ {
		b.Publish(types.Event{Topic: "burst", Payload: map[string]any{"n": i}})
	}
	close(release)

	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 4, 5}, got)
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestBlockPublisherLosesNothing(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	release := make(chan struct{})
	var mu sync.Mutex
	var got []int
	b.Subscribe("slow", func(evt types.Event) error {
		<-release
		mu.Lock()
		got = append(got, evt.Payload["n"].(int))
		mu.Unlock()
		return nil
	}, WithQueue(1), WithPolicy(BlockPublisher))

	published := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(types.Event{Topic: "slow", Payload: map[string]any{"n": i}})
		}
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publisher should block on the full queue")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	<-published

	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New()
	assert.NoError(t, b.Close(time.Second))
	err := b.Publish(types.Event{Topic: "x"})
	assert.ErrorIs(t, err, ErrClosed)
	// Close is idempotent.
	assert.NoError(t, b.Close(time.Second))
}

func TestCloseDrainsPendingWithinGrace(t *testing.T) {
	b := New()
	var delivered sync.WaitGroup
	delivered.Add(20)
	b.Subscribe("drain", func(types.Event) error {
		time.Sleep(time.Millisecond)
		delivered.Done()
		return nil
	})
	for i := 0; i < 20; i++ {
		b.Publish(types.Event{Topic: "drain"})
	}
	assert.NoError(t, b.Close(5*time.Second))
	done := make(chan struct{})
	go func() {
		delivered.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pending events were not drained before close returned")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	var count sync.WaitGroup
	count.Add(1)
	sub := b.Subscribe("u", func(types.Event) error {
		count.Done()
		return nil
	})
	b.Publish(types.Event{Topic: "u"})
	count.Wait()

	b.Unsubscribe(sub)
	assert.NoError(t, b.Publish(types.Event{Topic: "u"}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), sub.delivered.Load())
}

func TestStatusCounters(t *testing.T) {
	b := New()
	defer b.Close(time.Second)

	b.Subscribe("s", func(types.Event) error { return nil }, WithName("counter"))
	for i := 0; i < 3; i++ {
		b.Publish(types.Event{Topic: "s"})
	}
	assert.True(t, waitFor(t, time.Second, func() bool {
		return b.Status().Delivered == 3
	}))
	st := b.Status()
	assert.Equal(t, uint64(3), st.Published)
	assert.Len(t, st.Subscribers, 1)
	assert.Equal(t, "counter", st.Subscribers[0].Name)
	assert.False(t, st.Closed)
}
