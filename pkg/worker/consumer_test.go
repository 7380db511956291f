package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carelink/internal/repository/memory"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/messaging"
	"github.com/jwalitptl/carelink/pkg/metrics"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	done chan struct{}
	want int
}

func (h *recordingHandler) Handle(_ context.Context, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, string(data))
	if len(h.seen) == h.want {
		close(h.done)
	}
	if string(data) == `{"panic":true}` {
		panic("boom")
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestOutboxToConsumerPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	broker := messaging.NewMemoryBroker()
	handler := &recordingHandler{done: make(chan struct{}), want: 3}

	consumer, err := NewConsumer(broker, handler, ConsumerConfig{Channel: "care.notifications", Workers: 2, QueueSize: 4}, logger.Nop())
	require.NoError(t, err)

	stopped := make(chan error, 1)
	go func() { stopped <- consumer.Run(ctx) }()

	// Ping until the subscription is live; pings count toward want.
	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, "care.notifications", json.RawMessage(`{"ping":true}`))
		return handler.count() > 0
	}, time.Second, 5*time.Millisecond)

	enqueue(t, store, `{"panic":true}`)
	enqueue(t, store, `{"email":"b@z.com"}`)

	p, err := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.New("test", nil))
	require.NoError(t, err)
	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not handle every message")
	}

	cancel()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestReplicasShareOneChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := messaging.NewMemoryBroker()
	const total = 10
	handlers := []*recordingHandler{
		{done: make(chan struct{}), want: -1},
		{done: make(chan struct{}), want: -1},
	}

	var wg sync.WaitGroup
	for _, h := range handlers {
		c, err := NewConsumer(broker, h, ConsumerConfig{Channel: "care.notifications", Workers: 2}, logger.Nop())
		require.NoError(t, err)
		msgs, err := c.Subscribe(ctx)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Serve(ctx, msgs)
		}()
	}

	for i := 0; i < total; i++ {
		require.NoError(t, broker.Publish(ctx, "care.notifications", map[string]int{"n": i}))
	}

	require.Eventually(t, func() bool {
		return handlers[0].count()+handlers[1].count() == total
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	seen := map[string]int{}
	for _, h := range handlers {
		assert.NotZero(t, h.count())
		for _, msg := range h.seen {
			seen[msg]++
		}
	}
	assert.Len(t, seen, total)
	for msg, n := range seen {
		assert.Equal(t, 1, n, msg)
	}
}

func TestNewConsumerValidatesConfig(t *testing.T) {
	_, err := NewConsumer(messaging.NewMemoryBroker(), &recordingHandler{}, ConsumerConfig{Channel: "c"}, logger.Nop())
	assert.Error(t, err)
}
