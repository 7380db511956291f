package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository/memory"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/metrics"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	ch, _ := args.Get(0).(<-chan []byte)
	return ch, args.Error(1)
}

func (m *mockBroker) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockBroker) Close() error                   { return m.Called().Error(0) }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		Channel:       "care.notifications",
		BatchSize:     10,
		PollInterval:  10 * time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func enqueue(t *testing.T, store *memory.Store, payload string) *model.OutboxEvent {
	t.Helper()
	ev := &model.OutboxEvent{EventType: model.EventTypeContactMessage, Payload: json.RawMessage(payload)}
	require.NoError(t, store.Outbox().Create(context.Background(), ev))
	return ev
}

func TestProcessOncePublishesAndMarksProcessed(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, `{"email":"a@z.com"}`)
	enqueue(t, store, `{"email":"b@z.com"}`)

	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, "care.notifications", mock.Anything).Return(nil).Twice()

	p, err := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.New("test", nil))
	require.NoError(t, err)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	broker.AssertExpectations(t)

	again, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestProcessOnceRetriesThenMarksFailed(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, `{"email":"a@z.com"}`)

	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	p, err := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.New("test", nil))
	require.NoError(t, err)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	broker.AssertNumberOfCalls(t, "Publish", 3)

	pending, err := store.Outbox().ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessOnceRecoversAfterTransientFailure(t *testing.T) {
	store := memory.NewStore()
	enqueue(t, store, `{"email":"a@z.com"}`)

	broker := new(mockBroker)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("blip")).Once()
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	p, err := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.New("test", nil))
	require.NoError(t, err)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(memory.NewStore().Outbox(), new(mockBroker), cfg, logger.Nop(), metrics.New("test", nil))
	assert.Error(t, err)
}

func TestCleanupRemovesOldProcessedEvents(t *testing.T) {
	store := memory.NewStore()
	ev := enqueue(t, store, `{}`)
	_, err := store.Outbox().ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, store.Outbox().MarkProcessed(context.Background(), ev.ID))

	cfg := testConfig()
	cfg.Retention = time.Nanosecond
	p, err := NewOutboxProcessor(store.Outbox(), new(mockBroker), cfg, logger.Nop(), metrics.New("test", nil))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	n, err := p.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
