package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	apperrors "github.com/jwalitptl/carelink/pkg/errors"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/messaging"
)

const (
	payloadField     = "payload"
	defaultGroup     = "carelink-workers"
	defaultReadBlock = 2 * time.Second
	readCount        = 50
)

// RedisBroker carries messages on Redis Streams. Every subscriber joins one
// consumer group, so each entry is handed to exactly one subscriber across all
// worker replicas.
type RedisBroker struct {
	client    *redis.Client
	cb        *gobreaker.CircuitBreaker
	logger    *logger.Logger
	group     string
	maxLen    int64
	readBlock time.Duration
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	// Group is the consumer group subscribers join.
	Group string
	// MaxLen caps each stream with approximate trimming. Zero keeps every entry.
	MaxLen int64
	// ReadBlock bounds one blocking read so shutdown is noticed.
	ReadBlock time.Duration
}

var _ messaging.Broker = (*RedisBroker)(nil)

func NewRedisBroker(ctx context.Context, config Config, log *logger.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newBroker(client, config, log), nil
}

func newBroker(client *redis.Client, config Config, log *logger.Logger) *RedisBroker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-broker",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	b := &RedisBroker{
		client:    client,
		cb:        cb,
		logger:    log,
		group:     config.Group,
		maxLen:    config.MaxLen,
		readBlock: config.ReadBlock,
	}
	if b.group == "" {
		b.group = defaultGroup
	}
	if b.readBlock <= 0 {
		b.readBlock = defaultReadBlock
	}
	return b
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = b.cb.Execute(func() (interface{}, error) {
		return nil, b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: channel,
			MaxLen: b.maxLen,
			Approx: b.maxLen > 0,
			Values: map[string]interface{}{payloadField: payload},
		}).Err()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperrors.Transient("redis broker circuit open", err)
		}
		return apperrors.Transient("failed to publish message", err)
	}
	return nil
}

// Subscribe joins the consumer group of channel, creating stream and group on
// first use. A new group starts at the beginning of the stream, so entries
// added before any worker ran are still delivered. The returned channel closes
// when ctx ends or the client is closed.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	err := b.client.XGroupCreateMkStream(ctx, channel, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, apperrors.Transient("failed to create consumer group", err)
	}

	msgChan := make(chan []byte, readCount)
	go b.read(ctx, channel, consumerName(), msgChan)
	return msgChan, nil
}

// read pulls entries for one group member. NoAck keeps entries out of the
// pending list: an entry handed to a member is never redelivered.
func (b *RedisBroker) read(ctx context.Context, stream, consumer string, out chan<- []byte) {
	defer close(out)

	for ctx.Err() == nil {
		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    readCount,
			Block:    b.readBlock,
			NoAck:    true,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			b.logger.Error(err, "Failed to read stream", "stream", stream, "consumer", consumer)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				payload, ok := msg.Values[payloadField].(string)
				if !ok {
					b.logger.Warn("Skipping stream entry without payload", "stream", stream, "id", msg.ID)
					continue
				}
				select {
				case out <- []byte(payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return apperrors.Transient("redis unavailable", err)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
