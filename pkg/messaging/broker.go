package messaging

import (
	"context"
)

// Broker carries event records from the outbox processor to consumers. Each
// message published to a channel reaches one of its subscribers, at most once.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Ping(ctx context.Context) error
	Close() error
}
