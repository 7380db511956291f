package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/messaging"
)

// Handler consumes one message. Errors are reported, never retried.
type Handler interface {
	Handle(ctx context.Context, data []byte) error
}

type ConsumerConfig struct {
	Channel   string
	Workers   int
	QueueSize int
}

// Consumer fans messages from one broker channel out to a fixed pool of
// workers. Each message is handled by exactly one worker.
type Consumer struct {
	broker  messaging.Broker
	handler Handler
	config  ConsumerConfig
	logger  *logger.Logger
}

func NewConsumer(broker messaging.Broker, handler Handler, config ConsumerConfig, log *logger.Logger) (*Consumer, error) {
	if config.Channel == "" {
		return nil, errors.New("channel is required")
	}
	if config.Workers <= 0 {
		return nil, errors.New("Workers must be greater than 0")
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	return &Consumer{broker: broker, handler: handler, config: config, logger: log}, nil
}

// Run subscribes and serves until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}
	return c.Serve(ctx, msgs)
}

// Subscribe opens the channel subscription without consuming it. The in-memory
// broker drops messages published before this returns.
func (c *Consumer) Subscribe(ctx context.Context) (<-chan []byte, error) {
	msgs, err := c.broker.Subscribe(ctx, c.config.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.config.Channel, err)
	}
	return msgs, nil
}

// Serve blocks until ctx ends or msgs closes, then waits for the in-flight
// messages to finish.
func (c *Consumer) Serve(ctx context.Context, msgs <-chan []byte) error {
	jobs := make(chan []byte, c.config.QueueSize)
	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for data := range jobs {
				c.handle(ctx, id, data)
			}
		}(i)
	}

	c.logger.Info("Consumer started", "channel", c.config.Channel, "workers", c.config.Workers)

pump:
	for {
		select {
		case <-ctx.Done():
			break pump
		case msg, ok := <-msgs:
			if !ok {
				break pump
			}
			select {
			case jobs <- msg:
			case <-ctx.Done():
				break pump
			}
		}
	}

	close(jobs)
	wg.Wait()
	c.logger.Info("Consumer stopped", "channel", c.config.Channel)
	return nil
}

func (c *Consumer) handle(ctx context.Context, worker int, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Errorf("panic: %v", r), "Handler panicked", "worker", worker)
		}
	}()

	if err := c.handler.Handle(ctx, data); err != nil {
		c.logger.Debug("Message consumed with error", "worker", worker, "error", err.Error())
	}
}
