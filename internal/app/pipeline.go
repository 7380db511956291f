package app

import (
	"context"
	"sync"

	"github.com/jwalitptl/carelink/internal/config"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/messaging"
	"github.com/jwalitptl/carelink/pkg/metrics"
	"github.com/jwalitptl/carelink/pkg/worker"
)

// Pipeline moves event records from the outbox to the broker and, when a
// consumer is attached, from the broker through the notification router.
type Pipeline struct {
	processor *worker.OutboxProcessor
	consumer  *worker.Consumer
}

type PipelineOptions struct {
	Publish bool
	Consume bool
}

func NewPipeline(
	store repository.Store,
	broker messaging.Broker,
	cfg *config.Config,
	log *logger.Logger,
	m *metrics.Metrics,
	opts PipelineOptions,
) (*Pipeline, error) {
	p := &Pipeline{}

	if opts.Publish {
		processor, err := worker.NewOutboxProcessor(
			store.Outbox(),
			broker,
			cfg.Outbox.ToWorkerConfig(cfg.Redis.Channel),
			log,
			m,
		)
		if err != nil {
			return nil, err
		}
		p.processor = processor
	}

	if opts.Consume {
		consumer, err := worker.NewConsumer(
			broker,
			NewNotificationService(store, cfg, log, m),
			cfg.Consumer.ToConsumerConfig(cfg.Redis.Channel),
			log,
		)
		if err != nil {
			return nil, err
		}
		p.consumer = consumer
	}

	return p, nil
}

// Run blocks until ctx is cancelled and every stage has stopped. The consumer
// subscribes before the processor starts publishing.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if p.consumer != nil {
		msgs, err := p.consumer.Subscribe(ctx)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.consumer.Serve(ctx, msgs)
		}()
	}

	if p.processor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.processor.Start(ctx)
		}()
	}

	wg.Wait()
	return nil
}
