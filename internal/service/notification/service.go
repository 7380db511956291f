package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/carelink/internal/email"
	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/internal/service/event"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/metrics"
)

// Outcomes recorded on the events_consumed metric.
const (
	outcomeDispatched     = "dispatched"
	outcomeInvalid        = "invalid"
	outcomeUnresolved     = "unresolved"
	outcomeDispatchFailed = "dispatch_failed"
	outcomeError          = "error"
)

// Service consumes one queue message: parse, route, dispatch.
type Service interface {
	// Handle never needs a retry from its caller: the event is consumed
	// whatever the result. The returned error is for reporting only.
	Handle(ctx context.Context, data []byte) error
}

type service struct {
	store      repository.Store
	router     *Router
	dispatcher email.Service
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(store repository.Store, router *Router, dispatcher email.Service, log *logger.Logger, m *metrics.Metrics) Service {
	return &service{
		store:      store,
		router:     router,
		dispatcher: dispatcher,
		logger:     log,
		metrics:    m,
	}
}

func (s *service) Handle(ctx context.Context, data []byte) error {
	timer := prometheus.NewTimer(s.metrics.EventProcessingDuration)
	defer timer.ObserveDuration()

	ev, err := event.ParseBytes(data)
	if err != nil {
		s.metrics.EventsConsumed.WithLabelValues("unknown", outcomeInvalid).Inc()
		s.logger.Error(err, "Dropping malformed event")
		return err
	}
	kind := string(ev.Kind())

	var dispatches []model.Dispatch
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		dispatches, err = s.router.Route(ctx, tx.Persons(), ev)
		return err
	})
	if err != nil {
		s.metrics.EventsConsumed.WithLabelValues(kind, outcomeFor(err)).Inc()
		s.logger.Error(err, "Failed to route event", "kind", kind)
		return fmt.Errorf("route %s: %w", kind, err)
	}

	var errs []error
	for _, d := range dispatches {
		if err := s.dispatcher.SendCustom(ctx, d.Recipient, d.Subject, d.Body); err != nil {
			s.metrics.Dispatches.WithLabelValues(kind, "failed").Inc()
			s.logger.Error(err, "Failed to dispatch notification", "kind", kind, "recipient", d.Recipient)
			errs = append(errs, err)
			continue
		}
		s.metrics.Dispatches.WithLabelValues(kind, "sent").Inc()
	}

	if len(errs) > 0 {
		s.metrics.EventsConsumed.WithLabelValues(kind, outcomeDispatchFailed).Inc()
		return errors.Join(errs...)
	}

	s.metrics.EventsConsumed.WithLabelValues(kind, outcomeDispatched).Inc()
	s.logger.Debug("Event dispatched", "kind", kind, "dispatches", len(dispatches))
	return nil
}

func outcomeFor(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound:
		return outcomeUnresolved
	case apperrors.ErrInvalidInput:
		return outcomeInvalid
	default:
		return outcomeError
	}
}
