// Package email is the Notification Dispatcher: it transmits fully built
// (recipient, subject, body) tuples.
package email

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"gopkg.in/gomail.v2"

	apperrors "github.com/jwalitptl/carelink/pkg/errors"
	"github.com/jwalitptl/carelink/pkg/logger"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
	cb     *gobreaker.CircuitBreaker
	logger *logger.Logger
}

// NewSMTPService sends HTML mail through one SMTP relay. Sends are guarded by a
// circuit breaker that opens after five consecutive failures.
func NewSMTPService(cfg Config, log *logger.Logger) Service {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		cb:     cb,
		logger: log,
	}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.dialer.DialAndSend(m)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return apperrors.Transient("smtp relay unavailable", err)
		}
		return apperrors.Transient("failed to send email", err)
	}
	return nil
}

type logService struct {
	logger *logger.Logger
}

// NewLogService only logs dispatches. Used when no SMTP relay is configured.
func NewLogService(log *logger.Logger) Service {
	return &logService{logger: log}
}

func (s *logService) SendCustom(_ context.Context, to string, subject string, content string) error {
	s.logger.Info("email dispatched",
		"to", to,
		"subject", subject,
		"body_bytes", len(content))
	return nil
}
