// Package app assembles the components the binaries share.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jwalitptl/carelink/internal/config"
	"github.com/jwalitptl/carelink/internal/email"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/internal/repository/memory"
	"github.com/jwalitptl/carelink/internal/repository/postgres"
	"github.com/jwalitptl/carelink/internal/service/notification"
	"github.com/jwalitptl/carelink/internal/service/relation"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/messaging"
	"github.com/jwalitptl/carelink/pkg/messaging/redis"
	"github.com/jwalitptl/carelink/pkg/metrics"
	"github.com/jwalitptl/carelink/pkg/security"
)

// MetricsNamespace prefixes every exported series.
const MetricsNamespace = "carelink"

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Console,
	})
}

// InProcess reports whether the pipeline must run inside the API process.
// The memory store is private to one process, so a separate worker could
// never resolve the identities it holds.
func InProcess(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Store.Driver, "memory")
}

// OpenStore connects the configured Directory Store. The Postgres schema is
// applied on open.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, error) {
	if InProcess(cfg) {
		log.ZL.Warn().Msg("Using in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.ZL.Info().Str("host", cfg.Database.Host).Str("database", cfg.Database.Name).Msg("Connected to database")
	return postgres.NewStore(db), nil
}

// OpenBroker returns Redis, or the in-memory broker when the pipeline runs
// in-process.
func OpenBroker(ctx context.Context, cfg *config.Config, log *logger.Logger) (messaging.Broker, error) {
	if InProcess(cfg) {
		return messaging.NewMemoryBroker(), nil
	}
	b, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return b, nil
}

func NewRelationService(store repository.Store, cfg *config.Config, log *logger.Logger) *relation.Service {
	return relation.NewService(
		store,
		security.NewBcryptHasher(cfg.Security.BcryptCost),
		cfg.Notification.AdminEmail,
		log,
	)
}

func NewDispatcher(cfg *config.Config, log *logger.Logger) email.Service {
	if strings.EqualFold(cfg.Notification.Dispatcher, "smtp") {
		return email.NewSMTPService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log)
	}
	return email.NewLogService(log)
}

func NewNotificationService(store repository.Store, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) notification.Service {
	router := notification.NewRouter()
	return notification.NewService(store, router, NewDispatcher(cfg, log), log, m)
}
