package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/carelink/internal/repository"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store is the Postgres Directory Store. Transactions run at SERIALIZABLE so
// the appointment conflict scan and the cross-table email check cannot race.
type Store struct {
	db *sqlx.DB
	q  queryer
	tx *sqlx.Tx
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Persons() repository.PersonRepository           { return &personRepository{q: s.q} }
func (s *Store) Links() repository.LinkRepository               { return &linkRepository{q: s.q} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepository{q: s.q} }
func (s *Store) Inquiries() repository.InquiryRepository        { return &inquiryRepository{q: s.q} }
func (s *Store) Users() repository.UserRepository               { return &userRepository{q: s.q} }
func (s *Store) Roles() repository.RoleRepository               { return &roleRepository{q: s.q} }
func (s *Store) Outbox() repository.OutboxRepository            { return &outboxRepository{q: s.q} }

// WithTx executes a function within a transaction. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return apperrors.Transient("failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Transient("database unavailable", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.tx != nil {
		return nil
	}
	return s.db.Close()
}

// translate maps driver errors onto repository sentinels and the error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
		case "40001", "40P01":
			return apperrors.Transient("transaction conflict, retry", err)
		case "08000", "08003", "08006":
			return apperrors.Transient("database connection lost", err)
		}
	}
	return err
}

// execOne runs an UPDATE/DELETE and reports ErrNotFound when no row matched.
func execOne(ctx context.Context, q queryer, query string, args ...interface{}) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
