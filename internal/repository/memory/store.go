// Package memory is an in-process Directory Store. Transactions are applied
// copy-on-write under a store-wide lock, so they are serializable and a failed
// callback leaves no partial writes behind.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
)

type state struct {
	patients     map[uuid.UUID]model.Patient
	doctors      map[uuid.UUID]model.Doctor
	links        map[model.Link]int
	linkSeq      int
	appointments map[uuid.UUID]model.Appointment
	inquiries    map[uuid.UUID]model.Inquiry
	users        map[uuid.UUID]model.User
	roles        map[uuid.UUID]model.Role
	outbox       []model.OutboxEvent
}

func newState() *state {
	return &state{
		patients:     make(map[uuid.UUID]model.Patient),
		doctors:      make(map[uuid.UUID]model.Doctor),
		links:        make(map[model.Link]int),
		appointments: make(map[uuid.UUID]model.Appointment),
		inquiries:    make(map[uuid.UUID]model.Inquiry),
		users:        make(map[uuid.UUID]model.User),
		roles:        make(map[uuid.UUID]model.Role),
	}
}

func (s *state) clone() *state {
	c := &state{
		patients:     make(map[uuid.UUID]model.Patient, len(s.patients)),
		doctors:      make(map[uuid.UUID]model.Doctor, len(s.doctors)),
		links:        make(map[model.Link]int, len(s.links)),
		linkSeq:      s.linkSeq,
		appointments: make(map[uuid.UUID]model.Appointment, len(s.appointments)),
		inquiries:    make(map[uuid.UUID]model.Inquiry, len(s.inquiries)),
		users:        make(map[uuid.UUID]model.User, len(s.users)),
		roles:        make(map[uuid.UUID]model.Role, len(s.roles)),
		outbox:       append([]model.OutboxEvent(nil), s.outbox...),
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.inquiries {
		c.inquiries[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	return c
}

// Store implements repository.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) root() *view { return &view{store: s} }

func (s *Store) Persons() repository.PersonRepository           { return &personRepo{s.root()} }
func (s *Store) Links() repository.LinkRepository               { return &linkRepo{s.root()} }
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s.root()} }
func (s *Store) Inquiries() repository.InquiryRepository        { return &inquiryRepo{s.root()} }
func (s *Store) Users() repository.UserRepository               { return &userRepo{s.root()} }
func (s *Store) Roles() repository.RoleRepository               { return &roleRepo{s.root()} }
func (s *Store) Outbox() repository.OutboxRepository            { return &outboxRepo{s.root()} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(&txStore{v: &view{store: s, tx: working}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// view runs repository code against either the committed state (taking the
// store lock per call) or a transaction's working copy (lock already held).
type view struct {
	store *Store
	tx    *state
}

func (v *view) with(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

type txStore struct {
	v *view
}

func (t *txStore) Persons() repository.PersonRepository           { return &personRepo{t.v} }
func (t *txStore) Links() repository.LinkRepository               { return &linkRepo{t.v} }
func (t *txStore) Appointments() repository.AppointmentRepository { return &appointmentRepo{t.v} }
func (t *txStore) Inquiries() repository.InquiryRepository        { return &inquiryRepo{t.v} }
func (t *txStore) Users() repository.UserRepository               { return &userRepo{t.v} }
func (t *txStore) Roles() repository.RoleRepository               { return &roleRepo{t.v} }
func (t *txStore) Outbox() repository.OutboxRepository            { return &outboxRepo{t.v} }

// WithTx inside a transaction joins it.
func (t *txStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(context.Context) error { return nil }
func (t *txStore) Close() error               { return nil }
