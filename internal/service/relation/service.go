// Package relation is the Relationship Manager: the only writer of the
// patient/doctor links, appointments, inquiries and role grants.
package relation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/internal/service/event"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/security"
)

type Service struct {
	store      repository.Store
	hasher     security.PasswordHasher
	adminEmail string
	logger     *logger.Logger
	now        func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, which decides whether an appointment date is in
// the future.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store repository.Store, hasher security.PasswordHasher, adminEmail string, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		hasher:     hasher,
		adminEmail: adminEmail,
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	patient := &model.Patient{PersonCore: s.newCore(&req.CreatePersonRequest)}

	err := s.provision(ctx, patient, req.Password, model.RolePatient, func(tx repository.Store) error {
		return tx.Persons().CreatePatient(ctx, patient)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("patient created", "patient_id", patient.ID.String())
	return patient, nil
}

func (s *Service) CreateDoctor(ctx context.Context, req *model.CreateDoctorRequest) (*model.Doctor, error) {
	doctor := &model.Doctor{
		PersonCore:     s.newCore(&req.CreatePersonRequest),
		Specialization: req.Specialization,
	}

	err := s.provision(ctx, doctor, req.Password, model.RoleDoctor, func(tx repository.Store) error {
		return tx.Persons().CreateDoctor(ctx, doctor)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("doctor created", "doctor_id", doctor.ID.String())
	return doctor, nil
}

func (s *Service) newCore(req *model.CreatePersonRequest) model.PersonCore {
	core := model.PersonCore{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		City:      req.City,
		Country:   req.Country,
		Street:    req.Street,
		BirthDay:  req.BirthDay,
	}
	core.ID = uuid.New()
	core.Touch(s.now())
	return core
}

// provision stores the person, its identity record and its default role in one
// transaction.
func (s *Service) provision(ctx context.Context, person model.Person, password, roleName string, create func(tx repository.Store) error) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return apperrors.InvalidInput("password too short", err)
		}
		return apperrors.Internal(err)
	}
	core := person.Core()
	core.PasswordHash = hash

	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := create(tx); err != nil {
			return storeErr(err, string(person.Kind()))
		}

		user := &model.User{Email: core.Email, PasswordHash: hash}
		user.ID = core.ID
		user.Touch(s.now())
		if err := tx.Users().Create(ctx, user); err != nil {
			return storeErr(err, "user")
		}
		return s.grant(ctx, tx, user.ID, roleName)
	})
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.store.Persons().GetPatient(ctx, id)
	if err != nil {
		return nil, storeErr(err, "patient")
	}
	return patient, nil
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	doctor, err := s.store.Persons().GetDoctor(ctx, id)
	if err != nil {
		return nil, storeErr(err, "doctor")
	}
	return doctor, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]*model.Patient, error) {
	patients, err := s.store.Persons().ListPatients(ctx)
	if err != nil {
		return nil, storeErr(err, "patient")
	}
	return patients, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]*model.Doctor, error) {
	doctors, err := s.store.Persons().ListDoctors(ctx)
	if err != nil {
		return nil, storeErr(err, "doctor")
	}
	return doctors, nil
}

// FindPersonByEmail resolves a patient or doctor regardless of role.
func (s *Service) FindPersonByEmail(ctx context.Context, email string) (model.Person, error) {
	person, err := s.store.Persons().FindPersonByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err, "person")
	}
	return person, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePersonRequest) (*model.Patient, error) {
	var patient *model.Patient
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if patient, err = tx.Persons().GetPatient(ctx, id); err != nil {
			return storeErr(err, "patient")
		}
		req.Apply(&patient.PersonCore)
		patient.Touch(s.now())
		return storeErr(tx.Persons().UpdatePatient(ctx, patient), "patient")
	})
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, req *model.UpdatePersonRequest) (*model.Doctor, error) {
	var doctor *model.Doctor
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if doctor, err = tx.Persons().GetDoctor(ctx, id); err != nil {
			return storeErr(err, "doctor")
		}
		req.Apply(&doctor.PersonCore)
		if req.Specialization != nil {
			doctor.Specialization = *req.Specialization
		}
		doctor.Touch(s.now())
		return storeErr(tx.Persons().UpdateDoctor(ctx, doctor), "doctor")
	})
	if err != nil {
		return nil, err
	}
	return doctor, nil
}

// LinkDoctor adds the patient/doctor edge. Linking twice is a no-op.
func (s *Service) LinkDoctor(ctx context.Context, patientID, doctorID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := requirePair(ctx, tx, patientID, doctorID); err != nil {
			return err
		}
		return storeErr(tx.Links().Add(ctx, patientID, doctorID), "link")
	})
}

// UnlinkDoctor removes the edge. Removing a missing edge is a no-op.
func (s *Service) UnlinkDoctor(ctx context.Context, patientID, doctorID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := requirePair(ctx, tx, patientID, doctorID); err != nil {
			return err
		}
		return storeErr(tx.Links().Remove(ctx, patientID, doctorID), "link")
	})
}

func (s *Service) DoctorsOf(ctx context.Context, patientID uuid.UUID) ([]*model.Doctor, error) {
	var doctors []*model.Doctor
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Persons().GetPatient(ctx, patientID); err != nil {
			return storeErr(err, "patient")
		}
		ids, err := tx.Links().DoctorsOf(ctx, patientID)
		if err != nil {
			return storeErr(err, "link")
		}
		doctors = make([]*model.Doctor, 0, len(ids))
		for _, id := range ids {
			doctor, err := tx.Persons().GetDoctor(ctx, id)
			if err != nil {
				return storeErr(err, "doctor")
			}
			doctors = append(doctors, doctor)
		}
		return nil
	})
	return doctors, err
}

func (s *Service) PatientsOf(ctx context.Context, doctorID uuid.UUID) ([]*model.Patient, error) {
	var patients []*model.Patient
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Persons().GetDoctor(ctx, doctorID); err != nil {
			return storeErr(err, "doctor")
		}
		ids, err := tx.Links().PatientsOf(ctx, doctorID)
		if err != nil {
			return storeErr(err, "link")
		}
		patients = make([]*model.Patient, 0, len(ids))
		for _, id := range ids {
			patient, err := tx.Persons().GetPatient(ctx, id)
			if err != nil {
				return storeErr(err, "patient")
			}
			patients = append(patients, patient)
		}
		return nil
	})
	return patients, err
}

// DeletePatient unlinks the patient from every doctor, then deletes its
// identity record, its appointments and inquiries, and finally the patient.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		patient, err := tx.Persons().GetPatient(ctx, id)
		if err != nil {
			return storeErr(err, "patient")
		}

		doctorIDs, err := tx.Links().DoctorsOf(ctx, id)
		if err != nil {
			return storeErr(err, "link")
		}
		for _, doctorID := range doctorIDs {
			if err := tx.Links().Remove(ctx, id, doctorID); err != nil {
				return storeErr(err, "link")
			}
		}

		return s.purge(ctx, tx, &patient.PersonCore, func() error {
			return tx.Persons().DeletePatient(ctx, id)
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("patient deleted", "patient_id", id.String())
	return nil
}

// DeleteDoctor mirrors DeletePatient from the doctor side.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		doctor, err := tx.Persons().GetDoctor(ctx, id)
		if err != nil {
			return storeErr(err, "doctor")
		}

		patientIDs, err := tx.Links().PatientsOf(ctx, id)
		if err != nil {
			return storeErr(err, "link")
		}
		for _, patientID := range patientIDs {
			if err := tx.Links().Remove(ctx, patientID, id); err != nil {
				return storeErr(err, "link")
			}
		}

		return s.purge(ctx, tx, &doctor.PersonCore, func() error {
			return tx.Persons().DeleteDoctor(ctx, id)
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("doctor deleted", "doctor_id", id.String())
	return nil
}

func (s *Service) purge(ctx context.Context, tx repository.Store, core *model.PersonCore, deleteRecord func() error) error {
	user, err := tx.Users().GetByEmail(ctx, core.Email)
	switch {
	case err == nil:
		if err := tx.Users().Delete(ctx, user.ID); err != nil {
			return storeErr(err, "user")
		}
	case !errors.Is(err, repository.ErrNotFound):
		return storeErr(err, "user")
	}

	if err := tx.Appointments().DeleteByPerson(ctx, core.ID); err != nil {
		return storeErr(err, "appointment")
	}
	if err := tx.Inquiries().DeleteByPerson(ctx, core.ID); err != nil {
		return storeErr(err, "inquiry")
	}
	return storeErr(deleteRecord(), "person")
}

// GrantRole attaches roleName to the person's identity record, creating the
// role on first use. Repeated grants are stored as repeated entries.
func (s *Service) GrantRole(ctx context.Context, kind model.PersonKind, personID uuid.UUID, roleName string) (*model.User, error) {
	var user *model.User
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var core *model.PersonCore
		switch kind {
		case model.PersonKindPatient:
			patient, err := tx.Persons().GetPatient(ctx, personID)
			if err != nil {
				return storeErr(err, "patient")
			}
			core = &patient.PersonCore
		case model.PersonKindDoctor:
			doctor, err := tx.Persons().GetDoctor(ctx, personID)
			if err != nil {
				return storeErr(err, "doctor")
			}
			core = &doctor.PersonCore
		default:
			return apperrors.InvalidInput(fmt.Sprintf("unknown person kind %q", kind), nil)
		}

		u, err := tx.Users().GetByEmail(ctx, core.Email)
		if err != nil {
			return storeErr(err, "user")
		}
		if err := s.grant(ctx, tx, u.ID, roleName); err != nil {
			return err
		}

		user, err = tx.Users().GetByEmail(ctx, core.Email)
		return storeErr(err, "user")
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) grant(ctx context.Context, tx repository.Store, userID uuid.UUID, roleName string) error {
	role, err := tx.Roles().GetByName(ctx, roleName)
	if errors.Is(err, repository.ErrNotFound) {
		role = &model.Role{Name: roleName}
		role.ID = uuid.New()
		role.Touch(s.now())
		err = tx.Roles().Create(ctx, role)
	}
	if err != nil {
		return storeErr(err, "role")
	}
	return storeErr(tx.Users().AddRole(ctx, userID, role.ID), "user")
}

// enqueue writes ev to the outbox inside tx.
func enqueue(ctx context.Context, tx repository.Store, ev event.Event) error {
	payload, err := json.Marshal(ev.Record())
	if err != nil {
		return apperrors.Internal(fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err))
	}
	outboxEvent := &model.OutboxEvent{
		EventType: ev.Kind().OutboxType(),
		Payload:   payload,
	}
	if err := tx.Outbox().Create(ctx, outboxEvent); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

func requirePair(ctx context.Context, tx repository.Store, patientID, doctorID uuid.UUID) error {
	if _, err := tx.Persons().GetPatient(ctx, patientID); err != nil {
		return storeErr(err, "patient")
	}
	if _, err := tx.Persons().GetDoctor(ctx, doctorID); err != nil {
		return storeErr(err, "doctor")
	}
	return nil
}

// storeErr maps repository sentinels onto the error taxonomy. AppErrors pass
// through untouched.
func storeErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(resource, err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict(fmt.Sprintf("%s already exists", resource), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Transient(fmt.Sprintf("%s store unavailable", resource), err)
	default:
		return fmt.Errorf("%s store operation failed: %w", resource, err)
	}
}
