package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
)

var (
	// ErrNotFound is returned by every repository when a lookup misses.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key (person email, role name) is taken.
	ErrDuplicate = errors.New("duplicate key")
)

// All repository interfaces in one file
type (
	// PersonRepository is the identity side of the Directory Store.
	PersonRepository interface {
		CreatePatient(ctx context.Context, patient *model.Patient) error
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetPatientByEmail(ctx context.Context, email string) (*model.Patient, error)
		UpdatePatient(ctx context.Context, patient *model.Patient) error
		DeletePatient(ctx context.Context, id uuid.UUID) error
		ListPatients(ctx context.Context) ([]*model.Patient, error)

		CreateDoctor(ctx context.Context, doctor *model.Doctor) error
		GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		GetDoctorByEmail(ctx context.Context, email string) (*model.Doctor, error)
		UpdateDoctor(ctx context.Context, doctor *model.Doctor) error
		DeleteDoctor(ctx context.Context, id uuid.UUID) error
		ListDoctors(ctx context.Context) ([]*model.Doctor, error)

		// FindPersonByEmail and FindPersonByID resolve regardless of role.
		FindPersonByEmail(ctx context.Context, email string) (model.Person, error)
		FindPersonByID(ctx context.Context, id uuid.UUID) (model.Person, error)
	}

	// LinkRepository is the Patient<->Doctor relationship index. One row is one
	// edge, so both directions are always read from the same source.
	LinkRepository interface {
		Add(ctx context.Context, patientID, doctorID uuid.UUID) error
		Remove(ctx context.Context, patientID, doctorID uuid.UUID) error
		DoctorsOf(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
		PatientsOf(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Appointment, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error)
		DeleteByPerson(ctx context.Context, personID uuid.UUID) error
		// LockDoctor serializes scan-then-insert for one doctor until the
		// surrounding transaction ends.
		LockDoctor(ctx context.Context, doctorID uuid.UUID) error
	}

	InquiryRepository interface {
		Create(ctx context.Context, inquiry *model.Inquiry) error
		Get(ctx context.Context, id uuid.UUID) (*model.Inquiry, error)
		MarkAnswered(ctx context.Context, id uuid.UUID, answer string, at time.Time) error
		ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Inquiry, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Inquiry, error)
		DeleteByPerson(ctx context.Context, personID uuid.UUID) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		// AddRole appends one grant; duplicates are kept.
		AddRole(ctx context.Context, userID, roleID uuid.UUID) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	RoleRepository interface {
		GetByName(ctx context.Context, name string) (*model.Role, error)
		Create(ctx context.Context, role *model.Role) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending moves up to limit pending events to processing and
		// returns them oldest first.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Store is the Directory Store. Repositories obtained from the Store passed
	// to WithTx's callback all run inside that one transaction.
	Store interface {
		Persons() PersonRepository
		Links() LinkRepository
		Appointments() AppointmentRepository
		Inquiries() InquiryRepository
		Users() UserRepository
		Roles() RoleRepository
		Outbox() OutboxRepository
		WithTx(ctx context.Context, fn func(tx Store) error) error
		Ping(ctx context.Context) error
		Close() error
	}
)
