package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
)

const (
	personColumns  = `id, first_name, last_name, email, password_hash, city, country, street, image_data, birth_day, created_at, updated_at`
	patientColumns = personColumns
	doctorColumns  = personColumns + `, specialization`
)

type personRepository struct {
	q queryer
}

func (r *personRepository) emailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM patients WHERE lower(email) = lower($1) AND id <> $2
			UNION ALL
			SELECT 1 FROM doctors WHERE lower(email) = lower($1) AND id <> $2
		)
	`
	var taken bool
	if err := r.q.GetContext(ctx, &taken, query, email, except); err != nil {
		return false, translate(err)
	}
	return taken, nil
}

func (r *personRepository) CreatePatient(ctx context.Context, patient *model.Patient) error {
	taken, err := r.emailTaken(ctx, patient.Email, patient.ID)
	if err != nil {
		return err
	}
	if taken {
		return repository.ErrDuplicate
	}

	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.q.ExecContext(ctx, query,
		patient.ID,
		patient.FirstName,
		patient.LastName,
		patient.Email,
		patient.PasswordHash,
		patient.City,
		patient.Country,
		patient.Street,
		patient.ImageData,
		patient.BirthDay,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", translate(err))
	}
	return nil
}

func (r *personRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	if err := r.q.GetContext(ctx, &patient, query, id); err != nil {
		return nil, translate(err)
	}
	return &patient, nil
}

func (r *personRepository) GetPatientByEmail(ctx context.Context, email string) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients WHERE lower(email) = lower($1)`
	if err := r.q.GetContext(ctx, &patient, query, email); err != nil {
		return nil, translate(err)
	}
	return &patient, nil
}

func (r *personRepository) UpdatePatient(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET first_name = $1, last_name = $2, city = $3, country = $4, street = $5,
			birth_day = $6, image_data = $7, updated_at = $8
		WHERE id = $9
	`
	return execOne(ctx, r.q, query,
		patient.FirstName, patient.LastName, patient.City, patient.Country, patient.Street,
		patient.BirthDay, patient.ImageData, patient.UpdatedAt, patient.ID)
}

func (r *personRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, r.q, `DELETE FROM patients WHERE id = $1`, id)
}

func (r *personRepository) ListPatients(ctx context.Context) ([]*model.Patient, error) {
	var patients []*model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY created_at`
	if err := r.q.SelectContext(ctx, &patients, query); err != nil {
		return nil, translate(err)
	}
	return patients, nil
}

func (r *personRepository) CreateDoctor(ctx context.Context, doctor *model.Doctor) error {
	taken, err := r.emailTaken(ctx, doctor.Email, doctor.ID)
	if err != nil {
		return err
	}
	if taken {
		return repository.ErrDuplicate
	}

	query := `
		INSERT INTO doctors (` + doctorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.q.ExecContext(ctx, query,
		doctor.ID,
		doctor.FirstName,
		doctor.LastName,
		doctor.Email,
		doctor.PasswordHash,
		doctor.City,
		doctor.Country,
		doctor.Street,
		doctor.ImageData,
		doctor.BirthDay,
		doctor.CreatedAt,
		doctor.UpdatedAt,
		doctor.Specialization,
	)
	if err != nil {
		return fmt.Errorf("failed to create doctor: %w", translate(err))
	}
	return nil
}

func (r *personRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	if err := r.q.GetContext(ctx, &doctor, query, id); err != nil {
		return nil, translate(err)
	}
	return &doctor, nil
}

func (r *personRepository) GetDoctorByEmail(ctx context.Context, email string) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE lower(email) = lower($1)`
	if err := r.q.GetContext(ctx, &doctor, query, email); err != nil {
		return nil, translate(err)
	}
	return &doctor, nil
}

func (r *personRepository) UpdateDoctor(ctx context.Context, doctor *model.Doctor) error {
	query := `
		UPDATE doctors
		SET first_name = $1, last_name = $2, city = $3, country = $4, street = $5,
			birth_day = $6, image_data = $7, specialization = $8, updated_at = $9
		WHERE id = $10
	`
	return execOne(ctx, r.q, query,
		doctor.FirstName, doctor.LastName, doctor.City, doctor.Country, doctor.Street,
		doctor.BirthDay, doctor.ImageData, doctor.Specialization, doctor.UpdatedAt, doctor.ID)
}

func (r *personRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, r.q, `DELETE FROM doctors WHERE id = $1`, id)
}

func (r *personRepository) ListDoctors(ctx context.Context) ([]*model.Doctor, error) {
	var doctors []*model.Doctor
	query := `SELECT ` + doctorColumns + ` FROM doctors ORDER BY created_at`
	if err := r.q.SelectContext(ctx, &doctors, query); err != nil {
		return nil, translate(err)
	}
	return doctors, nil
}

func (r *personRepository) FindPersonByEmail(ctx context.Context, email string) (model.Person, error) {
	doctor, err := r.GetDoctorByEmail(ctx, email)
	if err == nil {
		return doctor, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}
	patient, err := r.GetPatientByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return patient, nil
}

func (r *personRepository) FindPersonByID(ctx context.Context, id uuid.UUID) (model.Person, error) {
	doctor, err := r.GetDoctor(ctx, id)
	if err == nil {
		return doctor, nil
	}
	if err != repository.ErrNotFound {
		return nil, err
	}
	patient, err := r.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return patient, nil
}
