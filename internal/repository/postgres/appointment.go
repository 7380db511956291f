package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
)

const appointmentColumns = `id, patient_id, doctor_id, date, status, created_at, updated_at`

type appointmentRepository struct {
	q queryer
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.Date,
		appointment.Status,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", translate(err))
	}
	return nil
}

func (r *appointmentRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE doctor_id = $1 ORDER BY date`
	if err := r.q.SelectContext(ctx, &appointments, query, doctorID); err != nil {
		return nil, translate(err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	var appointments []*model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY date`
	if err := r.q.SelectContext(ctx, &appointments, query, patientID); err != nil {
		return nil, translate(err)
	}
	return appointments, nil
}

func (r *appointmentRepository) DeleteByPerson(ctx context.Context, personID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM appointments WHERE patient_id = $1 OR doctor_id = $1`, personID)
	return translate(err)
}

func (r *appointmentRepository) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	var id uuid.UUID
	if err := r.q.GetContext(ctx, &id, `SELECT id FROM doctors WHERE id = $1 FOR UPDATE`, doctorID); err != nil {
		return translate(err)
	}
	return nil
}
