package postgres

import (
	"context"

	"github.com/google/uuid"
)

type linkRepository struct {
	q queryer
}

func (r *linkRepository) Add(ctx context.Context, patientID, doctorID uuid.UUID) error {
	query := `
		INSERT INTO patient_doctors (patient_id, doctor_id)
		VALUES ($1, $2)
		ON CONFLICT (patient_id, doctor_id) DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, query, patientID, doctorID)
	return translate(err)
}

func (r *linkRepository) Remove(ctx context.Context, patientID, doctorID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM patient_doctors WHERE patient_id = $1 AND doctor_id = $2`,
		patientID, doctorID)
	return translate(err)
}

func (r *linkRepository) DoctorsOf(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT doctor_id FROM patient_doctors WHERE patient_id = $1 ORDER BY seq`
	if err := r.q.SelectContext(ctx, &ids, query, patientID); err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

func (r *linkRepository) PatientsOf(ctx context.Context, doctorID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT patient_id FROM patient_doctors WHERE doctor_id = $1 ORDER BY seq`
	if err := r.q.SelectContext(ctx, &ids, query, doctorID); err != nil {
		return nil, translate(err)
	}
	return ids, nil
}
