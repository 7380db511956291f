package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
)

const inquiryColumns = `id, doctor_id, patient_id, consultant_id, sender_id, symptoms, answered, answer, created_at, updated_at`

type inquiryRepository struct {
	q queryer
}

func (r *inquiryRepository) Create(ctx context.Context, inquiry *model.Inquiry) error {
	query := `
		INSERT INTO inquiries (` + inquiryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.q.ExecContext(ctx, query,
		inquiry.ID,
		inquiry.DoctorID,
		inquiry.PatientID,
		inquiry.ConsultantID,
		inquiry.SenderID,
		inquiry.Symptoms,
		inquiry.Answered,
		inquiry.Answer,
		inquiry.CreatedAt,
		inquiry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inquiry: %w", translate(err))
	}
	return nil
}

func (r *inquiryRepository) Get(ctx context.Context, id uuid.UUID) (*model.Inquiry, error) {
	var inquiry model.Inquiry
	query := `SELECT ` + inquiryColumns + ` FROM inquiries WHERE id = $1`
	if err := r.q.GetContext(ctx, &inquiry, query, id); err != nil {
		return nil, translate(err)
	}
	return &inquiry, nil
}

// MarkAnswered only matches an unanswered row, so a second answer misses.
func (r *inquiryRepository) MarkAnswered(ctx context.Context, id uuid.UUID, answer string, at time.Time) error {
	query := `
		UPDATE inquiries
		SET answered = TRUE, answer = $1, updated_at = $2
		WHERE id = $3 AND answered = FALSE
	`
	return execOne(ctx, r.q, query, answer, at, id)
}

func (r *inquiryRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Inquiry, error) {
	var inquiries []*model.Inquiry
	query := `
		SELECT ` + inquiryColumns + ` FROM inquiries
		WHERE doctor_id = $1 OR consultant_id = $1
		ORDER BY created_at
	`
	if err := r.q.SelectContext(ctx, &inquiries, query, doctorID); err != nil {
		return nil, translate(err)
	}
	return inquiries, nil
}

func (r *inquiryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Inquiry, error) {
	var inquiries []*model.Inquiry
	query := `SELECT ` + inquiryColumns + ` FROM inquiries WHERE patient_id = $1 ORDER BY created_at`
	if err := r.q.SelectContext(ctx, &inquiries, query, patientID); err != nil {
		return nil, translate(err)
	}
	return inquiries, nil
}

func (r *inquiryRepository) DeleteByPerson(ctx context.Context, personID uuid.UUID) error {
	query := `DELETE FROM inquiries WHERE doctor_id = $1 OR patient_id = $1 OR consultant_id = $1`
	_, err := r.q.ExecContext(ctx, query, personID)
	return translate(err)
}
