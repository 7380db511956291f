package model

import (
	"github.com/google/uuid"
)

type InquiryStatus string

const (
	InquiryStatusUnanswered InquiryStatus = "unanswered"
	InquiryStatusAnswered   InquiryStatus = "answered"
)

// Inquiry is addressed to DoctorID. Exactly one of PatientID or ConsultantID is
// set: a patient inquiry, or a doctor-to-doctor consult where DoctorID authored
// the question and ConsultantID answers it.
type Inquiry struct {
	Base
	DoctorID     uuid.UUID     `db:"doctor_id" json:"doctor_id"`
	PatientID    uuid.NullUUID `db:"patient_id" json:"patient_id"`
	ConsultantID uuid.NullUUID `db:"consultant_id" json:"consultant_id"`
	SenderID     uuid.UUID     `db:"sender_id" json:"sender_id"`
	Symptoms     string        `db:"symptoms" json:"symptoms"`
	Answered     bool          `db:"answered" json:"answered"`
	Answer       *string       `db:"answer" json:"answer,omitempty"`
}

func (i *Inquiry) Status() InquiryStatus {
	if i.Answered {
		return InquiryStatusAnswered
	}
	return InquiryStatusUnanswered
}

// IsConsult reports whether the counterpart is a second doctor.
func (i *Inquiry) IsConsult() bool {
	return i.ConsultantID.Valid
}

type CreateInquiryRequest struct {
	DoctorID     uuid.UUID  `json:"doctor_id" binding:"required"`
	PatientID    *uuid.UUID `json:"patient_id"`
	ConsultantID *uuid.UUID `json:"consultant_id"`
	SenderID     uuid.UUID  `json:"sender_id" binding:"required"`
	Symptoms     string     `json:"symptoms" binding:"required,max=2000"`
}

type AnswerInquiryRequest struct {
	AnswererID uuid.UUID `json:"answerer_id" binding:"required"`
	Answer     string    `json:"answer" binding:"required,max=4000"`
}
