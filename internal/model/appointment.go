package model

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus has a single state; cancellation is not modeled.
type AppointmentStatus string

const AppointmentStatusScheduled AppointmentStatus = "scheduled"

type Appointment struct {
	Base
	PatientID uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Date      time.Time         `db:"date" json:"date"`
	Status    AppointmentStatus `db:"status" json:"status"`
}

type CreateAppointmentRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	Date      time.Time `json:"date" binding:"required"`
}
