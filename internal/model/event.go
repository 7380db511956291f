package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventRecord is the flat queue message. Its shape, not a type tag, decides the
// event kind. JSON names follow the wire format producers already emit.
type EventRecord struct {
	Email              string     `json:"email,omitempty"`
	Message            string     `json:"message,omitempty"`
	AdminEmail         string     `json:"adminEmail,omitempty"`
	DoctorEmail        string     `json:"doctorEmail,omitempty"`
	Doctor2Email       string     `json:"doctor2Email,omitempty"`
	PatientEmail       string     `json:"patientEmail,omitempty"`
	SenderInquiryEmail string     `json:"senderInquiryEmail,omitempty"`
	AppointmentDate    *time.Time `json:"appointmentDate,omitempty"`
	DoctorAnswer       *string    `json:"doctorAnswer,omitempty"`
}

func (r EventRecord) String() string {
	return fmt.Sprintf("EventRecord{email=%q doctorEmail=%q doctor2Email=%q patientEmail=%q sender=%q appointment=%t answered=%t}",
		r.Email, r.DoctorEmail, r.Doctor2Email, r.PatientEmail, r.SenderInquiryEmail,
		r.AppointmentDate != nil, r.DoctorAnswer != nil)
}

// DecodeEventRecord parses one queue message.
func DecodeEventRecord(data []byte) (*EventRecord, error) {
	var rec EventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

type ContactRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Message string `json:"message" binding:"required,max=5000"`
}
