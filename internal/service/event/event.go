package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/carelink/internal/model"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
)

// Kind is one of the four notification event kinds.
type Kind string

const (
	KindContactMessage    Kind = "contact_message"
	KindAppointmentNotice Kind = "appointment_notice"
	KindNewInquiry        Kind = "new_inquiry"
	KindInquiryAnswered   Kind = "inquiry_answered"
)

// OutboxType is the outbox event_type a record of this kind is stored under.
func (k Kind) OutboxType() string {
	switch k {
	case KindContactMessage:
		return model.EventTypeContactMessage
	case KindAppointmentNotice:
		return model.EventTypeAppointmentNotice
	case KindNewInquiry:
		return model.EventTypeInquiryCreated
	default:
		return model.EventTypeInquiryAnswered
	}
}

// Classify decides the kind of rec from which optional fields are present.
// The rules are applied in order and the first match wins:
// contact email, then appointment date, then missing answer, else answered.
func Classify(rec model.EventRecord) Kind {
	switch {
	case rec.Email != "":
		return KindContactMessage
	case rec.AppointmentDate != nil:
		return KindAppointmentNotice
	case rec.DoctorAnswer == nil:
		return KindNewInquiry
	default:
		return KindInquiryAnswered
	}
}

// Event is the parsed, validated form of an EventRecord. The concrete type is
// one of ContactMessage, AppointmentNotice, NewInquiry or InquiryAnswered.
type Event interface {
	Kind() Kind
	// Record converts the event back to its wire shape.
	Record() model.EventRecord
}

// ContactMessage is a public contact-form submission addressed to the admin.
// Message is still percent-encoded.
type ContactMessage struct {
	SenderEmail string
	Message     string
	AdminEmail  string
}

func (ContactMessage) Kind() Kind { return KindContactMessage }

func (e ContactMessage) Record() model.EventRecord {
	return model.EventRecord{Email: e.SenderEmail, Message: e.Message, AdminEmail: e.AdminEmail}
}

type AppointmentNotice struct {
	DoctorEmail  string
	PatientEmail string
	Date         time.Time
}

func (AppointmentNotice) Kind() Kind { return KindAppointmentNotice }

func (e AppointmentNotice) Record() model.EventRecord {
	date := e.Date
	return model.EventRecord{DoctorEmail: e.DoctorEmail, PatientEmail: e.PatientEmail, AppointmentDate: &date}
}

// NewInquiry has exactly one counterpart: PatientEmail for a patient inquiry,
// Doctor2Email for a doctor-to-doctor consult.
type NewInquiry struct {
	DoctorEmail  string
	SenderEmail  string
	PatientEmail string
	Doctor2Email string
}

func (NewInquiry) Kind() Kind { return KindNewInquiry }

func (e NewInquiry) IsConsult() bool { return e.Doctor2Email != "" }

// SentByDoctor reports whether the primary doctor wrote the inquiry.
func (e NewInquiry) SentByDoctor() bool { return e.SenderEmail == e.DoctorEmail }

func (e NewInquiry) Record() model.EventRecord {
	return model.EventRecord{
		DoctorEmail:        e.DoctorEmail,
		Doctor2Email:       e.Doctor2Email,
		PatientEmail:       e.PatientEmail,
		SenderInquiryEmail: e.SenderEmail,
	}
}

// InquiryAnswered carries the answerer in SenderEmail.
type InquiryAnswered struct {
	DoctorEmail  string
	Doctor2Email string
	PatientEmail string
	SenderEmail  string
	Answer       string
}

func (InquiryAnswered) Kind() Kind { return KindInquiryAnswered }

// AnsweredByConsultant reports whether the second doctor gave the answer.
func (e InquiryAnswered) AnsweredByConsultant() bool {
	return e.Doctor2Email != "" && e.SenderEmail == e.Doctor2Email
}

func (e InquiryAnswered) Record() model.EventRecord {
	answer := e.Answer
	return model.EventRecord{
		DoctorEmail:        e.DoctorEmail,
		Doctor2Email:       e.Doctor2Email,
		PatientEmail:       e.PatientEmail,
		SenderInquiryEmail: e.SenderEmail,
		DoctorAnswer:       &answer,
	}
}

// Parse classifies rec and checks that the fields its kind needs are present.
// Shape violations are InvalidInput errors.
func Parse(rec model.EventRecord) (Event, error) {
	kind := Classify(rec)
	switch kind {
	case KindContactMessage:
		if err := requireFields(kind, "message", rec.Message, "adminEmail", rec.AdminEmail); err != nil {
			return nil, err
		}
		return ContactMessage{SenderEmail: rec.Email, Message: rec.Message, AdminEmail: rec.AdminEmail}, nil

	case KindAppointmentNotice:
		if err := requireFields(kind, "doctorEmail", rec.DoctorEmail, "patientEmail", rec.PatientEmail); err != nil {
			return nil, err
		}
		return AppointmentNotice{
			DoctorEmail:  rec.DoctorEmail,
			PatientEmail: rec.PatientEmail,
			Date:         *rec.AppointmentDate,
		}, nil

	case KindNewInquiry:
		if err := requireFields(kind, "doctorEmail", rec.DoctorEmail, "senderInquiryEmail", rec.SenderInquiryEmail); err != nil {
			return nil, err
		}
		hasPatient, hasDoctor2 := rec.PatientEmail != "", rec.Doctor2Email != ""
		if hasPatient == hasDoctor2 {
			return nil, apperrors.InvalidInput(
				fmt.Sprintf("%s needs exactly one of patientEmail or doctor2Email", kind), nil)
		}
		return NewInquiry{
			DoctorEmail:  rec.DoctorEmail,
			SenderEmail:  rec.SenderInquiryEmail,
			PatientEmail: rec.PatientEmail,
			Doctor2Email: rec.Doctor2Email,
		}, nil

	default:
		if err := requireFields(kind, "doctorEmail", rec.DoctorEmail, "senderInquiryEmail", rec.SenderInquiryEmail); err != nil {
			return nil, err
		}
		ev := InquiryAnswered{
			DoctorEmail:  rec.DoctorEmail,
			Doctor2Email: rec.Doctor2Email,
			PatientEmail: rec.PatientEmail,
			SenderEmail:  rec.SenderInquiryEmail,
			Answer:       *rec.DoctorAnswer,
		}
		if !ev.AnsweredByConsultant() && ev.PatientEmail == "" {
			return nil, apperrors.InvalidInput(fmt.Sprintf("%s needs patientEmail", kind), nil)
		}
		return ev, nil
	}
}

// ParseBytes decodes one queue message and parses it.
func ParseBytes(data []byte) (Event, error) {
	rec, err := model.DecodeEventRecord(data)
	if err != nil {
		return nil, apperrors.InvalidInput("malformed event record", err)
	}
	return Parse(*rec)
}

// requireFields takes name/value pairs and reports the missing ones.
func requireFields(kind Kind, pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return apperrors.InvalidInput(fmt.Sprintf("%s missing %s", kind, strings.Join(missing, ", ")), nil)
	}
	return nil
}
