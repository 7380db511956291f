package relation

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
	"github.com/jwalitptl/carelink/internal/service/event"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
)

// CreateAppointment books a slot for the pair. The doctor row is locked before
// the conflict scan so two bookings of the same slot cannot both pass it.
func (s *Service) CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	now := s.now()
	if !req.Date.After(now) {
		return nil, apperrors.InvalidInput("appointment date must be in the future", nil)
	}

	appointment := &model.Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date.UTC(),
		Status:    model.AppointmentStatusScheduled,
	}
	appointment.ID = uuid.New()
	appointment.Touch(now)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		patient, err := tx.Persons().GetPatient(ctx, req.PatientID)
		if err != nil {
			return storeErr(err, "patient")
		}
		if err := tx.Appointments().LockDoctor(ctx, req.DoctorID); err != nil {
			return storeErr(err, "doctor")
		}
		doctor, err := tx.Persons().GetDoctor(ctx, req.DoctorID)
		if err != nil {
			return storeErr(err, "doctor")
		}

		existing, err := tx.Appointments().ListByDoctor(ctx, req.DoctorID)
		if err != nil {
			return storeErr(err, "appointment")
		}
		for _, a := range existing {
			if a.Date.Equal(appointment.Date) {
				return apperrors.Conflict("doctor already has an appointment at this time", nil)
			}
		}

		if err := tx.Appointments().Create(ctx, appointment); err != nil {
			if apperrors.IsConflict(storeErr(err, "appointment")) {
				return apperrors.Conflict("doctor already has an appointment at this time", err)
			}
			return storeErr(err, "appointment")
		}

		return enqueue(ctx, tx, event.AppointmentNotice{
			DoctorEmail:  doctor.Email,
			PatientEmail: patient.Email,
			Date:         appointment.Date,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment created",
		"appointment_id", appointment.ID.String(),
		"doctor_id", appointment.DoctorID.String())
	return appointment, nil
}

func (s *Service) AppointmentsOfPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	var out []*model.Appointment
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Persons().GetPatient(ctx, patientID); err != nil {
			return storeErr(err, "patient")
		}
		var err error
		out, err = tx.Appointments().ListByPatient(ctx, patientID)
		return storeErr(err, "appointment")
	})
	return out, err
}

func (s *Service) AppointmentsOfDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Appointment, error) {
	var out []*model.Appointment
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Persons().GetDoctor(ctx, doctorID); err != nil {
			return storeErr(err, "doctor")
		}
		var err error
		out, err = tx.Appointments().ListByDoctor(ctx, doctorID)
		return storeErr(err, "appointment")
	})
	return out, err
}

// CreateInquiry opens an unanswered inquiry addressed to req.DoctorID. A
// patient inquiry may be sent by either party; a consult is always sent by the
// primary doctor to the consultant.
func (s *Service) CreateInquiry(ctx context.Context, req *model.CreateInquiryRequest) (*model.Inquiry, error) {
	if (req.PatientID == nil) == (req.ConsultantID == nil) {
		return nil, apperrors.InvalidInput("exactly one of patient_id or consultant_id is required", nil)
	}

	inquiry := &model.Inquiry{
		DoctorID: req.DoctorID,
		SenderID: req.SenderID,
		Symptoms: req.Symptoms,
	}
	inquiry.ID = uuid.New()
	inquiry.Touch(s.now())

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		doctor, err := tx.Persons().GetDoctor(ctx, req.DoctorID)
		if err != nil {
			return storeErr(err, "doctor")
		}

		notice := event.NewInquiry{DoctorEmail: doctor.Email}
		senderEmail := ""
		if req.SenderID == doctor.ID {
			senderEmail = doctor.Email
		}

		if req.PatientID != nil {
			patient, err := tx.Persons().GetPatient(ctx, *req.PatientID)
			if err != nil {
				return storeErr(err, "patient")
			}
			if req.SenderID == patient.ID {
				senderEmail = patient.Email
			}
			inquiry.PatientID = uuid.NullUUID{UUID: patient.ID, Valid: true}
			notice.PatientEmail = patient.Email
		} else {
			if *req.ConsultantID == doctor.ID {
				return apperrors.InvalidInput("a doctor cannot consult themselves", nil)
			}
			consultant, err := tx.Persons().GetDoctor(ctx, *req.ConsultantID)
			if err != nil {
				return storeErr(err, "consultant")
			}
			if req.SenderID != doctor.ID {
				return apperrors.InvalidInput("a consult must be sent by the primary doctor", nil)
			}
			inquiry.ConsultantID = uuid.NullUUID{UUID: consultant.ID, Valid: true}
			notice.Doctor2Email = consultant.Email
		}

		if senderEmail == "" {
			return apperrors.InvalidInput("sender must be a party of the inquiry", nil)
		}
		notice.SenderEmail = senderEmail

		if err := tx.Inquiries().Create(ctx, inquiry); err != nil {
			return storeErr(err, "inquiry")
		}
		return enqueue(ctx, tx, notice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inquiry created", "inquiry_id", inquiry.ID.String(), "consult", inquiry.IsConsult())
	return inquiry, nil
}

// AnswerInquiry moves an inquiry from unanswered to answered. Only the
// addressed doctor may answer: the primary doctor of a patient inquiry, or
// the consultant of a consult. A second answer is a Conflict.
func (s *Service) AnswerInquiry(ctx context.Context, id uuid.UUID, req *model.AnswerInquiryRequest) (*model.Inquiry, error) {
	var inquiry *model.Inquiry
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		if inquiry, err = tx.Inquiries().Get(ctx, id); err != nil {
			return storeErr(err, "inquiry")
		}
		if inquiry.Answered {
			return apperrors.Conflict("inquiry already answered", nil)
		}

		answerer := inquiry.DoctorID
		if inquiry.IsConsult() {
			answerer = inquiry.ConsultantID.UUID
		}
		if req.AnswererID != answerer {
			return apperrors.InvalidInput("answerer is not the addressed doctor", nil)
		}

		doctor, err := tx.Persons().GetDoctor(ctx, inquiry.DoctorID)
		if err != nil {
			return storeErr(err, "doctor")
		}
		notice := event.InquiryAnswered{DoctorEmail: doctor.Email, SenderEmail: doctor.Email, Answer: req.Answer}

		if inquiry.IsConsult() {
			consultant, err := tx.Persons().GetDoctor(ctx, inquiry.ConsultantID.UUID)
			if err != nil {
				return storeErr(err, "consultant")
			}
			notice.Doctor2Email = consultant.Email
			notice.SenderEmail = consultant.Email
		} else {
			patient, err := tx.Persons().GetPatient(ctx, inquiry.PatientID.UUID)
			if err != nil {
				return storeErr(err, "patient")
			}
			notice.PatientEmail = patient.Email
		}

		now := s.now()
		if err := tx.Inquiries().MarkAnswered(ctx, id, req.Answer, now); err != nil {
			return storeErr(err, "inquiry")
		}
		answer := req.Answer
		inquiry.Answered = true
		inquiry.Answer = &answer
		inquiry.UpdatedAt = now

		return enqueue(ctx, tx, notice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inquiry answered", "inquiry_id", id.String())
	return inquiry, nil
}

func (s *Service) InquiriesOfPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Inquiry, error) {
	var out []*model.Inquiry
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Persons().GetPatient(ctx, patientID); err != nil {
			return storeErr(err, "patient")
		}
		var err error
		out, err = tx.Inquiries().ListByPatient(ctx, patientID)
		return storeErr(err, "inquiry")
	})
	return out, err
}

// InquiriesOfDoctor includes consults the doctor was asked to answer.
func (s *Service) InquiriesOfDoctor(ctx context.Context, doctorID uuid.UUID) ([]*model.Inquiry, error) {
	var out []*model.Inquiry
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Persons().GetDoctor(ctx, doctorID); err != nil {
			return storeErr(err, "doctor")
		}
		var err error
		out, err = tx.Inquiries().ListByDoctor(ctx, doctorID)
		return storeErr(err, "inquiry")
	})
	return out, err
}

// SubmitContact queues a contact-form message for the admin. The message is
// percent-encoded on the wire.
func (s *Service) SubmitContact(ctx context.Context, req *model.ContactRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.InvalidInput("message is required", nil)
	}
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		return enqueue(ctx, tx, event.ContactMessage{
			SenderEmail: req.Email,
			Message:     url.QueryEscape(req.Message),
			AdminEmail:  s.adminEmail,
		})
	})
}
