package notification

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/service/event"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
)

const (
	roleDoctor  = "Doctor"
	rolePatient = "Patient"
)

type strategy func(ctx context.Context, res *Resolver, ev event.Event) ([]model.Dispatch, error)

// Router turns one parsed event into its dispatch tuples. It never sends and
// holds no identity state between events.
type Router struct {
	strategies map[event.Kind]strategy
}

func NewRouter() *Router {
	r := &Router{}
	r.strategies = map[event.Kind]strategy{
		event.KindContactMessage:    r.contactMessage,
		event.KindAppointmentNotice: r.appointmentNotice,
		event.KindNewInquiry:        r.newInquiry,
		event.KindInquiryAnswered:   r.inquiryAnswered,
	}
	return r
}

// Route resolves every identity against dir before building any tuple, so an
// error means nothing should be sent for ev.
func (r *Router) Route(ctx context.Context, dir Directory, ev event.Event) ([]model.Dispatch, error) {
	route, ok := r.strategies[ev.Kind()]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("no route for %s", ev.Kind()), nil)
	}
	return route(ctx, NewResolver(dir), ev)
}

func (r *Router) contactMessage(_ context.Context, _ *Resolver, ev event.Event) ([]model.Dispatch, error) {
	msg := ev.(event.ContactMessage)

	decoded, err := url.QueryUnescape(msg.Message)
	if err != nil {
		return nil, apperrors.InvalidInput("contact message is not percent-encoded", err)
	}

	body, err := render("contact", contactBody{Message: decoded, SenderEmail: msg.SenderEmail})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return []model.Dispatch{{Recipient: msg.AdminEmail, Subject: subjectContact, Body: body}}, nil
}

func (r *Router) appointmentNotice(ctx context.Context, res *Resolver, ev event.Event) ([]model.Dispatch, error) {
	notice := ev.(event.AppointmentNotice)

	doctor, err := res.Doctor(ctx, notice.DoctorEmail)
	if err != nil {
		return nil, err
	}
	patient, err := res.Patient(ctx, notice.PatientEmail)
	if err != nil {
		return nil, err
	}

	body, err := render("appointment", appointmentBody{
		DoctorName:  doctor.FullName(),
		PatientName: patient.FullName(),
		Date:        notice.Date.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return []model.Dispatch{
		{Recipient: notice.PatientEmail, Subject: subjectAppointment, Body: body},
		{Recipient: notice.DoctorEmail, Subject: subjectAppointment, Body: body},
	}, nil
}

// newInquiry addresses the counterpart of the sender. In a patient inquiry the
// sender is either the doctor or the patient; a consult always goes from the
// primary doctor to the second doctor.
func (r *Router) newInquiry(ctx context.Context, res *Resolver, ev event.Event) ([]model.Dispatch, error) {
	inquiry := ev.(event.NewInquiry)

	doctor, err := res.Doctor(ctx, inquiry.DoctorEmail)
	if err != nil {
		return nil, err
	}

	senderRole := rolePatient
	if inquiry.SentByDoctor() {
		senderRole = roleDoctor
	}

	var recipient, recipientName, senderName string
	if inquiry.IsConsult() {
		if !inquiry.SentByDoctor() {
			return nil, apperrors.InvalidInput("consult inquiry must be sent by the primary doctor", nil)
		}
		doctor2, err := res.Doctor(ctx, inquiry.Doctor2Email)
		if err != nil {
			return nil, err
		}
		recipient, recipientName = inquiry.Doctor2Email, doctor2.FullName()
		senderName = doctor.FullName()
	} else {
		patient, err := res.Patient(ctx, inquiry.PatientEmail)
		if err != nil {
			return nil, err
		}
		if inquiry.SentByDoctor() {
			recipient, recipientName = inquiry.PatientEmail, patient.FullName()
			senderName = doctor.FullName()
		} else {
			recipient, recipientName = inquiry.DoctorEmail, doctor.FullName()
			senderName = patient.FullName()
		}
	}

	body, err := render("new_inquiry", newInquiryBody{
		SenderRole:    senderRole,
		SenderName:    senderName,
		RecipientName: recipientName,
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return []model.Dispatch{{Recipient: recipient, Subject: subjectNewInquiry, Body: body}}, nil
}

// inquiryAnswered notifies the party that did not answer.
func (r *Router) inquiryAnswered(ctx context.Context, res *Resolver, ev event.Event) ([]model.Dispatch, error) {
	answered := ev.(event.InquiryAnswered)

	doctor, err := res.Doctor(ctx, answered.DoctorEmail)
	if err != nil {
		return nil, err
	}

	var recipient string
	data := answeredBody{}
	if answered.AnsweredByConsultant() {
		doctor2, err := res.Doctor(ctx, answered.Doctor2Email)
		if err != nil {
			return nil, err
		}
		recipient = answered.DoctorEmail
		data.RecipientName = doctor.FullName()
		data.DoctorName = doctor2.FullName()
	} else {
		patient, err := res.Patient(ctx, answered.PatientEmail)
		if err != nil {
			return nil, err
		}
		recipient = answered.PatientEmail
		data.RecipientName = patient.FullName()
		data.DoctorName = doctor.FullName()
	}

	body, err := render("answered", data)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return []model.Dispatch{{Recipient: recipient, Subject: subjectAnswered, Body: body}}, nil
}
