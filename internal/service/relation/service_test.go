package relation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository/memory"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
	"github.com/jwalitptl/carelink/pkg/logger"
	"github.com/jwalitptl/carelink/pkg/security"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	svc := NewService(store, security.NewBcryptHasher(bcrypt.MinCost), "admin@care.com", logger.Nop(),
		WithClock(func() time.Time { return fixedNow }))
	return &fixture{svc: svc, store: store, ctx: context.Background()}
}

func (f *fixture) patient(t *testing.T, email string) *model.Patient {
	t.Helper()
	p, err := f.svc.CreatePatient(f.ctx, &model.CreatePatientRequest{CreatePersonRequest: model.CreatePersonRequest{
		FirstName: "Pat", LastName: "Lee", Email: email, Password: "password123",
	}})
	require.NoError(t, err)
	return p
}

func (f *fixture) doctor(t *testing.T, email string) *model.Doctor {
	t.Helper()
	d, err := f.svc.CreateDoctor(f.ctx, &model.CreateDoctorRequest{
		CreatePersonRequest: model.CreatePersonRequest{
			FirstName: "Dana", LastName: "House", Email: email, Password: "password123",
		},
		Specialization: "cardiology",
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) pendingEvents(t *testing.T) []model.EventRecord {
	t.Helper()
	claimed, err := f.store.Outbox().ClaimPending(f.ctx, 100)
	require.NoError(t, err)
	records := make([]model.EventRecord, 0, len(claimed))
	for _, e := range claimed {
		var rec model.EventRecord
		require.NoError(t, json.Unmarshal(e.Payload, &rec))
		records = append(records, rec)
	}
	return records
}

func TestCreatePatientProvisionsUserAndRole(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")

	assert.NotEqual(t, "password123", p.PasswordHash)

	user, err := f.store.Users().GetByEmail(f.ctx, "pat@y.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, user.ID)
	assert.Equal(t, []string{model.RolePatient}, user.RoleNames())
}

func TestEmailUniqueAcrossPatientsAndDoctors(t *testing.T) {
	f := newFixture(t)
	f.patient(t, "same@x.com")

	_, err := f.svc.CreateDoctor(f.ctx, &model.CreateDoctorRequest{
		CreatePersonRequest: model.CreatePersonRequest{FirstName: "A", LastName: "B", Email: "SAME@x.com", Password: "password123"},
		Specialization:      "x",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	doctors, err := f.svc.ListDoctors(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, doctors)
}

func TestCreatePatientShortPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePatient(f.ctx, &model.CreatePatientRequest{CreatePersonRequest: model.CreatePersonRequest{
		FirstName: "A", LastName: "B", Email: "a@b.com", Password: "short",
	}})
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestLinkSymmetryAndIdempotence(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	d1 := f.doctor(t, "d1@x.com")
	d2 := f.doctor(t, "d2@x.com")

	require.NoError(t, f.svc.LinkDoctor(f.ctx, p.ID, d1.ID))
	require.NoError(t, f.svc.LinkDoctor(f.ctx, p.ID, d1.ID))
	require.NoError(t, f.svc.LinkDoctor(f.ctx, p.ID, d2.ID))

	doctors, err := f.svc.DoctorsOf(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, d1.ID, doctors[0].ID)
	assert.Equal(t, d2.ID, doctors[1].ID)

	for _, d := range []*model.Doctor{d1, d2} {
		patients, err := f.svc.PatientsOf(f.ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, patients, 1)
		assert.Equal(t, p.ID, patients[0].ID)
	}

	require.NoError(t, f.svc.UnlinkDoctor(f.ctx, p.ID, d1.ID))
	patients, err := f.svc.PatientsOf(f.ctx, d1.ID)
	require.NoError(t, err)
	assert.Empty(t, patients)
	doctors, err = f.svc.DoctorsOf(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, d2.ID, doctors[0].ID)
}

func TestLinkUnknownDoctor(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")

	err := f.svc.LinkDoctor(f.ctx, p.ID, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	d := f.doctor(t, "doc@x.com")
	date := fixedNow.Add(48 * time.Hour)

	apt, err := f.svc.CreateAppointment(f.ctx, &model.CreateAppointmentRequest{PatientID: p.ID, DoctorID: d.ID, Date: date})
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)

	ofPatient, err := f.svc.AppointmentsOfPatient(f.ctx, p.ID)
	require.NoError(t, err)
	ofDoctor, err := f.svc.AppointmentsOfDoctor(f.ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, ofPatient, 1)
	require.Len(t, ofDoctor, 1)
	assert.Equal(t, apt.ID, ofPatient[0].ID)
	assert.Equal(t, apt.ID, ofDoctor[0].ID)

	events := f.pendingEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "doc@x.com", events[0].DoctorEmail)
	assert.Equal(t, "pat@y.com", events[0].PatientEmail)
	require.NotNil(t, events[0].AppointmentDate)
	assert.True(t, date.Equal(*events[0].AppointmentDate))
}

func TestCreateAppointmentConflictLeavesListUnchanged(t *testing.T) {
	f := newFixture(t)
	p1 := f.patient(t, "p1@y.com")
	p2 := f.patient(t, "p2@y.com")
	d := f.doctor(t, "doc@x.com")
	date := fixedNow.Add(time.Hour)

	_, err := f.svc.CreateAppointment(f.ctx, &model.CreateAppointmentRequest{PatientID: p1.ID, DoctorID: d.ID, Date: date})
	require.NoError(t, err)

	_, err = f.svc.CreateAppointment(f.ctx, &model.CreateAppointmentRequest{PatientID: p2.ID, DoctorID: d.ID, Date: date})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	list, err := f.svc.AppointmentsOfDoctor(f.ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, f.pendingEvents(t), 1)
}

func TestCreateAppointmentRejectsPastAndPresent(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	d := f.doctor(t, "doc@x.com")

	for _, date := range []time.Time{fixedNow, fixedNow.Add(-time.Minute)} {
		_, err := f.svc.CreateAppointment(f.ctx, &model.CreateAppointmentRequest{PatientID: p.ID, DoctorID: d.ID, Date: date})
		assert.True(t, apperrors.IsInvalidInput(err))
	}
}

func TestConcurrentBookingsOfOneSlot(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, "doc@x.com")
	date := fixedNow.Add(24 * time.Hour)

	const n = 8
	patients := make([]*model.Patient, n)
	for i := range patients {
		patients[i] = f.patient(t, uuid.NewString()+"@y.com")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(p *model.Patient) {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(f.ctx, &model.CreateAppointmentRequest{PatientID: p.ID, DoctorID: d.ID, Date: date})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperrors.IsConflict(err) {
				conflicts++
			}
		}(patients[i])
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)
}

func TestInquiryLifecycle(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	d := f.doctor(t, "doc@x.com")

	inquiry, err := f.svc.CreateInquiry(f.ctx, &model.CreateInquiryRequest{
		DoctorID: d.ID, PatientID: &p.ID, SenderID: p.ID, Symptoms: "cough",
	})
	require.NoError(t, err)
	assert.False(t, inquiry.Answered)
	assert.Equal(t, model.InquiryStatusUnanswered, inquiry.Status())

	_, err = f.svc.AnswerInquiry(f.ctx, inquiry.ID, &model.AnswerInquiryRequest{AnswererID: p.ID, Answer: "self"})
	assert.True(t, apperrors.IsInvalidInput(err))

	answered, err := f.svc.AnswerInquiry(f.ctx, inquiry.ID, &model.AnswerInquiryRequest{AnswererID: d.ID, Answer: "rest"})
	require.NoError(t, err)
	assert.Equal(t, model.InquiryStatusAnswered, answered.Status())
	require.NotNil(t, answered.Answer)
	assert.Equal(t, "rest", *answered.Answer)

	_, err = f.svc.AnswerInquiry(f.ctx, inquiry.ID, &model.AnswerInquiryRequest{AnswererID: d.ID, Answer: "again"})
	assert.True(t, apperrors.IsConflict(err))

	events := f.pendingEvents(t)
	require.Len(t, events, 2)
	assert.Equal(t, "pat@y.com", events[0].SenderInquiryEmail)
	assert.Nil(t, events[0].DoctorAnswer)
	require.NotNil(t, events[1].DoctorAnswer)
	assert.Equal(t, "doc@x.com", events[1].SenderInquiryEmail)
	assert.Equal(t, "pat@y.com", events[1].PatientEmail)

	ofPatient, err := f.svc.InquiriesOfPatient(f.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ofPatient, 1)
	assert.True(t, ofPatient[0].Answered)
}

func TestConsultInquiry(t *testing.T) {
	f := newFixture(t)
	d1 := f.doctor(t, "doc@x.com")
	d2 := f.doctor(t, "d2@x.com")

	inquiry, err := f.svc.CreateInquiry(f.ctx, &model.CreateInquiryRequest{
		DoctorID: d1.ID, ConsultantID: &d2.ID, SenderID: d1.ID, Symptoms: "second opinion",
	})
	require.NoError(t, err)
	assert.True(t, inquiry.IsConsult())

	forConsultant, err := f.svc.InquiriesOfDoctor(f.ctx, d2.ID)
	require.NoError(t, err)
	assert.Len(t, forConsultant, 1)

	_, err = f.svc.AnswerInquiry(f.ctx, inquiry.ID, &model.AnswerInquiryRequest{AnswererID: d2.ID, Answer: "agree"})
	require.NoError(t, err)

	events := f.pendingEvents(t)
	require.Len(t, events, 2)
	assert.Equal(t, "d2@x.com", events[0].Doctor2Email)
	assert.Equal(t, "doc@x.com", events[0].SenderInquiryEmail)
	assert.Equal(t, "d2@x.com", events[1].SenderInquiryEmail)
}

func TestCreateInquiryValidation(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	d := f.doctor(t, "doc@x.com")
	stranger := uuid.New()

	tests := []struct {
		name  string
		req   model.CreateInquiryRequest
		check func(error) bool
	}{
		{"unknown doctor", model.CreateInquiryRequest{DoctorID: uuid.New(), PatientID: &p.ID, SenderID: p.ID, Symptoms: "x"}, apperrors.IsNotFound},
		{"no counterpart", model.CreateInquiryRequest{DoctorID: d.ID, SenderID: d.ID, Symptoms: "x"}, apperrors.IsInvalidInput},
		{"both counterparts", model.CreateInquiryRequest{DoctorID: d.ID, PatientID: &p.ID, ConsultantID: &d.ID, SenderID: d.ID, Symptoms: "x"}, apperrors.IsInvalidInput},
		{"self consult", model.CreateInquiryRequest{DoctorID: d.ID, ConsultantID: &d.ID, SenderID: d.ID, Symptoms: "x"}, apperrors.IsInvalidInput},
		{"outside sender", model.CreateInquiryRequest{DoctorID: d.ID, PatientID: &p.ID, SenderID: stranger, Symptoms: "x"}, apperrors.IsInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.svc.CreateInquiry(f.ctx, &req)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
	assert.Empty(t, f.pendingEvents(t))
}

func TestDeletePatientCascades(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	other := f.patient(t, "other@y.com")
	d1 := f.doctor(t, "d1@x.com")
	d2 := f.doctor(t, "d2@x.com")

	for _, d := range []*model.Doctor{d1, d2} {
		require.NoError(t, f.svc.LinkDoctor(f.ctx, p.ID, d.ID))
		require.NoError(t, f.svc.LinkDoctor(f.ctx, other.ID, d.ID))
	}
	_, err := f.svc.CreateAppointment(f.ctx, &model.CreateAppointmentRequest{PatientID: p.ID, DoctorID: d1.ID, Date: fixedNow.Add(time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.CreateInquiry(f.ctx, &model.CreateInquiryRequest{DoctorID: d2.ID, PatientID: &p.ID, SenderID: p.ID, Symptoms: "x"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeletePatient(f.ctx, p.ID))

	for _, d := range []*model.Doctor{d1, d2} {
		patients, err := f.svc.PatientsOf(f.ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, patients, 1)
		assert.Equal(t, other.ID, patients[0].ID)

		apts, err := f.svc.AppointmentsOfDoctor(f.ctx, d.ID)
		require.NoError(t, err)
		assert.Empty(t, apts)

		inquiries, err := f.svc.InquiriesOfDoctor(f.ctx, d.ID)
		require.NoError(t, err)
		assert.Empty(t, inquiries)
	}

	_, err = f.store.Users().GetByEmail(f.ctx, "pat@y.com")
	assert.Error(t, err)
	_, err = f.svc.GetPatient(f.ctx, p.ID)
	assert.True(t, apperrors.IsNotFound(err))

	assert.True(t, apperrors.IsNotFound(f.svc.DeletePatient(f.ctx, p.ID)))
}

func TestDeleteDoctorCascades(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "pat@y.com")
	d := f.doctor(t, "doc@x.com")
	require.NoError(t, f.svc.LinkDoctor(f.ctx, p.ID, d.ID))

	require.NoError(t, f.svc.DeleteDoctor(f.ctx, d.ID))

	doctors, err := f.svc.DoctorsOf(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, doctors)
}

func TestGrantRoleKeepsDuplicates(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, "doc@x.com")

	_, err := f.svc.GrantRole(f.ctx, model.PersonKindDoctor, d.ID, model.RoleAdmin)
	require.NoError(t, err)
	user, err := f.svc.GrantRole(f.ctx, model.PersonKindDoctor, d.ID, model.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, []string{model.RoleDoctor, model.RoleAdmin, model.RoleAdmin}, user.RoleNames())

	_, err = f.svc.GrantRole(f.ctx, model.PersonKindPatient, d.ID, model.RoleAdmin)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateDoctor(t *testing.T) {
	f := newFixture(t)
	d := f.doctor(t, "doc@x.com")
	city, specialization := "Oslo", "neurology"

	updated, err := f.svc.UpdateDoctor(f.ctx, d.ID, &model.UpdatePersonRequest{City: &city, Specialization: &specialization})
	require.NoError(t, err)
	assert.Equal(t, "Oslo", updated.City)
	assert.Equal(t, "neurology", updated.Specialization)
	assert.Equal(t, "Dana", updated.FirstName)
}

func TestSubmitContactEncodesMessage(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.SubmitContact(f.ctx, &model.ContactRequest{Email: "visitor@z.com", Message: "Hello there"}))

	events := f.pendingEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "visitor@z.com", events[0].Email)
	assert.Equal(t, "Hello+there", events[0].Message)
	assert.Equal(t, "admin@care.com", events[0].AdminEmail)
}

func TestFindPersonByEmail(t *testing.T) {
	f := newFixture(t)
	f.patient(t, "pat@y.com")
	f.doctor(t, "doc@x.com")

	person, err := f.svc.FindPersonByEmail(f.ctx, "doc@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.PersonKindDoctor, person.Kind())

	person, err = f.svc.FindPersonByEmail(f.ctx, "pat@y.com")
	require.NoError(t, err)
	assert.Equal(t, model.PersonKindPatient, person.Kind())

	_, err = f.svc.FindPersonByEmail(f.ctx, "nobody@x.com")
	assert.True(t, apperrors.IsNotFound(err))
}
