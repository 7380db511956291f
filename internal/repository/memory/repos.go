package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
)

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (st *state) emailTaken(email string, except uuid.UUID) bool {
	for id, p := range st.patients {
		if id != except && sameEmail(p.Email, email) {
			return true
		}
	}
	for id, d := range st.doctors {
		if id != except && sameEmail(d.Email, email) {
			return true
		}
	}
	return false
}

type personRepo struct{ v *view }

func (r *personRepo) CreatePatient(_ context.Context, patient *model.Patient) error {
	return r.v.with(func(st *state) error {
		if st.emailTaken(patient.Email, patient.ID) {
			return repository.ErrDuplicate
		}
		st.patients[patient.ID] = *patient
		return nil
	})
}

func (r *personRepo) GetPatient(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	var out *model.Patient
	err := r.v.with(func(st *state) error {
		p, ok := st.patients[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *personRepo) GetPatientByEmail(_ context.Context, email string) (*model.Patient, error) {
	var out *model.Patient
	err := r.v.with(func(st *state) error {
		for _, p := range st.patients {
			if sameEmail(p.Email, email) {
				p := p
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *personRepo) UpdatePatient(_ context.Context, patient *model.Patient) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.patients[patient.ID]; !ok {
			return repository.ErrNotFound
		}
		st.patients[patient.ID] = *patient
		return nil
	})
}

func (r *personRepo) DeletePatient(_ context.Context, id uuid.UUID) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.patients[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.patients, id)
		return nil
	})
}

func (r *personRepo) ListPatients(_ context.Context) ([]*model.Patient, error) {
	var out []*model.Patient
	err := r.v.with(func(st *state) error {
		for _, p := range st.patients {
			p := p
			out = append(out, &p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *personRepo) CreateDoctor(_ context.Context, doctor *model.Doctor) error {
	return r.v.with(func(st *state) error {
		if st.emailTaken(doctor.Email, doctor.ID) {
			return repository.ErrDuplicate
		}
		st.doctors[doctor.ID] = *doctor
		return nil
	})
}

func (r *personRepo) GetDoctor(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	var out *model.Doctor
	err := r.v.with(func(st *state) error {
		d, ok := st.doctors[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &d
		return nil
	})
	return out, err
}

func (r *personRepo) GetDoctorByEmail(_ context.Context, email string) (*model.Doctor, error) {
	var out *model.Doctor
	err := r.v.with(func(st *state) error {
		for _, d := range st.doctors {
			if sameEmail(d.Email, email) {
				d := d
				out = &d
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *personRepo) UpdateDoctor(_ context.Context, doctor *model.Doctor) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.doctors[doctor.ID]; !ok {
			return repository.ErrNotFound
		}
		st.doctors[doctor.ID] = *doctor
		return nil
	})
}

func (r *personRepo) DeleteDoctor(_ context.Context, id uuid.UUID) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.doctors[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.doctors, id)
		return nil
	})
}

func (r *personRepo) ListDoctors(_ context.Context) ([]*model.Doctor, error) {
	var out []*model.Doctor
	err := r.v.with(func(st *state) error {
		for _, d := range st.doctors {
			d := d
			out = append(out, &d)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *personRepo) FindPersonByEmail(ctx context.Context, email string) (model.Person, error) {
	if d, err := r.GetDoctorByEmail(ctx, email); err == nil {
		return d, nil
	}
	p, err := r.GetPatientByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *personRepo) FindPersonByID(ctx context.Context, id uuid.UUID) (model.Person, error) {
	if d, err := r.GetDoctor(ctx, id); err == nil {
		return d, nil
	}
	p, err := r.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type linkRepo struct{ v *view }

func (r *linkRepo) Add(_ context.Context, patientID, doctorID uuid.UUID) error {
	return r.v.with(func(st *state) error {
		key := model.Link{PatientID: patientID, DoctorID: doctorID}
		if _, ok := st.links[key]; ok {
			return nil
		}
		st.linkSeq++
		st.links[key] = st.linkSeq
		return nil
	})
}

func (r *linkRepo) Remove(_ context.Context, patientID, doctorID uuid.UUID) error {
	return r.v.with(func(st *state) error {
		delete(st.links, model.Link{PatientID: patientID, DoctorID: doctorID})
		return nil
	})
}

func (r *linkRepo) DoctorsOf(_ context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	return r.collect(func(l model.Link) (uuid.UUID, bool) { return l.DoctorID, l.PatientID == patientID })
}

func (r *linkRepo) PatientsOf(_ context.Context, doctorID uuid.UUID) ([]uuid.UUID, error) {
	return r.collect(func(l model.Link) (uuid.UUID, bool) { return l.PatientID, l.DoctorID == doctorID })
}

func (r *linkRepo) collect(match func(model.Link) (uuid.UUID, bool)) ([]uuid.UUID, error) {
	type entry struct {
		id  uuid.UUID
		seq int
	}
	var entries []entry
	err := r.v.with(func(st *state) error {
		for l, seq := range st.links {
			if id, ok := match(l); ok {
				entries = append(entries, entry{id: id, seq: seq})
			}
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, err
}

type appointmentRepo struct{ v *view }

func (r *appointmentRepo) Create(_ context.Context, appointment *model.Appointment) error {
	return r.v.with(func(st *state) error {
		st.appointments[appointment.ID] = *appointment
		return nil
	})
}

func (r *appointmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*model.Appointment, error) {
	return r.list(func(a model.Appointment) bool { return a.DoctorID == doctorID })
}

func (r *appointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	return r.list(func(a model.Appointment) bool { return a.PatientID == patientID })
}

func (r *appointmentRepo) list(match func(model.Appointment) bool) ([]*model.Appointment, error) {
	var out []*model.Appointment
	err := r.v.with(func(st *state) error {
		for _, a := range st.appointments {
			if match(a) {
				a := a
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, err
}

func (r *appointmentRepo) DeleteByPerson(_ context.Context, personID uuid.UUID) error {
	return r.v.with(func(st *state) error {
		for id, a := range st.appointments {
			if a.PatientID == personID || a.DoctorID == personID {
				delete(st.appointments, id)
			}
		}
		return nil
	})
}

// LockDoctor only checks that the doctor exists; every transaction already
// holds the store lock.
func (r *appointmentRepo) LockDoctor(_ context.Context, doctorID uuid.UUID) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.doctors[doctorID]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
}

type inquiryRepo struct{ v *view }

func (r *inquiryRepo) Create(_ context.Context, inquiry *model.Inquiry) error {
	return r.v.with(func(st *state) error {
		st.inquiries[inquiry.ID] = *inquiry
		return nil
	})
}

func (r *inquiryRepo) Get(_ context.Context, id uuid.UUID) (*model.Inquiry, error) {
	var out *model.Inquiry
	err := r.v.with(func(st *state) error {
		i, ok := st.inquiries[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &i
		return nil
	})
	return out, err
}

func (r *inquiryRepo) MarkAnswered(_ context.Context, id uuid.UUID, answer string, at time.Time) error {
	return r.v.with(func(st *state) error {
		i, ok := st.inquiries[id]
		if !ok || i.Answered {
			return repository.ErrNotFound
		}
		i.Answered = true
		i.Answer = &answer
		i.UpdatedAt = at
		st.inquiries[id] = i
		return nil
	})
}

func (r *inquiryRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*model.Inquiry, error) {
	return r.list(func(i model.Inquiry) bool {
		return i.DoctorID == doctorID || (i.ConsultantID.Valid && i.ConsultantID.UUID == doctorID)
	})
}

func (r *inquiryRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Inquiry, error) {
	return r.list(func(i model.Inquiry) bool { return i.PatientID.Valid && i.PatientID.UUID == patientID })
}

func (r *inquiryRepo) list(match func(model.Inquiry) bool) ([]*model.Inquiry, error) {
	var out []*model.Inquiry
	err := r.v.with(func(st *state) error {
		for _, i := range st.inquiries {
			if match(i) {
				i := i
				out = append(out, &i)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *inquiryRepo) DeleteByPerson(_ context.Context, personID uuid.UUID) error {
	return r.v.with(func(st *state) error {
		for id, i := range st.inquiries {
			if i.DoctorID == personID ||
				(i.PatientID.Valid && i.PatientID.UUID == personID) ||
				(i.ConsultantID.Valid && i.ConsultantID.UUID == personID) {
				delete(st.inquiries, id)
			}
		}
		return nil
	})
}

type userRepo struct{ v *view }

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	return r.v.with(func(st *state) error {
		for _, u := range st.users {
			if sameEmail(u.Email, user.Email) {
				return repository.ErrDuplicate
			}
		}
		u := *user
		u.Roles = append([]model.Role(nil), user.Roles...)
		st.users[u.ID] = u
		return nil
	})
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.v.with(func(st *state) error {
		for _, u := range st.users {
			if sameEmail(u.Email, email) {
				u := u
				u.Roles = append([]model.Role(nil), u.Roles...)
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *userRepo) AddRole(_ context.Context, userID, roleID uuid.UUID) error {
	return r.v.with(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return repository.ErrNotFound
		}
		role, ok := st.roles[roleID]
		if !ok {
			return repository.ErrNotFound
		}
		u.Roles = append(append([]model.Role(nil), u.Roles...), role)
		st.users[userID] = u
		return nil
	})
}

func (r *userRepo) Delete(_ context.Context, id uuid.UUID) error {
	return r.v.with(func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.users, id)
		return nil
	})
}

type roleRepo struct{ v *view }

func (r *roleRepo) GetByName(_ context.Context, name string) (*model.Role, error) {
	var out *model.Role
	err := r.v.with(func(st *state) error {
		for _, role := range st.roles {
			if role.Name == name {
				role := role
				out = &role
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *roleRepo) Create(_ context.Context, role *model.Role) error {
	return r.v.with(func(st *state) error {
		for _, existing := range st.roles {
			if existing.Name == role.Name {
				return repository.ErrDuplicate
			}
		}
		st.roles[role.ID] = *role
		return nil
	})
}

type outboxRepo struct{ v *view }

func (r *outboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	return r.v.with(func(st *state) error {
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		now := time.Now()
		event.Status = model.OutboxStatusPending
		event.CreatedAt = now
		event.UpdatedAt = now
		st.outbox = append(st.outbox, *event)
		return nil
	})
}

func (r *outboxRepo) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	err := r.v.with(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].Status != model.OutboxStatusPending {
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			st.outbox[i].Status = model.OutboxStatusProcessing
			st.outbox[i].UpdatedAt = time.Now()
			e := st.outbox[i]
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent, now time.Time) {
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
	})
}

func (r *outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	return r.update(id, func(e *model.OutboxEvent, _ time.Time) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errorMessage
		e.RetryCount++
	})
}

func (r *outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent, time.Time)) error {
	return r.v.with(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].ID == id {
				now := time.Now()
				fn(&st.outbox[i], now)
				st.outbox[i].UpdatedAt = now
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

func (r *outboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.v.with(func(st *state) error {
		kept := st.outbox[:0]
		for _, e := range st.outbox {
			if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, e)
		}
		st.outbox = kept
		return nil
	})
	return n, err
}
