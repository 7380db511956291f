package model

import (
	"strings"

	"github.com/google/uuid"
)

// PersonKind tags the concrete variant behind a Person.
type PersonKind string

const (
	PersonKindPatient PersonKind = "patient"
	PersonKindDoctor  PersonKind = "doctor"
)

// PersonCore is the scalar data shared by patients and doctors. Email is unique
// across both and is the secondary key the notification router resolves by.
type PersonCore struct {
	Base
	FirstName    string `json:"first_name" db:"first_name"`
	LastName     string `json:"last_name" db:"last_name"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	City         string `json:"city" db:"city"`
	Country      string `json:"country" db:"country"`
	Street       string `json:"street" db:"street"`
	ImageData    []byte `json:"image_data,omitempty" db:"image_data"`
	BirthDay     string `json:"birth_day" db:"birth_day"`
}

// FullName is the display name used in notification bodies.
func (p PersonCore) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Person is implemented by *Patient and *Doctor.
type Person interface {
	Core() *PersonCore
	Kind() PersonKind
}

// Patient holds only its own data; doctor links, appointments and inquiries
// live in the relationship index.
type Patient struct {
	PersonCore
}

func (p *Patient) Core() *PersonCore { return &p.PersonCore }
func (p *Patient) Kind() PersonKind  { return PersonKindPatient }

type Doctor struct {
	PersonCore
	Specialization string `json:"specialization" db:"specialization"`
}

func (d *Doctor) Core() *PersonCore { return &d.PersonCore }
func (d *Doctor) Kind() PersonKind  { return PersonKindDoctor }

// Link is one Patient<->Doctor edge.
type Link struct {
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id" db:"doctor_id"`
}

type CreatePersonRequest struct {
	FirstName string `json:"first_name" binding:"required,max=50"`
	LastName  string `json:"last_name" binding:"required,max=50"`
	Email     string `json:"email" binding:"required,email,max=45"`
	Password  string `json:"password" binding:"required,min=8"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Street    string `json:"street"`
	BirthDay  string `json:"birth_day" binding:"omitempty,datetime=02/01/2006"`
}

type CreatePatientRequest struct {
	CreatePersonRequest
}

type CreateDoctorRequest struct {
	CreatePersonRequest
	Specialization string `json:"specialization" binding:"required"`
}

type UpdatePersonRequest struct {
	FirstName      *string `json:"first_name" binding:"omitempty,max=50"`
	LastName       *string `json:"last_name" binding:"omitempty,max=50"`
	City           *string `json:"city"`
	Country        *string `json:"country"`
	Street         *string `json:"street"`
	BirthDay       *string `json:"birth_day" binding:"omitempty,datetime=02/01/2006"`
	Specialization *string `json:"specialization"`
}

// Apply copies the set fields onto core.
func (r *UpdatePersonRequest) Apply(core *PersonCore) {
	if r.FirstName != nil {
		core.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		core.LastName = *r.LastName
	}
	if r.City != nil {
		core.City = *r.City
	}
	if r.Country != nil {
		core.Country = *r.Country
	}
	if r.Street != nil {
		core.Street = *r.Street
	}
	if r.BirthDay != nil {
		core.BirthDay = *r.BirthDay
	}
}
