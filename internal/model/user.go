package model

import (
	"github.com/google/uuid"
)

// Role names granted on account provisioning.
const (
	RolePatient = "PATIENT"
	RoleDoctor  = "DOCTOR"
	RoleAdmin   = "ADMIN"
)

// User is the identity record of a patient or doctor. It shares the person's id.
type User struct {
	Base
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	Roles        []Role `json:"roles" db:"-"`
}

type Role struct {
	Base
	Name string `db:"name" json:"name"`
}

// RoleNames lists the granted role names in grant order, duplicates included.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

type GrantRoleRequest struct {
	Role string `json:"role" binding:"required,max=50,rolename"`
}

// UserRole is one row of the user_roles table.
type UserRole struct {
	UserID uuid.UUID `db:"user_id"`
	RoleID uuid.UUID `db:"role_id"`
}
