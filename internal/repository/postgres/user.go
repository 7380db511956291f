package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/carelink/internal/model"
)

type userRepository struct {
	q queryer
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.q.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)
	`
	if err := r.q.GetContext(ctx, &user, query, email); err != nil {
		return nil, translate(err)
	}

	rolesQuery := `
		SELECT r.id, r.name, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.seq
	`
	if err := r.q.SelectContext(ctx, &user.Roles, rolesQuery, user.ID); err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", translate(err))
	}
	return &user, nil
}

func (r *userRepository) AddRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID)
	return translate(err)
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return execOne(ctx, r.q, `DELETE FROM users WHERE id = $1`, id)
}

type roleRepository struct {
	q queryer
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	query := `SELECT id, name, created_at, updated_at FROM roles WHERE name = $1`
	if err := r.q.GetContext(ctx, &role, query, name); err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	query := `
		INSERT INTO roles (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.q.ExecContext(ctx, query, role.ID, role.Name, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", translate(err))
	}
	return nil
}
