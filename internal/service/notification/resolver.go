package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwalitptl/carelink/internal/model"
	"github.com/jwalitptl/carelink/internal/repository"
	apperrors "github.com/jwalitptl/carelink/pkg/errors"
)

// Directory is the resolve-by-email side of the Directory Store.
type Directory interface {
	FindPersonByEmail(ctx context.Context, email string) (model.Person, error)
}

// Resolver is the one identity lookup every routing strategy goes through. It
// lives for a single event and reads dir, the store view of that event's
// transaction. An email named twice in one event is read once.
type Resolver struct {
	dir  Directory
	seen map[string]model.Person
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir, seen: make(map[string]model.Person)}
}

func (r *Resolver) Resolve(ctx context.Context, email string) (model.Person, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return nil, apperrors.InvalidInput("empty email", nil)
	}
	if p, ok := r.seen[key]; ok {
		return p, nil
	}

	person, err := r.dir.FindPersonByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("person %s", email), err)
		}
		return nil, err
	}

	r.seen[key] = person
	return person, nil
}

func (r *Resolver) Doctor(ctx context.Context, email string) (*model.Doctor, error) {
	person, err := r.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}
	doctor, ok := person.(*model.Doctor)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("doctor %s", email), nil)
	}
	return doctor, nil
}

func (r *Resolver) Patient(ctx context.Context, email string) (*model.Patient, error) {
	person, err := r.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}
	patient, ok := person.(*model.Patient)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("patient %s", email), nil)
	}
	return patient, nil
}
