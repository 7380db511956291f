package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrappedErrors(t *testing.T) {
	base := stderrors.New("no rows")

	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"not found", NotFound("doctor", base), ErrNotFound},
		{"conflict wrapped", fmt.Errorf("create appointment: %w", Conflict("slot taken", nil)), ErrConflict},
		{"invalid input", InvalidInput("missing doctorEmail", nil), ErrInvalidInput},
		{"transient", Transient("redis down", base), ErrTransient},
		{"plain error", base, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("patient", nil))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.False(t, IsNotFound(nil))
	assert.Equal(t, "patient not found", NotFound("patient", nil).Error())
	assert.Equal(t, "slot taken: boom", Conflict("slot taken", stderrors.New("boom")).Error())
}
