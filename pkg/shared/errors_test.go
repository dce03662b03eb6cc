package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	v := &ValidationError{}
	require.NoError(t, v.OrNil())

	v.Add("titulo", "is required")
	v.Add("ubicacion", "latitude out of range")

	err := fmt.Errorf("create report: %w", v.OrNil())
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "titulo: is required")
	assert.Contains(t, err.Error(), "ubicacion: latitude out of range")

	var target *ValidationError
	require.True(t, errors.As(err, &target))
	assert.Len(t, target.Fields, 2)
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := fmt.Errorf("list reports: %w", NewStorageError("query reportes", cause))

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "storage query reportes")
}

func TestNewStorageErrorKeepsDomainErrors(t *testing.T) {
	assert.Nil(t, NewStorageError("op", nil))
	assert.Same(t, ErrNotFound, NewStorageError("op", ErrNotFound))
	assert.True(t, errors.Is(NewStorageError("op", fmt.Errorf("x: %w", ErrConflict)), ErrConflict))

	v := NewValidationError("email", "is required")
	assert.Equal(t, error(v), NewStorageError("op", v))
}
