package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	v := Validation("note is required when rejecting")
	assert.ErrorIs(t, v, ErrValidation)
	assert.Equal(t, "note is required when rejecting", v.Error())

	var ve *ValidationError
	assert.True(t, errors.As(v, &ve))

	assert.ErrorIs(t, NotFound("requirement", "r1"), ErrNotFound)
	assert.ErrorIs(t, ErrRoleLookupFailed, ErrInternal)

	down := errors.New("connection reset")
	wrapped := Internal("load requirement", down)
	assert.ErrorIs(t, wrapped, ErrInternal)
	assert.ErrorIs(t, wrapped, down)
}
