package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Conflict("email already registered"))

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(nil, KindConflict))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindUnauthenticated: 401,
		KindForbidden:       403,
		KindConflict:        409,
		KindNotFound:        404,
		KindValidation:      400,
		KindInternal:        500,
	}
	for kind, status := range tests {
		assert.Equal(t, status, HTTPStatus(kind), kind)
	}
}

func TestPublicMessage_HidesInternalCause(t *testing.T) {
	err := Internal("failed to load user", errors.New("dial tcp: connection refused"))

	assert.Equal(t, "internal server error", PublicMessage(err))
	assert.Equal(t, "user not found", PublicMessage(NotFound("user not found")))
	assert.ErrorContains(t, err, "connection refused")
}
