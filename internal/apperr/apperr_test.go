package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := Conflict("table %d is occupied", 4).With("tableId", 4)
	wrapped := fmt.Errorf("occupy: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(wrapped, KindNotFound))
	assert.Equal(t, "table 4 is occupied", wrapped.(interface{ Unwrap() error }).Unwrap().Error())
	assert.Equal(t, 4, base.Details["tableId"])
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("disk full")))
	assert.False(t, Is(nil, KindInternal))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindPrecondition, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindAuthorization, http.StatusForbidden},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindUnavailable, http.StatusConflict},
		{KindInvalidTransition, http.StatusBadRequest},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, testCase := range tests {
		t.Run(testCase.kind.String(), func(t *testing.T) {
			assert.Equal(t, testCase.want, HTTPStatus(testCase.kind))
		})
	}
}
