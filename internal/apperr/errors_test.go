package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", fmt.Errorf("user 7: %w", ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("assignment: %w", ErrConflict), http.StatusConflict},
		{"season not due", ErrSeasonNotDue, http.StatusConflict},
		{"requirement", fmt.Errorf("quest 3: %w", ErrRequirementNotMet), http.StatusBadRequest},
		{"argument", ErrInvalidArgument, http.StatusBadRequest},
		{"configuration", fmt.Errorf("params: %w", ErrConfiguration), http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestSeasonNotDueIsInvalidState(t *testing.T) {
	assert.True(t, errors.Is(ErrSeasonNotDue, ErrInvalidState))
	assert.True(t, errors.Is(fmt.Errorf("rotate: %w", ErrSeasonNotDue), ErrSeasonNotDue))
}
