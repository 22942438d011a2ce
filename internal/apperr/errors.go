// Package apperr defines the error classes shared by the progression services.
//
// Services wrap these sentinels with fmt.Errorf("...: %w") so callers can
// classify failures with errors.Is without depending on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound reports an unknown user, quest, achievement, season or assignment.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports a duplicate or an already-finished transition.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState reports an operation requested at the wrong point of a lifecycle.
	ErrInvalidState = errors.New("invalid state")

	// ErrSeasonNotDue is returned when no season has reached its end date yet.
	ErrSeasonNotDue = fmt.Errorf("%w: season not yet due for rotation", ErrInvalidState)

	// ErrRequirementNotMet reports a completion attempted before the user's
	// activity satisfies it. Callers may retry after more activity.
	ErrRequirementNotMet = errors.New("requirement not met")

	// ErrConfiguration reports malformed static data such as quest parameters
	// or level tables.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidArgument reports a request value outside its domain.
	ErrInvalidArgument = errors.New("invalid argument")
)

// HTTPStatus maps an error to the status code the API layer returns for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrRequirementNotMet), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrConfiguration):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
