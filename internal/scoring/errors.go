package scoring

import (
	"errors"
	"fmt"

	"github.com/terra-clan/mot-engine/internal/models"
)

// Validation failures. A rejected submission never mutates the path.
var (
	ErrInvalidChoice  = errors.New("invalid choice")
	ErrSelectionCount = errors.New("must select exactly 3")
	ErrInvalidChoices = errors.New("invalid choices")
	ErrBudget         = errors.New("budget/selection invalid")
	ErrOutOfOrder     = errors.New("step not available")
	ErrPathComplete   = errors.New("path already complete")
	ErrPathIncomplete = errors.New("path not complete")
)

// ValidationError reports why a step submission was rejected
type ValidationError struct {
	Step   models.Step
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Step, e.Err, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func reject(step models.Step, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Step: step, Err: err, Reason: fmt.Sprintf(format, args...)}
}
