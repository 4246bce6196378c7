// Package failure classifies the errors a music job can end with so the
// executor, the queue and the HTTP layer agree on what is retryable.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrAcquisition = errors.New("acquisition error")
	ErrTagging     = errors.New("tagging error")
	ErrStorage     = errors.New("storage error")
	ErrBusy        = errors.New("workspace busy")
	ErrValidation  = errors.New("validation error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrStorage
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether running the job again could change the outcome.
// A missing job record or invalid input stays missing or invalid.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrValidation)
}

// Kind returns a short machine-readable label for err, used in logs and
// websocket error messages.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAcquisition):
		return "ACQUISITION_FAILED"
	case errors.Is(err, ErrTagging):
		return "TAGGING_FAILED"
	case errors.Is(err, ErrStorage):
		return "STORAGE_FAILED"
	case errors.Is(err, ErrBusy):
		return "WORKSPACE_BUSY"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "job failure"
	}
	return strings.Join(parts, ": ")
}
