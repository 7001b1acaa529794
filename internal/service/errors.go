package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

func isRetryableTxError(err error) bool {
	code := pqCode(err)
	return code == pqUniqueViolation || code == pqSerializationFailure
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// passThrough keeps typed errors from collaborators and wraps anything else as internal.
func passThrough(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return internalError(err, message)
}

func scheduleConflictError(conflicts []models.SlotConflict) error {
	cause := &models.ScheduleConflictError{Conflicts: conflicts}
	messages := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		messages = append(messages, c.Message)
	}
	appErr := appErrors.WithDetails(appErrors.Clone(appErrors.ErrScheduleConflict, strings.Join(messages, "; ")), conflicts)
	appErr.Err = cause
	return appErr
}

func validationError(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(what string) error {
	return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
}

func conflictError(message string) error {
	return appErrors.Clone(appErrors.ErrConflict, message)
}
