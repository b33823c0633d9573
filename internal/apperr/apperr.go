// Package apperr описывает таксономию ошибок сервиса и их отображение в HTTP-коды.
package apperr

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrBatchWrite         = errors.New("batch write failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
)

// ValidationError — ошибка входных данных, которую может исправить клиент.
// Сообщение отдаётся клиенту как есть.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

func Validation(msg string, fields ...string) error {
	return &ValidationError{Message: msg, Fields: fields}
}

// MissingFields возвращает ValidationError, если список не пуст, иначе nil.
func MissingFields(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Message: "Missing required fields", Fields: fields}
}

// TransitionError уточняет ErrInvalidTransition.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %q to %q", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// FromStorage классифицирует ошибку драйвера Postgres.
func FromStorage(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(ErrNotFound, msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return errors.Wrapf(ErrConflict, "%s: %s", msg, pgErr.ConstraintName)
		case pgerrcode.CheckViolation, pgerrcode.NumericValueOutOfRange:
			return errors.Wrap(Validation("Value out of range"), msg)
		}
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBatchWrite) || IsValidation(err) {
		return errors.Wrap(err, msg)
	}
	return &backendError{msg: msg, cause: err}
}

type backendError struct {
	msg   string
	cause error
}

func (e *backendError) Error() string { return e.msg + ": " + e.cause.Error() }

func (e *backendError) Unwrap() error { return e.cause }

func (e *backendError) Is(target error) bool { return target == ErrBackendUnavailable }

// HTTPStatus возвращает код ответа для ошибки.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает текст, который можно показать недоверенному клиенту.
func PublicMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Error()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrInvalidTransition):
		return "Invalid status transition"
	case errors.Is(err, ErrConflict):
		return "Already exists"
	case errors.Is(err, ErrUnauthorized):
		return "Authorization required"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrBatchWrite):
		return "Batch export failed"
	default:
		return "Internal server error"
	}
}
