package apperr

import (
	"net/http"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{MissingFields([]string{"product"}), http.StatusBadRequest},
		{errors.Wrap(ErrNotFound, "get order"), http.StatusNotFound},
		{&TransitionError{From: "completed", To: "pending"}, http.StatusConflict},
		{errors.Wrap(ErrConflict, "insert"), http.StatusConflict},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{errors.Wrap(ErrBatchWrite, "export"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		require.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestFromStorage(t *testing.T) {
	require.NoError(t, FromStorage(nil, "x"))

	err := FromStorage(pgx.ErrNoRows, "select order")
	require.ErrorIs(t, err, ErrNotFound)

	err = FromStorage(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "uq"}, "insert package")
	require.ErrorIs(t, err, ErrConflict)

	for _, code := range []string{pgerrcode.CheckViolation, pgerrcode.NumericValueOutOfRange} {
		err = FromStorage(&pgconn.PgError{Code: code}, "insert order")
		require.True(t, IsValidation(err), code)
		require.Equal(t, 400, HTTPStatus(err), code)
		require.Equal(t, "Value out of range", PublicMessage(err), code)
	}

	err = FromStorage(errors.New("connection refused"), "select orders")
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, "Internal server error", PublicMessage(err))
}

func TestValidationError_Message(t *testing.T) {
	err := MissingFields([]string{"product", "amount"})
	require.True(t, IsValidation(err))
	require.Equal(t, "Missing required fields: product, amount", err.Error())
	require.Equal(t, "Missing required fields", PublicMessage(err))
	require.NoError(t, MissingFields(nil))
}

func TestTransitionError_Unwrap(t *testing.T) {
	err := errors.Wrap(&TransitionError{From: "completed", To: "pending"}, "update order")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Contains(t, PublicMessage(err), "completed")
}
