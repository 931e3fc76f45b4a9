package base

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConstraintViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		ok         bool
	}{
		{
			name:       "unique",
			err:        &pgconn.PgError{Code: "23505", ConstraintName: "booking_modifications_one_pending_key"},
			constraint: "booking_modifications_one_pending_key",
			ok:         true,
		},
		{
			name:       "exclusion wrapped",
			err:        fmt.Errorf("create booking: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "bookings_teacher_no_overlap"}),
			constraint: "bookings_teacher_no_overlap",
			ok:         true,
		},
		{
			name: "foreign key",
			err:  &pgconn.PgError{Code: "23503", ConstraintName: "bookings_subject_id_fkey"},
		},
		{
			name: "not a postgres error",
			err:  errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := ConstraintViolation(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.constraint, name)
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("get booking: %w", pgx.ErrNoRows)))
	assert.False(t, IsNotFound(errors.New("timeout")))
}
