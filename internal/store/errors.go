package store

import (
	"errors"
	"fmt"
)

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")

	ErrDuplicatePatient   = fmt.Errorf("%w: duplicate patient", ErrConflict)
	ErrDoctorDoubleBooked = fmt.Errorf("%w: doctor double-booked", ErrConflict)
)
