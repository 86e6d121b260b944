package store

import (
	"context"

	"clinicbook/internal/domain"
)

type AppointmentRepository interface {
	// InBookingTransaction runs fn in one transaction holding an exclusive lock
	// on every key in lockKeys until commit or rollback.
	InBookingTransaction(ctx context.Context, lockKeys []string, fn func(ctx context.Context, tx BookingTx) error) error

	List(ctx context.Context) ([]domain.Appointment, error)
	Search(ctx context.Context, term string) ([]domain.Appointment, error)
	BookedSlots(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error)
}

type BookingTx interface {
	PatientBooked(ctx context.Context, patientID string) (bool, error)
	SlotBooked(ctx context.Context, key domain.SlotKey) (bool, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	FindForCancellation(ctx context.Context, patientID, appointmentDate string, slot domain.TimeSlot) (domain.Appointment, error)
	FindByID(ctx context.Context, appointmentID int64) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, appointmentID int64) error
}

func PatientLockKey(patientID string) string {
	return "patient:" + patientID
}

func SlotLockKey(key domain.SlotKey) string {
	return "slot:" + key.DoctorName + "|" + key.AppointmentDate + "|" + string(key.TimeSlot)
}
