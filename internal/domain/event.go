package domain

import "time"

type EventType string

const (
	EventAppointmentCreated   EventType = "appointment.created"
	EventAppointmentCancelled EventType = "appointment.cancelled"
	EventAppointmentDeleted   EventType = "appointment.deleted"
)

// AppointmentEvent records a committed change to the appointment book.
type AppointmentEvent struct {
	ID          string
	Type        EventType
	OccurredAt  time.Time
	Appointment Appointment
}
