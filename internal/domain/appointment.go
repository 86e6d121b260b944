package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// DateLayout is the ISO calendar date form used for appointment_date.
const DateLayout = "2006-01-02"

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID              int64     `bun:"appointment_id,pk,autoincrement"`
	PatientID       string    `bun:"patient_id,notnull"`
	PatientName     string    `bun:"patient_name,notnull"`
	DoctorName      string    `bun:"doctor_name,notnull"`
	AppointmentDate string    `bun:"appointment_date,notnull"`
	TimeSlot        TimeSlot  `bun:"time_slot,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SlotKey identifies the doctor/date/slot triple an appointment occupies.
type SlotKey struct {
	DoctorName      string
	AppointmentDate string
	TimeSlot        TimeSlot
}

func (a Appointment) SlotKey() SlotKey {
	return SlotKey{
		DoctorName:      a.DoctorName,
		AppointmentDate: a.AppointmentDate,
		TimeSlot:        a.TimeSlot,
	}
}

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return false
	}
	return d.Format(DateLayout) == s
}
