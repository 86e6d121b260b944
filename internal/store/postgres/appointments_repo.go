package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicbook/internal/domain"
	"clinicbook/internal/store"
)

const (
	uniqueViolation = "23505"

	patientUniqueConstraint = "appointments_patient_id_key"
	slotUniqueConstraint    = "appointments_doctor_slot_key"
)

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

// withConn holds one pooled connection for the duration of fn.
func (r *AppointmentRepo) withConn(ctx context.Context, fn func(ctx context.Context, conn bun.Conn) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()
	return fn(ctx, conn)
}

func (r *AppointmentRepo) InBookingTransaction(ctx context.Context, lockKeys []string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	keys := append([]string(nil), lockKeys...)
	sort.Strings(keys)

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, key := range keys {
			if i > 0 && keys[i-1] == key {
				continue
			}
			if err := lockKey(ctx, tx, key); err != nil {
				return fmt.Errorf("lock %q: %w", key, err)
			}
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockKey(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}

func (r *AppointmentRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	rows := make([]domain.Appointment, 0)
	err := r.withConn(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&rows).
			OrderExpr("appointment_id ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Search(ctx context.Context, term string) ([]domain.Appointment, error) {
	pattern := "%" + escapeLike(term) + "%"

	rows := make([]domain.Appointment, 0)
	err := r.withConn(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model(&rows).
			Where("doctor_name LIKE ?", pattern).
			WhereOr("appointment_date LIKE ?", pattern).
			OrderExpr("appointment_id ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) BookedSlots(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error) {
	var labels []string
	err := r.withConn(ctx, func(ctx context.Context, conn bun.Conn) error {
		return conn.NewSelect().
			Model((*domain.Appointment)(nil)).
			Column("time_slot").
			Where("doctor_name = ?", doctorName).
			Where("appointment_date = ?", appointmentDate).
			Scan(ctx, &labels)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.TimeSlot, 0, len(labels))
	for _, l := range labels {
		out = append(out, domain.TimeSlot(l))
	}
	return out, nil
}

func (r bookingTx) PatientBooked(ctx context.Context, patientID string) (bool, error) {
	return r.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("patient_id = ?", patientID).
		Exists(ctx)
}

func (r bookingTx) SlotBooked(ctx context.Context, key domain.SlotKey) (bool, error) {
	return r.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("doctor_name = ?", key.DoctorName).
		Where("appointment_date = ?", key.AppointmentDate).
		Where("time_slot = ?", key.TimeSlot).
		Exists(ctx)
}

func (r bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := domain.Appointment{
		PatientID:       appt.PatientID,
		PatientName:     appt.PatientName,
		DoctorName:      appt.DoctorName,
		AppointmentDate: appt.AppointmentDate,
		TimeSlot:        appt.TimeSlot,
		CreatedAt:       appt.CreatedAt,
	}

	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapInsertError(err)
	}
	return m, nil
}

func (r bookingTx) FindForCancellation(ctx context.Context, patientID, appointmentDate string, slot domain.TimeSlot) (domain.Appointment, error) {
	var m domain.Appointment
	err := r.tx.NewSelect().
		Model(&m).
		Where("patient_id = ?", patientID).
		Where("appointment_date = ?", appointmentDate).
		Where("time_slot = ?", slot).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r bookingTx) FindByID(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	var m domain.Appointment
	err := r.tx.NewSelect().
		Model(&m).
		Where("appointment_id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r bookingTx) DeleteAppointment(ctx context.Context, appointmentID int64) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("appointment_id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapInsertError turns unique violations that slipped past the locked
// pre-checks into the matching conflict.
func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case patientUniqueConstraint:
		return store.ErrDuplicatePatient
	case slotUniqueConstraint:
		return store.ErrDoctorDoubleBooked
	default:
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
