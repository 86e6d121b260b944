package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clinicbook/internal/domain"
	"clinicbook/internal/monitoring"
	"clinicbook/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// SlotCache holds precomputed availability per doctor and date. Invalidate
// advances the generation; Set writes only while the generation it was given
// is still current.
type SlotCache interface {
	Get(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, bool, error)
	Generation(ctx context.Context, doctorName, appointmentDate string) (int64, error)
	Set(ctx context.Context, doctorName, appointmentDate string, generation int64, slots []domain.TimeSlot) (bool, error)
	Invalidate(ctx context.Context, doctorName, appointmentDate string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt domain.AppointmentEvent) error
}

const invalidateTimeout = 2 * time.Second

type Service struct {
	repo    store.AppointmentRepository
	slots   domain.TimeSlots
	cache   SlotCache
	events  EventPublisher
	metrics *monitoring.Metrics
	log     *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	publishTimeout time.Duration
	eventQueueSize int
	dispatcher     *eventDispatcher
}

type Option func(*Service)

func WithTimeSlots(slots domain.TimeSlots) Option {
	return func(s *Service) {
		if len(slots) > 0 {
			s.slots = slots
		}
	}
}

func WithSlotCache(c SlotCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithPublishTimeout bounds each event publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) { s.publishTimeout = d }
}

func WithEventQueueSize(n int) Option {
	return func(s *Service) { s.eventQueueSize = n }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(repo store.AppointmentRepository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		slots:  append(domain.TimeSlots(nil), domain.DefaultTimeSlots...),
		log:    slog.Default(),
		tracer: otel.Tracer("clinicbook/internal/service/appointments"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.appointments"))
	if s.events != nil {
		s.dispatcher = newEventDispatcher(s.events, s.eventQueueSize, s.publishTimeout, s.metrics, s.log)
	}
	return s
}

// Close flushes queued events. Writes after Close still commit, but their
// events are dropped.
func (s *Service) Close(ctx context.Context) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.close(ctx)
}

type CreateInput struct {
	PatientName     string
	PatientID       string
	DoctorName      string
	AppointmentDate string
	TimeSlot        string
}

type CancelInput struct {
	PatientID       string
	AppointmentDate string
	TimeSlot        string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Create")
	defer span.End()

	appt, err := s.create(ctx, in)
	s.record(span, "create", err)
	if err != nil {
		return domain.Appointment{}, err
	}
	span.SetAttributes(attribute.Int64("appointment.id", appt.ID))

	s.afterWrite(ctx, domain.EventAppointmentCreated, appt)
	return appt, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	appt := domain.Appointment{
		PatientName:     strings.TrimSpace(in.PatientName),
		PatientID:       strings.TrimSpace(in.PatientID),
		DoctorName:      strings.TrimSpace(in.DoctorName),
		AppointmentDate: strings.TrimSpace(in.AppointmentDate),
		TimeSlot:        domain.TimeSlot(strings.TrimSpace(in.TimeSlot)),
	}

	if err := requireFields(
		"patient_name", appt.PatientName,
		"patient_id", appt.PatientID,
		"doctor_name", appt.DoctorName,
		"appointment_date", appt.AppointmentDate,
		"time_slot", string(appt.TimeSlot),
	); err != nil {
		return domain.Appointment{}, err
	}
	if !domain.ValidDate(appt.AppointmentDate) {
		return domain.Appointment{}, validationError("appointment_date must be a valid date (YYYY-MM-DD)")
	}
	if !s.slots.Contains(appt.TimeSlot) {
		return domain.Appointment{}, validationError("time_slot is not a clinic time slot")
	}

	appt.CreatedAt = s.now().UTC()
	key := appt.SlotKey()

	var created domain.Appointment
	err := s.repo.InBookingTransaction(ctx, []string{store.PatientLockKey(appt.PatientID), store.SlotLockKey(key)}, func(ctx context.Context, tx store.BookingTx) error {
		booked, err := tx.PatientBooked(ctx, appt.PatientID)
		if err != nil {
			return fmt.Errorf("check patient: %w", err)
		}
		if booked {
			return store.ErrDuplicatePatient
		}

		booked, err = tx.SlotBooked(ctx, key)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if booked {
			return store.ErrDoctorDoubleBooked
		}

		created, err = tx.InsertAppointment(ctx, appt)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return err
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return created, nil
}

// Cancel removes the appointment matching all three fields and returns it.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Cancel")
	defer span.End()

	appt, err := s.cancel(ctx, in)
	s.record(span, "cancel", err)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.afterWrite(ctx, domain.EventAppointmentCancelled, appt)
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, in CancelInput) (domain.Appointment, error) {
	patientID := strings.TrimSpace(in.PatientID)
	date := strings.TrimSpace(in.AppointmentDate)
	slot := domain.TimeSlot(strings.TrimSpace(in.TimeSlot))

	if err := requireFields(
		"patient_id", patientID,
		"appointment_date", date,
		"time_slot", string(slot),
	); err != nil {
		return domain.Appointment{}, err
	}

	var removed domain.Appointment
	err := s.repo.InBookingTransaction(ctx, []string{store.PatientLockKey(patientID)}, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.FindForCancellation(ctx, patientID, date, slot)
		if err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, appt.ID); err != nil {
			return err
		}
		removed = appt
		return nil
	})
	if err != nil {
		return domain.Appointment{}, wrapStorage("cancel appointment", err)
	}
	return removed, nil
}

func (s *Service) DeleteByID(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.DeleteByID",
		trace.WithAttributes(attribute.Int64("appointment.id", appointmentID)))
	defer span.End()

	appt, err := s.deleteByID(ctx, appointmentID)
	s.record(span, "delete", err)
	if err != nil {
		return domain.Appointment{}, err
	}

	s.afterWrite(ctx, domain.EventAppointmentDeleted, appt)
	return appt, nil
}

func (s *Service) deleteByID(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	if appointmentID <= 0 {
		return domain.Appointment{}, validationError("appointment_id must be positive")
	}

	var removed domain.Appointment
	err := s.repo.InBookingTransaction(ctx, nil, func(ctx context.Context, tx store.BookingTx) error {
		appt, err := tx.FindByID(ctx, appointmentID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, appt.ID); err != nil {
			return err
		}
		removed = appt
		return nil
	})
	if err != nil {
		return domain.Appointment{}, wrapStorage("delete appointment", err)
	}
	return removed, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.List")
	defer span.End()

	rows, err := s.repo.List(ctx)
	if err != nil {
		err = fmt.Errorf("list appointments: %w", err)
	}
	s.record(span, "list", err)
	return rows, err
}

// Search matches term literally against doctor names and dates.
func (s *Service) Search(ctx context.Context, term string) ([]domain.Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Search")
	defer span.End()

	rows, err := s.search(ctx, term)
	s.record(span, "search", err)
	return rows, err
}

func (s *Service) search(ctx context.Context, term string) ([]domain.Appointment, error) {
	if strings.TrimSpace(term) == "" {
		return nil, validationError("term is required")
	}
	rows, err := s.repo.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search appointments: %w", err)
	}
	return rows, nil
}

// Availability lists the clinic slots still free for a doctor on a date.
func (s *Service) Availability(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Availability")
	defer span.End()

	slots, err := s.availability(ctx, doctorName, appointmentDate)
	s.record(span, "availability", err)
	return slots, err
}

func (s *Service) availability(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error) {
	doctorName = strings.TrimSpace(doctorName)
	appointmentDate = strings.TrimSpace(appointmentDate)
	if err := requireFields(
		"doctor_name", doctorName,
		"appointment_date", appointmentDate,
	); err != nil {
		return nil, err
	}
	if !domain.ValidDate(appointmentDate) {
		return nil, validationError("appointment_date must be a valid date (YYYY-MM-DD)")
	}

	var generation int64
	cacheable := false
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, doctorName, appointmentDate)
		if err != nil {
			s.log.WarnContext(ctx, "availability cache read failed", slog.String("err", err.Error()))
		}
		s.metrics.ObserveCacheLookup(ok)
		if ok {
			return cached, nil
		}

		// Read before the store so a write committed during the lookup
		// leaves the generation changed and our result uncached.
		generation, err = s.cache.Generation(ctx, doctorName, appointmentDate)
		if err != nil {
			s.log.WarnContext(ctx, "availability cache generation read failed", slog.String("err", err.Error()))
		} else {
			cacheable = true
		}
	}

	booked, err := s.repo.BookedSlots(ctx, doctorName, appointmentDate)
	if err != nil {
		return nil, fmt.Errorf("booked slots: %w", err)
	}
	free := []domain.TimeSlot(s.slots.Without(booked))

	if cacheable {
		stored, err := s.cache.Set(ctx, doctorName, appointmentDate, generation, free)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "availability cache write failed", slog.String("err", err.Error()))
		case !stored:
			s.log.DebugContext(ctx, "availability changed during lookup; not cached",
				slog.String("doctor_name", doctorName),
				slog.String("appointment_date", appointmentDate),
			)
		}
	}
	return free, nil
}

func (s *Service) TimeSlots() domain.TimeSlots {
	return append(domain.TimeSlots(nil), s.slots...)
}

// afterWrite runs the side effects of a committed write. Failures are logged
// and never surface to the caller.
func (s *Service) afterWrite(ctx context.Context, eventType domain.EventType, appt domain.Appointment) {
	if s.cache != nil {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
		err := s.cache.Invalidate(ictx, appt.DoctorName, appt.AppointmentDate)
		cancel()
		if err != nil {
			s.log.WarnContext(ctx, "availability cache invalidation failed",
				slog.String("doctor_name", appt.DoctorName),
				slog.String("appointment_date", appt.AppointmentDate),
				slog.String("err", err.Error()),
			)
		}
	}

	if s.dispatcher == nil {
		return
	}
	s.dispatcher.enqueue(ctx, domain.AppointmentEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		OccurredAt:  s.now().UTC(),
		Appointment: appt,
	})
}

func (s *Service) record(span trace.Span, operation string, err error) {
	outcome := Outcome(err)
	s.metrics.ObserveOperation(operation, outcome)
	if outcome == monitoring.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Outcome classifies err into a metrics outcome label.
func Outcome(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return monitoring.OutcomeOK
	case errors.As(err, &vErr):
		return monitoring.OutcomeInvalid
	case errors.Is(err, store.ErrConflict):
		return monitoring.OutcomeConflict
	case errors.Is(err, store.ErrNotFound):
		return monitoring.OutcomeNotFound
	default:
		return monitoring.OutcomeError
	}
}

// requireFields takes name/value pairs and reports the first empty value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return validationError(pairs[i] + " is required")
		}
	}
	return nil
}

func wrapStorage(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
