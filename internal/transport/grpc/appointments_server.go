package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicbook/internal/domain"
	"clinicbook/internal/requestid"
	"clinicbook/internal/service/appointments"
	"clinicbook/internal/store"
	"clinicbook/internal/telemetry"
)

type AppointmentsServer struct {
	svc appointmentsService
	log *slog.Logger
}

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Search(ctx context.Context, term string) ([]domain.Appointment, error)
	DeleteByID(ctx context.Context, appointmentID int64) (domain.Appointment, error)
	Availability(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error)
	TimeSlots() domain.TimeSlots
}

var _ AppointmentsServiceServer = (*AppointmentsServer)(nil)

func NewAppointmentsServer(svc appointmentsService, log *slog.Logger) *AppointmentsServer {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.appointments")),
	}
}

func (s *AppointmentsServer) rpcLogger(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := requestid.FromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

func (s *AppointmentsServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "CreateAppointment")

	var in appointments.CreateInput
	fields := []struct {
		name string
		dst  *string
	}{
		{"patient_name", &in.PatientName},
		{"patient_id", &in.PatientID},
		{"doctor_name", &in.DoctorName},
		{"appointment_date", &in.AppointmentDate},
		{"time_slot", &in.TimeSlot},
	}
	for _, f := range fields {
		v, err := stringField(req, f.name)
		if err != nil {
			log.Warn("invalid request", slog.String("reason", "bad_field"), slog.String("field", f.name))
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		*f.dst = v
	}

	appt, err := s.svc.Create(ctx, in)
	if err != nil {
		return nil, s.mapError(ctx, log, "appointment create failed", err, slog.String("patient_id", in.PatientID))
	}

	log.Info(
		"appointment created",
		slog.Int64("appointment_id", appt.ID),
		slog.String("patient_id", appt.PatientID),
		slog.String("doctor_name", appt.DoctorName),
		slog.String("appointment_date", appt.AppointmentDate),
		slog.String("time_slot", string(appt.TimeSlot)),
	)
	return appointmentResponse(appt), nil
}

func (s *AppointmentsServer) CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "CancelAppointment")

	var in appointments.CancelInput
	var err error
	if in.PatientID, err = stringField(req, "patient_id"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.AppointmentDate, err = stringField(req, "appointment_date"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.TimeSlot, err = stringField(req, "time_slot"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	appt, err := s.svc.Cancel(ctx, in)
	if err != nil {
		return nil, s.mapError(ctx, log, "appointment cancel failed", err, slog.String("patient_id", in.PatientID))
	}

	log.Info("appointment cancelled", slog.Int64("appointment_id", appt.ID), slog.String("patient_id", appt.PatientID))
	return appointmentResponse(appt), nil
}

func (s *AppointmentsServer) ListAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "ListAppointments")

	appts, err := s.svc.List(ctx)
	if err != nil {
		return nil, s.mapError(ctx, log, "appointments list failed", err)
	}

	log.Debug("appointments listed", slog.Int("count", len(appts)))
	return appointmentsResponse(appts), nil
}

func (s *AppointmentsServer) SearchAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "SearchAppointments")

	term, err := stringField(req, "term")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	appts, err := s.svc.Search(ctx, term)
	if err != nil {
		return nil, s.mapError(ctx, log, "appointments search failed", err, slog.String("term", term))
	}

	log.Debug("appointments searched", slog.String("term", term), slog.Int("count", len(appts)))
	return appointmentsResponse(appts), nil
}

func (s *AppointmentsServer) DeleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "DeleteAppointment")

	id, err := int64Field(req, "appointment_id")
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_id"))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	appt, err := s.svc.DeleteByID(ctx, id)
	if err != nil {
		return nil, s.mapError(ctx, log, "appointment delete failed", err, slog.Int64("appointment_id", id))
	}

	log.Info("appointment deleted", slog.Int64("appointment_id", appt.ID), slog.String("patient_id", appt.PatientID))
	return appointmentResponse(appt), nil
}

func (s *AppointmentsServer) ListAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.rpcLogger(ctx, "ListAvailableSlots")

	doctor, err := stringField(req, "doctor_name")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	date, err := stringField(req, "appointment_date")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	slots, err := s.svc.Availability(ctx, doctor, date)
	if err != nil {
		return nil, s.mapError(ctx, log, "availability lookup failed", err,
			slog.String("doctor_name", doctor), slog.String("appointment_date", date))
	}
	return timeSlotsResponse(slots), nil
}

func (s *AppointmentsServer) ListTimeSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return timeSlotsResponse(s.svc.TimeSlots()), nil
}

// mapError converts a service error into a gRPC status. Storage failures are
// logged and reported; callers only see a generic message.
func (s *AppointmentsServer) mapError(ctx context.Context, log *slog.Logger, msg string, err error, attrs ...any) error {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, store.ErrDuplicatePatient):
		log.Info("duplicate patient", attrs...)
		return status.Error(codes.AlreadyExists, "duplicate patient: this patient ID already has an appointment")
	case errors.Is(err, store.ErrDoctorDoubleBooked):
		log.Info("doctor double-booked", attrs...)
		return status.Error(codes.AlreadyExists, "doctor double-booked: the doctor already has an appointment in that slot")
	case errors.Is(err, store.ErrConflict):
		log.Info("appointment conflict", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.AlreadyExists, "appointment conflicts with an existing booking")
	case errors.Is(err, store.ErrNotFound):
		log.Info("appointment not found", attrs...)
		return status.Error(codes.NotFound, "appointment not found")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(msg, append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	default:
		log.Error(msg, append([]any{slog.Any("err", err)}, attrs...)...)
		telemetry.CaptureError(err, map[string]any{
			"transport":  "grpc",
			"request_id": requestid.FromContext(ctx),
			"message":    msg,
		})
		return status.Error(codes.Internal, "storage error")
	}
}
