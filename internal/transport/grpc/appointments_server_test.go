package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"clinicbook/internal/domain"
	"clinicbook/internal/requestid"
	"clinicbook/internal/service/appointments"
	"clinicbook/internal/store"
)

type fakeAppointmentsService struct {
	createFn       func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	cancelFn       func(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	listFn         func(ctx context.Context) ([]domain.Appointment, error)
	searchFn       func(ctx context.Context, term string) ([]domain.Appointment, error)
	deleteByIDFn   func(ctx context.Context, appointmentID int64) (domain.Appointment, error)
	availabilityFn func(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error)
}

func (f *fakeAppointmentsService) Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, in)
}

func (f *fakeAppointmentsService) Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, in)
}

func (f *fakeAppointmentsService) List(ctx context.Context) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx)
}

func (f *fakeAppointmentsService) Search(ctx context.Context, term string) ([]domain.Appointment, error) {
	if f.searchFn == nil {
		panic("Search not configured")
	}
	return f.searchFn(ctx, term)
}

func (f *fakeAppointmentsService) DeleteByID(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	if f.deleteByIDFn == nil {
		panic("DeleteByID not configured")
	}
	return f.deleteByIDFn(ctx, appointmentID)
}

func (f *fakeAppointmentsService) Availability(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error) {
	if f.availabilityFn == nil {
		panic("Availability not configured")
	}
	return f.availabilityFn(ctx, doctorName, appointmentDate)
}

func (f *fakeAppointmentsService) TimeSlots() domain.TimeSlots {
	return append(domain.TimeSlots(nil), domain.DefaultTimeSlots...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}
	return s
}

func TestCreateAppointment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		msg  string
	}{
		{name: "validation", err: &appointments.ValidationError{}, code: codes.InvalidArgument},
		{name: "duplicate patient", err: store.ErrDuplicatePatient, code: codes.AlreadyExists, msg: "duplicate patient: this patient ID already has an appointment"},
		{name: "double booked", err: store.ErrDoctorDoubleBooked, code: codes.AlreadyExists, msg: "doctor double-booked: the doctor already has an appointment in that slot"},
		{name: "storage", err: errors.New("pq: relation does not exist"), code: codes.Internal, msg: "storage error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewAppointmentsServer(&fakeAppointmentsService{
				createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
					return domain.Appointment{}, tt.err
				},
			}, quietLogger())

			_, err := srv.CreateAppointment(context.Background(), mustStruct(t, map[string]any{"patient_id": "P1"}))
			if status.Code(err) != tt.code {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.code)
			}
			if tt.msg != "" && status.Convert(err).Message() != tt.msg {
				t.Fatalf("message = %q, want %q", status.Convert(err).Message(), tt.msg)
			}
		})
	}
}

func TestCreateAppointment_RejectsNonStringField(t *testing.T) {
	srv := NewAppointmentsServer(&fakeAppointmentsService{}, quietLogger())

	_, err := srv.CreateAppointment(context.Background(), mustStruct(t, map[string]any{"patient_id": 42}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDeleteAppointment_ParsesIDAndMapsNotFound(t *testing.T) {
	var gotID int64
	srv := NewAppointmentsServer(&fakeAppointmentsService{
		deleteByIDFn: func(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
			gotID = appointmentID
			return domain.Appointment{}, store.ErrNotFound
		},
	}, quietLogger())

	_, err := srv.DeleteAppointment(context.Background(), mustStruct(t, map[string]any{"appointment_id": "12"}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.NotFound)
	}
	if gotID != 12 {
		t.Fatalf("appointment_id = %d, want 12", gotID)
	}

	_, err = srv.DeleteAppointment(context.Background(), mustStruct(t, map[string]any{"appointment_id": 1.5}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("fractional id code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestDefaultRequestTimeoutInterceptor_KeepsExistingDeadline(t *testing.T) {
	interceptor := DefaultRequestTimeoutInterceptor(time.Hour)

	parent, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	want, _ := parent.Deadline()

	_, _ = interceptor(parent, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		got, ok := ctx.Deadline()
		if !ok || !got.Equal(want) {
			t.Fatalf("deadline = %v, want %v", got, want)
		}
		return nil, nil
	})

	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected default deadline")
		}
		return nil, nil
	})
}

func dialBufconn(t *testing.T, svc appointmentsService) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv, _ := NewServer(ServerConfig{RequestTimeout: 5 * time.Second}, svc, quietLogger())
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAppointmentsService_RoundTripOverBufconn(t *testing.T) {
	created := domain.Appointment{
		ID:              1,
		PatientID:       "P1",
		PatientName:     "Jane Doe",
		DoctorName:      "Dr. Lee",
		AppointmentDate: "2024-05-01",
		TimeSlot:        domain.Slot0900,
		CreatedAt:       time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
	}

	var gotIn appointments.CreateInput
	var gotRequestID string
	conn := dialBufconn(t, &fakeAppointmentsService{
		createFn: func(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error) {
			gotIn = in
			gotRequestID = requestid.FromContext(ctx)
			return created, nil
		},
		availabilityFn: func(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error) {
			return []domain.TimeSlot{domain.Slot1000, domain.Slot1500}, nil
		},
	})
	client := NewAppointmentsClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, requestid.MetadataKey, "req-42")

	var header metadata.MD
	resp, err := client.Call(ctx, "CreateAppointment", mustStruct(t, map[string]any{
		"patient_name":     "Jane Doe",
		"patient_id":       "P1",
		"doctor_name":      "Dr. Lee",
		"appointment_date": "2024-05-01",
		"time_slot":        "09:00 AM - 10:00 AM",
	}), grpc.Header(&header))
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}
	if gotIn.PatientName != "Jane Doe" || gotIn.TimeSlot != "09:00 AM - 10:00 AM" {
		t.Fatalf("service input = %+v", gotIn)
	}
	if gotRequestID != "req-42" {
		t.Fatalf("request id in handler = %q, want %q", gotRequestID, "req-42")
	}
	if vals := header.Get(requestid.MetadataKey); len(vals) == 0 || vals[0] != "req-42" {
		t.Fatalf("response header request id = %v", vals)
	}

	appt := resp.GetFields()["appointment"].GetStructValue()
	if appt.GetFields()["appointment_id"].GetNumberValue() != 1 {
		t.Fatalf("appointment_id = %v", appt.GetFields()["appointment_id"])
	}
	if appt.GetFields()["doctor_name"].GetStringValue() != "Dr. Lee" {
		t.Fatalf("doctor_name = %v", appt.GetFields()["doctor_name"])
	}

	slots, err := client.Call(ctx, "ListAvailableSlots", mustStruct(t, map[string]any{
		"doctor_name":      "Dr. Lee",
		"appointment_date": "2024-05-01",
	}))
	if err != nil {
		t.Fatalf("ListAvailableSlots error: %v", err)
	}
	list := slots.GetFields()["time_slots"].GetListValue().GetValues()
	if len(list) != 2 || list[1].GetStringValue() != string(domain.Slot1500) {
		t.Fatalf("time_slots = %v", list)
	}

	all, err := client.Call(ctx, "ListTimeSlots", nil)
	if err != nil {
		t.Fatalf("ListTimeSlots error: %v", err)
	}
	if n := len(all.GetFields()["time_slots"].GetListValue().GetValues()); n != len(domain.DefaultTimeSlots) {
		t.Fatalf("ListTimeSlots count = %d", n)
	}

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health Check error: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %s", health.GetStatus())
	}
}

func TestAppointmentsService_StatusCodesOverBufconn(t *testing.T) {
	conn := dialBufconn(t, &fakeAppointmentsService{
		cancelFn: func(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
		searchFn: func(ctx context.Context, term string) ([]domain.Appointment, error) {
			return []domain.Appointment{}, nil
		},
	})
	client := NewAppointmentsClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Call(ctx, "CancelAppointment", mustStruct(t, map[string]any{
		"patient_id":       "P9",
		"appointment_date": "2024-05-01",
		"time_slot":        "09:00 AM - 10:00 AM",
	}))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("CancelAppointment code = %s, want %s", status.Code(err), codes.NotFound)
	}

	resp, err := client.Call(ctx, "SearchAppointments", mustStruct(t, map[string]any{"term": "zzz-no-match"}))
	if err != nil {
		t.Fatalf("SearchAppointments error: %v", err)
	}
	if n := len(resp.GetFields()["appointments"].GetListValue().GetValues()); n != 0 {
		t.Fatalf("results = %d, want 0", n)
	}
}
