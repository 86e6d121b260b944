package grpc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"clinicbook/internal/domain"
)

// stringField returns "" for an absent or null field.
func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", fmt.Errorf("%s must be a string", name)
	}
}

// int64Field accepts an integral number or a decimal string.
func int64Field(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || n >= 1<<63 || n < -(1<<63) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

func appointmentValue(a domain.Appointment) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"appointment_id":   structpb.NewNumberValue(float64(a.ID)),
		"patient_id":       structpb.NewStringValue(a.PatientID),
		"patient_name":     structpb.NewStringValue(a.PatientName),
		"doctor_name":      structpb.NewStringValue(a.DoctorName),
		"appointment_date": structpb.NewStringValue(a.AppointmentDate),
		"time_slot":        structpb.NewStringValue(string(a.TimeSlot)),
		"created_at":       structpb.NewStringValue(a.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}})
}

func appointmentResponse(a domain.Appointment) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"appointment": appointmentValue(a),
	}}
}

func appointmentsResponse(appts []domain.Appointment) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(appts))
	for _, a := range appts {
		values = append(values, appointmentValue(a))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"appointments": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func timeSlotsResponse(slots []domain.TimeSlot) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(slots))
	for _, s := range slots {
		values = append(values, structpb.NewStringValue(string(s)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"time_slots": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}
