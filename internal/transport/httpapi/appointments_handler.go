package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clinicbook/internal/domain"
	"clinicbook/internal/service/appointments"
	"clinicbook/internal/store"
)

type appointmentsHandler struct {
	svc appointmentsService
	log *slog.Logger
}

type createAppointmentRequest struct {
	PatientName     string `json:"patient_name"`
	PatientID       string `json:"patient_id"`
	DoctorName      string `json:"doctor_name"`
	AppointmentDate string `json:"appointment_date"`
	TimeSlot        string `json:"time_slot"`
}

type cancelAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	AppointmentDate string `json:"appointment_date"`
	TimeSlot        string `json:"time_slot"`
}

type appointmentResponse struct {
	AppointmentID   int64     `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	AppointmentDate string    `json:"appointment_date"`
	TimeSlot        string    `json:"time_slot"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		DoctorName:      a.DoctorName,
		AppointmentDate: a.AppointmentDate,
		TimeSlot:        string(a.TimeSlot),
		CreatedAt:       a.CreatedAt.UTC(),
	}
}

func toAppointmentResponses(appts []domain.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func (h *appointmentsHandler) create(c *gin.Context) {
	var req createAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	appt, err := h.svc.Create(c.Request.Context(), appointments.CreateInput{
		PatientName:     req.PatientName,
		PatientID:       req.PatientID,
		DoctorName:      req.DoctorName,
		AppointmentDate: req.AppointmentDate,
		TimeSlot:        req.TimeSlot,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.InfoContext(c.Request.Context(), "appointment created",
		slog.Int64("appointment_id", appt.ID),
		slog.String("patient_id", appt.PatientID),
	)
	c.JSON(http.StatusCreated, gin.H{"appointment": toAppointmentResponse(appt)})
}

func (h *appointmentsHandler) cancel(c *gin.Context) {
	var req cancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	appt, err := h.svc.Cancel(c.Request.Context(), appointments.CancelInput{
		PatientID:       req.PatientID,
		AppointmentDate: req.AppointmentDate,
		TimeSlot:        req.TimeSlot,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.InfoContext(c.Request.Context(), "appointment cancelled", slog.Int64("appointment_id", appt.ID))
	c.JSON(http.StatusOK, gin.H{"appointment": toAppointmentResponse(appt)})
}

func (h *appointmentsHandler) list(c *gin.Context) {
	appts, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": toAppointmentResponses(appts)})
}

func (h *appointmentsHandler) search(c *gin.Context) {
	appts, err := h.svc.Search(c.Request.Context(), c.Query("term"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": toAppointmentResponses(appts)})
}

func (h *appointmentsHandler) deleteByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "appointment_id must be an integer"})
		return
	}

	appt, err := h.svc.DeleteByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.InfoContext(c.Request.Context(), "appointment deleted", slog.Int64("appointment_id", appt.ID))
	c.JSON(http.StatusOK, gin.H{"appointment": toAppointmentResponse(appt)})
}

func (h *appointmentsHandler) availability(c *gin.Context) {
	doctor := c.Query("doctor_name")
	date := c.Query("appointment_date")

	slots, err := h.svc.Availability(c.Request.Context(), doctor, date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"doctor_name":      doctor,
		"appointment_date": date,
		"time_slots":       domain.TimeSlots(slots).Strings(),
	})
}

func (h *appointmentsHandler) timeSlots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"time_slots": h.svc.TimeSlots().Strings()})
}

func (h *appointmentsHandler) respondError(c *gin.Context, err error) {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, store.ErrDuplicatePatient):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate patient: this patient ID already has an appointment"})
	case errors.Is(err, store.ErrDoctorDoubleBooked):
		c.JSON(http.StatusConflict, gin.H{"error": "doctor double-booked: the doctor already has an appointment in that slot"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "appointment conflicts with an existing booking"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
	}
}
