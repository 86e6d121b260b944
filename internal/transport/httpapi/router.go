package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clinicbook/internal/domain"
	"clinicbook/internal/monitoring"
	"clinicbook/internal/service/appointments"
)

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
	Cancel(ctx context.Context, in appointments.CancelInput) (domain.Appointment, error)
	List(ctx context.Context) ([]domain.Appointment, error)
	Search(ctx context.Context, term string) ([]domain.Appointment, error)
	DeleteByID(ctx context.Context, appointmentID int64) (domain.Appointment, error)
	Availability(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error)
	TimeSlots() domain.TimeSlots
}

// ReadyCheck is one dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type RouterConfig struct {
	Service     appointmentsService
	Metrics     *monitoring.Metrics
	Logger      *slog.Logger
	ReadyChecks []ReadyCheck
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http.appointments"))

	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestID(),
		AccessLog(log),
		PrometheusMetrics(cfg.Metrics),
		Sentry(),
		ErrorHandler(log),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readyHandler(cfg.ReadyChecks))
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	h := &appointmentsHandler{svc: cfg.Service, log: log}
	v1 := router.Group("/v1")
	{
		v1.POST("/appointments", h.create)
		v1.GET("/appointments", h.list)
		v1.GET("/appointments/search", h.search)
		v1.POST("/appointments/cancel", h.cancel)
		v1.DELETE("/appointments/:id", h.deleteByID)
		v1.GET("/availability", h.availability)
		v1.GET("/time-slots", h.timeSlots)
	}

	return router
}

func readyHandler(checks []ReadyCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		details := gin.H{}
		healthy := true
		for _, rc := range checks {
			if err := rc.Check(ctx); err != nil {
				healthy = false
				details[rc.Name] = "unavailable"
				continue
			}
			details[rc.Name] = "available"
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "details": details})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "details": details})
	}
}
