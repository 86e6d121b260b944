package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"clinicbook/internal/cache"
	"clinicbook/internal/config"
	"clinicbook/internal/domain"
	"clinicbook/internal/events"
	"clinicbook/internal/monitoring"
	"clinicbook/internal/service/appointments"
	"clinicbook/internal/store/postgres"
	"clinicbook/internal/transport/httpapi"
)

const eventFlushTimeout = 10 * time.Second

// app owns every connection the service needs. Close releases them in
// reverse order of acquisition.
type app struct {
	log     *slog.Logger
	db      *bun.DB
	redis   *redis.Client
	events  *events.Publisher
	metrics *monitoring.Metrics
	svc     *appointments.Service
}

func openApp(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (*app, error) {
	slots, err := domain.NewTimeSlots(cfg.TimeSlots)
	if err != nil {
		return nil, fmt.Errorf("clinic.time_slots: %w", err)
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	a := &app{
		log:     log,
		db:      db,
		metrics: monitoring.NewMetrics(reg),
	}

	opts := []appointments.Option{
		appointments.WithTimeSlots(slots),
		appointments.WithMetrics(a.metrics),
		appointments.WithLogger(log),
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("availability cache disabled", slog.Any("err", err), slog.String("redis_addr", cfg.RedisAddr))
		} else {
			a.redis = client
			opts = append(opts, appointments.WithSlotCache(cache.NewAvailabilityCache(client, cfg.CacheTTL, log)))
		}
	}

	if cfg.KafkaBrokers != "" {
		pub, err := events.NewPublisher(events.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, log)
		if err != nil {
			log.Warn("event publishing disabled", slog.Any("err", err))
		} else {
			a.events = pub
			opts = append(opts, appointments.WithEventPublisher(pub))
		}
	} else {
		log.Debug("event publishing disabled (no kafka brokers configured)")
	}

	a.svc = appointments.NewService(postgres.NewAppointmentRepo(db), opts...)
	return a, nil
}

func (a *app) readyChecks() []httpapi.ReadyCheck {
	checks := []httpapi.ReadyCheck{{Name: "database", Check: postgres.ReadyCheck(a.db)}}
	if a.redis != nil {
		checks = append(checks, httpapi.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(a.redis)})
	}
	return checks
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), eventFlushTimeout)
	defer cancel()
	if err := a.svc.Close(ctx); err != nil {
		a.log.Warn("pending events not flushed", slog.Any("err", err))
	}

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn("event publisher close failed", slog.Any("err", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", slog.Any("err", err))
		}
	}
	if err := postgres.Close(a.db); err != nil {
		a.log.Warn("database close failed", slog.Any("err", err))
	}
}
