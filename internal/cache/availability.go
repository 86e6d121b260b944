package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"clinicbook/internal/domain"
)

const (
	keyPrefix        = "clinicbook:availability:"
	generationPrefix = "clinicbook:availability-gen:"
)

// AvailabilityCache stores the free slots of one doctor on one date. Every
// invalidation bumps a generation counter next to the entry; an entry is only
// written when the counter still holds the value read before the lookup.
type AvailabilityCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	genTTL time.Duration
	log    *slog.Logger
}

func NewAvailabilityCache(client redis.UniversalClient, ttl time.Duration, log *slog.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	genTTL := 24 * time.Hour
	if 2*ttl > genTTL {
		genTTL = 2 * ttl
	}
	return &AvailabilityCache{
		client: client,
		ttl:    ttl,
		genTTL: genTTL,
		log:    log.With(slog.String("component", "cache.redis")),
	}
}

func AvailabilityKey(doctorName, appointmentDate string) string {
	return keyPrefix + appointmentDate + ":" + doctorName
}

func GenerationKey(doctorName, appointmentDate string) string {
	return generationPrefix + appointmentDate + ":" + doctorName
}

// Get returns ok=false on a cache miss.
func (c *AvailabilityCache) Get(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, bool, error) {
	raw, err := c.client.Get(ctx, AvailabilityKey(doctorName, appointmentDate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var labels []string
	if err := json.Unmarshal(raw, &labels); err != nil {
		c.log.WarnContext(ctx, "dropping undecodable availability entry",
			slog.String("doctor_name", doctorName),
			slog.String("appointment_date", appointmentDate),
			slog.String("err", err.Error()),
		)
		return nil, false, nil
	}

	slots := make([]domain.TimeSlot, 0, len(labels))
	for _, l := range labels {
		slots = append(slots, domain.TimeSlot(l))
	}
	return slots, true, nil
}

// Generation returns the invalidation counter for one doctor and date. A
// missing counter reads as zero.
func (c *AvailabilityCache) Generation(ctx context.Context, doctorName, appointmentDate string) (int64, error) {
	gen, err := c.client.Get(ctx, GenerationKey(doctorName, appointmentDate)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// Set stores slots only if the generation is still the one the caller read.
// It reports whether the entry was written.
func (c *AvailabilityCache) Set(ctx context.Context, doctorName, appointmentDate string, generation int64, slots []domain.TimeSlot) (bool, error) {
	labels := make([]string, 0, len(slots))
	for _, s := range slots {
		labels = append(labels, string(s))
	}
	raw, err := json.Marshal(labels)
	if err != nil {
		return false, err
	}

	genKey := GenerationKey(doctorName, appointmentDate)
	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, AvailabilityKey(doctorName, appointmentDate), raw, c.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set: %w", err)
	}
	return stored, nil
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, doctorName, appointmentDate string) error {
	genKey := GenerationKey(doctorName, appointmentDate)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, c.genTTL)
		pipe.Del(ctx, AvailabilityKey(doctorName, appointmentDate))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}
