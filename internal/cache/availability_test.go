package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinicbook/internal/domain"
)

func TestAvailabilityKey(t *testing.T) {
	got := AvailabilityKey("Dr. Lee", "2024-05-01")
	if got != "clinicbook:availability:2024-05-01:Dr. Lee" {
		t.Fatalf("key = %q", got)
	}
	if AvailabilityKey("Dr. Lee", "2024-05-02") == got {
		t.Fatalf("keys for different dates must differ")
	}
	if GenerationKey("Dr. Lee", "2024-05-01") == got {
		t.Fatalf("generation key must not collide with the entry key")
	}
}

func TestNewRedisClient_RequiresAddr(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestReadyCheck_NilClient(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRedisIntegration_AvailabilityRoundTrip(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("CLINICBOOK_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("CLINICBOOK_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, Options{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisClient error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := ReadyCheck(client)(ctx); err != nil {
		t.Fatalf("ReadyCheck error: %v", err)
	}

	c := NewAvailabilityCache(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	doctor := "Dr. " + uuid.NewString()
	date := "2024-05-01"
	t.Cleanup(func() {
		_ = client.Del(context.Background(), AvailabilityKey(doctor, date), GenerationKey(doctor, date)).Err()
	})

	if _, ok, err := c.Get(ctx, doctor, date); err != nil || ok {
		t.Fatalf("Get before Set = ok:%v err:%v, want miss", ok, err)
	}

	gen, err := c.Generation(ctx, doctor, date)
	if err != nil || gen != 0 {
		t.Fatalf("Generation = %d err:%v, want 0", gen, err)
	}

	want := []domain.TimeSlot{domain.Slot1000, domain.Slot1500}
	if stored, err := c.Set(ctx, doctor, date, gen, want); err != nil || !stored {
		t.Fatalf("Set = stored:%v err:%v", stored, err)
	}
	got, ok, err := c.Get(ctx, doctor, date)
	if err != nil || !ok {
		t.Fatalf("Get after Set = ok:%v err:%v", ok, err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Get = %v, want %v", got, want)
	}

	if err := c.Invalidate(ctx, doctor, date); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}
	if _, ok, _ := c.Get(ctx, doctor, date); ok {
		t.Fatalf("entry survived Invalidate")
	}

	// A lookup that started before the invalidation must not write back.
	if stored, err := c.Set(ctx, doctor, date, gen, want); err != nil || stored {
		t.Fatalf("Set with old generation = stored:%v err:%v, want skipped", stored, err)
	}
	if _, ok, _ := c.Get(ctx, doctor, date); ok {
		t.Fatalf("old generation wrote an entry")
	}

	fresh, err := c.Generation(ctx, doctor, date)
	if err != nil || fresh != gen+1 {
		t.Fatalf("Generation after Invalidate = %d err:%v, want %d", fresh, err, gen+1)
	}
	if stored, err := c.Set(ctx, doctor, date, fresh, want[:1]); err != nil || !stored {
		t.Fatalf("Set with current generation = stored:%v err:%v", stored, err)
	}
	ttl, err := client.TTL(ctx, GenerationKey(doctor, date)).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("generation key TTL = %v err:%v, want a positive expiry", ttl, err)
	}
}
