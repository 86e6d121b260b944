package domain

import (
	"reflect"
	"testing"
)

func TestNewTimeSlots_DefaultsWhenEmpty(t *testing.T) {
	ts, err := NewTimeSlots(nil)
	if err != nil {
		t.Fatalf("NewTimeSlots error: %v", err)
	}
	if len(ts) != 6 {
		t.Fatalf("len(ts) = %d, want 6", len(ts))
	}
	if ts[0] != Slot0900 || ts[5] != Slot1500 {
		t.Fatalf("unexpected default order: %v", ts)
	}
	if ts.Contains("12:00 PM - 01:00 PM") {
		t.Fatalf("noon hour must not be bookable")
	}

	ts[0] = "mutated"
	if DefaultTimeSlots[0] != Slot0900 {
		t.Fatalf("defaults were mutated through returned slice")
	}
}

func TestNewTimeSlots_Validation(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		wantErr bool
	}{
		{name: "trims labels", labels: []string{" a ", "b"}},
		{name: "empty label", labels: []string{"a", "  "}, wantErr: true},
		{name: "duplicate label", labels: []string{"a", "a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := NewTimeSlots(tt.labels)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", ts)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTimeSlots error: %v", err)
			}
			if !ts.Contains("a") || !ts.Contains("b") {
				t.Fatalf("labels not trimmed: %v", ts)
			}
		})
	}
}

func TestTimeSlotsWithout_KeepsOrder(t *testing.T) {
	ts := TimeSlots(DefaultTimeSlots)
	got := ts.Without([]TimeSlot{Slot1000, Slot1400})
	want := TimeSlots{Slot0900, Slot1100, Slot1300, Slot1500}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Without = %v, want %v", got, want)
	}
}

func TestValidDate(t *testing.T) {
	tests := map[string]bool{
		"2024-05-01": true,
		"2024-02-29": true,
		"2023-02-29": false,
		"2024-5-1":   false,
		"01/05/2024": false,
		"":           false,
	}
	for in, want := range tests {
		if got := ValidDate(in); got != want {
			t.Errorf("ValidDate(%q) = %v, want %v", in, got, want)
		}
	}
}
