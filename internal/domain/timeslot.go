package domain

import (
	"errors"
	"strings"
)

type TimeSlot string

const (
	Slot0900 TimeSlot = "09:00 AM - 10:00 AM"
	Slot1000 TimeSlot = "10:00 AM - 11:00 AM"
	Slot1100 TimeSlot = "11:00 AM - 12:00 PM"
	Slot1300 TimeSlot = "01:00 PM - 02:00 PM"
	Slot1400 TimeSlot = "02:00 PM - 03:00 PM"
	Slot1500 TimeSlot = "03:00 PM - 04:00 PM"
)

// DefaultTimeSlots is the clinic's bookable hours. The noon hour is not bookable.
var DefaultTimeSlots = []TimeSlot{Slot0900, Slot1000, Slot1100, Slot1300, Slot1400, Slot1500}

// TimeSlots is an ordered slot enumeration.
type TimeSlots []TimeSlot

func NewTimeSlots(labels []string) (TimeSlots, error) {
	if len(labels) == 0 {
		return append(TimeSlots(nil), DefaultTimeSlots...), nil
	}

	seen := make(map[TimeSlot]struct{}, len(labels))
	out := make(TimeSlots, 0, len(labels))
	for _, l := range labels {
		s := TimeSlot(strings.TrimSpace(l))
		if s == "" {
			return nil, errors.New("empty time slot label")
		}
		if _, ok := seen[s]; ok {
			return nil, errors.New("duplicate time slot " + string(s))
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func (ts TimeSlots) Contains(s TimeSlot) bool {
	for _, t := range ts {
		if t == s {
			return true
		}
	}
	return false
}

// Without returns the slots of ts not present in taken, keeping enumeration order.
func (ts TimeSlots) Without(taken []TimeSlot) TimeSlots {
	if len(taken) == 0 {
		return append(TimeSlots(nil), ts...)
	}
	booked := make(map[TimeSlot]struct{}, len(taken))
	for _, t := range taken {
		booked[t] = struct{}{}
	}
	out := make(TimeSlots, 0, len(ts))
	for _, t := range ts {
		if _, ok := booked[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (ts TimeSlots) Strings() []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, string(t))
	}
	return out
}
