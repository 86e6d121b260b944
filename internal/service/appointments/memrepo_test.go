package appointments

import (
	"context"
	"sort"
	"strings"
	"sync"

	"clinicbook/internal/domain"
	"clinicbook/internal/store"
)

// memRepo is an in-memory AppointmentRepository. Transactions are serialized
// and staged writes are discarded when fn fails.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[int64]domain.Appointment)}
}

func (r *memRepo) InBookingTransaction(ctx context.Context, lockKeys []string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{nextID: r.nextID, rows: make(map[int64]domain.Appointment, len(r.rows))}
	for id, a := range r.rows {
		tx.rows[id] = a
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.nextID = tx.nextID
	r.rows = tx.rows
	return nil
}

func (r *memRepo) snapshot() []domain.Appointment {
	out := make([]domain.Appointment, 0, len(r.rows))
	for _, a := range r.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) List(ctx context.Context) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

func (r *memRepo) Search(ctx context.Context, term string) ([]domain.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Appointment, 0)
	for _, a := range r.snapshot() {
		if strings.Contains(a.DoctorName, term) || strings.Contains(a.AppointmentDate, term) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) BookedSlots(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.TimeSlot
	for _, a := range r.rows {
		if a.DoctorName == doctorName && a.AppointmentDate == appointmentDate {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

type memTx struct {
	nextID int64
	rows   map[int64]domain.Appointment
}

func (t *memTx) PatientBooked(ctx context.Context, patientID string) (bool, error) {
	for _, a := range t.rows {
		if a.PatientID == patientID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) SlotBooked(ctx context.Context, key domain.SlotKey) (bool, error) {
	for _, a := range t.rows {
		if a.SlotKey() == key {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if ok, _ := t.PatientBooked(ctx, appt.PatientID); ok {
		return domain.Appointment{}, store.ErrDuplicatePatient
	}
	if ok, _ := t.SlotBooked(ctx, appt.SlotKey()); ok {
		return domain.Appointment{}, store.ErrDoctorDoubleBooked
	}
	t.nextID++
	appt.ID = t.nextID
	t.rows[appt.ID] = appt
	return appt, nil
}

func (t *memTx) FindForCancellation(ctx context.Context, patientID, appointmentDate string, slot domain.TimeSlot) (domain.Appointment, error) {
	for _, a := range t.rows {
		if a.PatientID == patientID && a.AppointmentDate == appointmentDate && a.TimeSlot == slot {
			return a, nil
		}
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (t *memTx) FindByID(ctx context.Context, appointmentID int64) (domain.Appointment, error) {
	a, ok := t.rows[appointmentID]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *memTx) DeleteAppointment(ctx context.Context, appointmentID int64) error {
	if _, ok := t.rows[appointmentID]; !ok {
		return store.ErrNotFound
	}
	delete(t.rows, appointmentID)
	return nil
}

// memCache is an in-memory SlotCache with the same generation rules as the
// redis implementation.
type memCache struct {
	mu            sync.Mutex
	entries       map[string][]domain.TimeSlot
	generations   map[string]int64
	sets          int
	invalidations int
}

func newMemCache() *memCache {
	return &memCache{
		entries:     make(map[string][]domain.TimeSlot),
		generations: make(map[string]int64),
	}
}

func memCacheKey(doctorName, appointmentDate string) string {
	return doctorName + "|" + appointmentDate
}

func (c *memCache) Get(ctx context.Context, doctorName, appointmentDate string) ([]domain.TimeSlot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[memCacheKey(doctorName, appointmentDate)]
	return s, ok, nil
}

func (c *memCache) Generation(ctx context.Context, doctorName, appointmentDate string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[memCacheKey(doctorName, appointmentDate)], nil
}

func (c *memCache) Set(ctx context.Context, doctorName, appointmentDate string, generation int64, slots []domain.TimeSlot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := memCacheKey(doctorName, appointmentDate)
	if c.generations[key] != generation {
		return false, nil
	}
	c.sets++
	c.entries[key] = slots
	return true, nil
}

func (c *memCache) Invalidate(ctx context.Context, doctorName, appointmentDate string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := memCacheKey(doctorName, appointmentDate)
	c.invalidations++
	c.generations[key]++
	delete(c.entries, key)
	return nil
}
