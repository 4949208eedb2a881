package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

// MemoryRepo is a map-backed Repository.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Appointment
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Appointment)}
}

func (m *MemoryRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	if a.CreatedDate.IsZero() {
		a.CreatedDate = time.Now().UTC()
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepo) Accept(_ context.Context, id uuid.UUID, slot Slot, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	date, clock := slot.Date, slot.Clock
	a.IsAcceptedByDoctor = true
	a.DoctorScheduledDate = &date
	a.DoctorScheduledTime = &clock
	a.AcceptedDate = &at
	return nil
}

func (m *MemoryRepo) Approve(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return apperr.NotFound("appointment")
	}
	a.Status = true
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return apperr.NotFound("appointment")
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.items {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.Accepted != nil && a.IsAcceptedByDoctor != *f.Accepted {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })

	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}
