package discharge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

type MemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Details
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[uuid.UUID]*Details)}
}

func (m *MemoryRepo) Create(_ context.Context, d *Details) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.PatientID == d.PatientID && existing.AdmitDate.Equal(d.AdmitDate) {
			return ErrAlreadyDischarged
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now().UTC()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Details, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("discharge")
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) sorted() []*Details {
	out := make([]*Details, 0, len(m.items))
	for _, d := range m.items {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReleaseDate.Equal(out[j].ReleaseDate) {
			return out[i].ReleaseDate.After(out[j].ReleaseDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryRepo) LatestForPatient(_ context.Context, patientID uuid.UUID) (*Details, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.sorted() {
		if d.PatientID == patientID {
			return d, nil
		}
	}
	return nil, apperr.NotFound("discharge")
}

func (m *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Details, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sorted()
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
