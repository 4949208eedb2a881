package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

// NewMemoryRepos returns map-backed identity repositories sharing one store.
// Deleting an account cascades the way the PostgreSQL schema does.
func NewMemoryRepos() *Repos {
	s := &memStore{
		accounts: make(map[uuid.UUID]*Account),
		doctors:  make(map[uuid.UUID]*DoctorProfile),
		patients: make(map[uuid.UUID]*PatientProfile),
		admins:   make(map[uuid.UUID]*AdminApproval),
		groups:   make(map[string]map[uuid.UUID]bool),
	}
	return &Repos{
		Accounts: (*memAccounts)(s),
		Doctors:  (*memDoctors)(s),
		Patients: (*memPatients)(s),
		Admins:   (*memAdmins)(s),
		Groups:   (*memGroups)(s),
	}
}

type memStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	doctors  map[uuid.UUID]*DoctorProfile
	patients map[uuid.UUID]*PatientProfile
	admins   map[uuid.UUID]*AdminApproval
	groups   map[string]map[uuid.UUID]bool
}

func (s *memStore) nameOf(id uuid.UUID) string {
	if a, ok := s.accounts[id]; ok {
		return a.FullName()
	}
	return ""
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// -- Accounts --

type memAccounts memStore

func (m *memAccounts) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Username == a.Username {
			return ErrUsernameTaken
		}
	}
	a.ID = uuid.New()
	if a.Role == "" {
		a.Role = RoleNone
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account")
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("account")
}

func (m *memAccounts) AssignRole(_ context.Context, id uuid.UUID, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return apperr.NotFound("account")
	}
	if a.Role != RoleNone {
		return ErrRoleAssigned
	}
	a.Role = role
	return nil
}

func (m *memAccounts) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return apperr.NotFound("account")
	}
	delete(m.accounts, id)
	delete(m.doctors, id)
	delete(m.patients, id)
	for key, adm := range m.admins {
		if adm.AccountID == id {
			delete(m.admins, key)
		} else if adm.ApprovedBy != nil && *adm.ApprovedBy == id {
			adm.ApprovedBy = nil
		}
	}
	for _, members := range m.groups {
		delete(members, id)
	}
	for _, d := range m.doctors {
		if d.ApprovedBy != nil && *d.ApprovedBy == id {
			d.ApprovedBy = nil
		}
	}
	for _, p := range m.patients {
		if p.AssignedDoctorID != nil && *p.AssignedDoctorID == id {
			p.AssignedDoctorID = nil
		}
		if p.ApprovedBy != nil && *p.ApprovedBy == id {
			p.ApprovedBy = nil
		}
	}
	return nil
}

// -- Doctors --

type memDoctors memStore

func (m *memDoctors) Create(_ context.Context, d *DoctorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[d.AccountID]; !ok {
		return apperr.NotFound("account")
	}
	d.CreatedAt = time.Now().UTC()
	cp := *d
	m.doctors[d.AccountID] = &cp
	return nil
}

func (m *memDoctors) GetByAccountID(_ context.Context, accountID uuid.UUID) (*DoctorProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[accountID]
	if !ok {
		return nil, apperr.NotFound("doctor")
	}
	cp := *d
	cp.Name = (*memStore)(m).nameOf(accountID)
	return &cp, nil
}

func (m *memDoctors) SetApproval(_ context.Context, accountID, approvedBy uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[accountID]
	if !ok {
		return apperr.NotFound("doctor")
	}
	d.IsApproved = true
	d.ApprovedBy = &approvedBy
	d.ApprovedDate = &at
	return nil
}

func (m *memDoctors) List(_ context.Context, f DoctorFilter, limit, offset int) ([]*DoctorProfile, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*DoctorProfile
	for _, d := range m.doctors {
		if f.Approved != nil && d.IsApproved != *f.Approved {
			continue
		}
		if f.BookableOnly && !d.Bookable() {
			continue
		}
		cp := *d
		cp.Name = (*memStore)(m).nameOf(d.AccountID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), len(out), nil
}

// -- Patients --

type memPatients memStore

func (m *memPatients) Create(_ context.Context, p *PatientProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[p.AccountID]; !ok {
		return apperr.NotFound("account")
	}
	p.CreatedAt = time.Now().UTC()
	cp := *p
	m.patients[p.AccountID] = &cp
	return nil
}

func (m *memPatients) GetByAccountID(_ context.Context, accountID uuid.UUID) (*PatientProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[accountID]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	cp := *p
	cp.Name = (*memStore)(m).nameOf(accountID)
	return &cp, nil
}

func (m *memPatients) SetApproval(_ context.Context, accountID, approvedBy uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[accountID]
	if !ok {
		return apperr.NotFound("patient")
	}
	p.IsApproved = true
	p.ApprovedBy = &approvedBy
	p.ApprovedAt = &at
	return nil
}

func (m *memPatients) List(_ context.Context, f PatientFilter, limit, offset int) ([]*PatientProfile, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PatientProfile
	for _, p := range m.patients {
		if f.Approved != nil && p.IsApproved != *f.Approved {
			continue
		}
		if f.AssignedDoctorID != nil && (p.AssignedDoctorID == nil || *p.AssignedDoctorID != *f.AssignedDoctorID) {
			continue
		}
		cp := *p
		cp.Name = (*memStore)(m).nameOf(p.AccountID)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), len(out), nil
}

// -- Admin approvals --

type memAdmins memStore

func (m *memAdmins) fill(a *AdminApproval) *AdminApproval {
	cp := *a
	if acct, ok := m.accounts[a.AccountID]; ok {
		cp.Name = acct.FullName()
		cp.Username = acct.Username
	}
	return &cp
}

func (m *memAdmins) Create(_ context.Context, a *AdminApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.AccountID]; !ok {
		return apperr.NotFound("account")
	}
	a.ID = uuid.New()
	a.CreatedDate = time.Now().UTC()
	cp := *a
	m.admins[a.ID] = &cp
	return nil
}

func (m *memAdmins) GetByID(_ context.Context, id uuid.UUID) (*AdminApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.admins[id]
	if !ok {
		return nil, apperr.NotFound("admin approval")
	}
	return m.fill(a), nil
}

func (m *memAdmins) GetByAccountID(_ context.Context, accountID uuid.UUID) (*AdminApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.admins {
		if a.AccountID == accountID {
			return m.fill(a), nil
		}
	}
	return nil, apperr.NotFound("admin approval")
}

func (m *memAdmins) SetApproval(_ context.Context, id, approvedBy uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[id]
	if !ok {
		return apperr.NotFound("admin approval")
	}
	a.IsApproved = true
	a.ApprovedBy = &approvedBy
	a.ApprovedDate = &at
	return nil
}

func (m *memAdmins) List(_ context.Context, approved *bool, limit, offset int) ([]*AdminApproval, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*AdminApproval
	for _, a := range m.admins {
		if approved != nil && a.IsApproved != *approved {
			continue
		}
		out = append(out, m.fill(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.Before(out[j].CreatedDate) })
	return page(out, limit, offset), len(out), nil
}

// -- Groups --

type memGroups memStore

func (m *memGroups) AddMember(_ context.Context, group string, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.groups[group]
	if !ok {
		members = make(map[uuid.UUID]bool)
		m.groups[group] = members
	}
	members[accountID] = true
	return nil
}

func (m *memGroups) IsMember(_ context.Context, group string, accountID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[group][accountID], nil
}
