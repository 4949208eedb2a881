package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUsernameTaken = errors.New("username taken")
	ErrRoleAssigned  = errors.New("account already has a role")
)

type AccountRepository interface {
	// Create returns ErrUsernameTaken when the username is in use.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	// AssignRole moves an account from RoleNone to role. It returns
	// ErrRoleAssigned when the account already holds a role.
	AssignRole(ctx context.Context, id uuid.UUID, role Role) error
	// Delete removes the account and, by cascade, its role profile.
	Delete(ctx context.Context, id uuid.UUID) error
}

type DoctorFilter struct {
	Approved *bool
	// BookableOnly restricts to active, approved doctors.
	BookableOnly bool
}

type DoctorRepository interface {
	Create(ctx context.Context, d *DoctorProfile) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*DoctorProfile, error)
	SetApproval(ctx context.Context, accountID, approvedBy uuid.UUID, at time.Time) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*DoctorProfile, int, error)
}

type PatientFilter struct {
	Approved         *bool
	AssignedDoctorID *uuid.UUID
}

type PatientRepository interface {
	Create(ctx context.Context, p *PatientProfile) error
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*PatientProfile, error)
	SetApproval(ctx context.Context, accountID, approvedBy uuid.UUID, at time.Time) error
	List(ctx context.Context, f PatientFilter, limit, offset int) ([]*PatientProfile, int, error)
}

type AdminApprovalRepository interface {
	Create(ctx context.Context, a *AdminApproval) error
	GetByID(ctx context.Context, id uuid.UUID) (*AdminApproval, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*AdminApproval, error)
	SetApproval(ctx context.Context, id, approvedBy uuid.UUID, at time.Time) error
	List(ctx context.Context, approved *bool, limit, offset int) ([]*AdminApproval, int, error)
}

type GroupRepository interface {
	// AddMember adds the account to the named group, creating the group
	// when it does not exist yet.
	AddMember(ctx context.Context, group string, accountID uuid.UUID) error
	IsMember(ctx context.Context, group string, accountID uuid.UUID) (bool, error)
}

// Repos bundles the identity repositories.
type Repos struct {
	Accounts AccountRepository
	Doctors  DoctorRepository
	Patients PatientRepository
	Admins   AdminApprovalRepository
	Groups   GroupRepository
}
