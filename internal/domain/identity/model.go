package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the role column stored on an account. It is set together with the
// role profile and never changes afterwards.
type Role string

const (
	RoleNone    Role = "none"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// AdminGroup is the group granted to workflow-approved administrators.
const AdminGroup = "Admin"

// Departments a doctor may register under.
var Departments = []string{
	"Cardiology",
	"Dermatology",
	"Emergency Medicine",
	"Allergy and Immunology",
	"Anesthesiology",
	"Colon and Rectal Surgery",
	"General Medicine",
}

func IsValidDepartment(d string) bool {
	for _, dep := range Departments {
		if dep == d {
			return true
		}
	}
	return false
}

// Account maps to the accounts table.
type Account struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsSuperuser  bool      `db:"is_superuser" json:"is_superuser"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// DoctorProfile maps to the doctor_profiles table. Name is read from the
// owning account.
type DoctorProfile struct {
	AccountID    uuid.UUID  `db:"account_id" json:"id"`
	Name         string     `db:"-" json:"name"`
	Department   string     `db:"department" json:"department"`
	Mobile       string     `db:"mobile" json:"mobile"`
	Address      string     `db:"address" json:"address"`
	Status       bool       `db:"status" json:"status"`
	IsApproved   bool       `db:"is_approved" json:"is_approved"`
	ApprovedBy   *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedDate *time.Time `db:"approved_date" json:"approved_date,omitempty"`
	ProfilePic   string     `db:"profile_pic" json:"profile_pic,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Bookable reports whether patients may be assigned to or book with the doctor.
func (d *DoctorProfile) Bookable() bool {
	return d.Status && d.IsApproved
}

// PatientProfile maps to the patient_profiles table.
type PatientProfile struct {
	AccountID        uuid.UUID  `db:"account_id" json:"id"`
	Name             string     `db:"-" json:"name"`
	Mobile           string     `db:"mobile" json:"mobile"`
	Address          string     `db:"address" json:"address"`
	Symptoms         string     `db:"symptoms" json:"symptoms"`
	Status           bool       `db:"status" json:"status"`
	AssignedDoctorID *uuid.UUID `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	IsApproved       bool       `db:"is_approved" json:"is_approved"`
	ApprovedBy       *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	AdmitDate        time.Time  `db:"admit_date" json:"admit_date"`
	ProfilePic       string     `db:"profile_pic" json:"profile_pic,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// AdminApproval maps to the admin_approvals table.
type AdminApproval struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AccountID    uuid.UUID  `db:"account_id" json:"account_id"`
	Name         string     `db:"-" json:"name"`
	Username     string     `db:"-" json:"username"`
	IsApproved   bool       `db:"is_approved" json:"is_approved"`
	ApprovedBy   *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	CreatedDate  time.Time  `db:"created_date" json:"created_date"`
	ApprovedDate *time.Time `db:"approved_date" json:"approved_date,omitempty"`
}

// RoleKind is the resolved role variant of an actor.
type RoleKind int

const (
	KindNone RoleKind = iota
	KindDoctor
	KindPatient
	KindAdminPending
	KindAdminApproved
)

func (k RoleKind) String() string {
	switch k {
	case KindDoctor:
		return "doctor"
	case KindPatient:
		return "patient"
	case KindAdminPending:
		return "admin_pending"
	case KindAdminApproved:
		return "admin_approved"
	default:
		return "none"
	}
}

// Actor is an authenticated account together with the role profile it holds.
// At most one of Doctor, Patient and Admin is set.
type Actor struct {
	Account      *Account
	InAdminGroup bool
	Doctor       *DoctorProfile
	Patient      *PatientProfile
	Admin        *AdminApproval
}

func (a *Actor) ID() uuid.UUID {
	if a == nil || a.Account == nil {
		return uuid.Nil
	}
	return a.Account.ID
}

func (a *Actor) IsSuperuser() bool {
	return a != nil && a.Account != nil && a.Account.IsSuperuser
}

// RoleOf returns the role variant held by the actor. Superuser is a flag
// orthogonal to the variant.
func RoleOf(a *Actor) RoleKind {
	switch {
	case a == nil:
		return KindNone
	case a.Doctor != nil:
		return KindDoctor
	case a.Patient != nil:
		return KindPatient
	case a.Admin != nil && a.Admin.IsApproved:
		return KindAdminApproved
	case a.Admin != nil:
		return KindAdminPending
	default:
		return KindNone
	}
}

type actorKey struct{}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor resolved for the request, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorKey{}).(*Actor)
	return a
}
