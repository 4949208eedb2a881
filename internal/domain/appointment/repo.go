package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *bool
	Accepted  *bool
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Accept records the doctor's schedule. All three fields are written
	// together so an accepted appointment always carries them.
	Accept(ctx context.Context, id uuid.UUID, slot Slot, at time.Time) error
	Approve(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
}
