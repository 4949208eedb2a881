package discharge

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrAlreadyDischarged is returned when the admission already has a bill.
var ErrAlreadyDischarged = errors.New("patient already discharged for this admission")

type Repository interface {
	Create(ctx context.Context, d *Details) error
	GetByID(ctx context.Context, id uuid.UUID) (*Details, error)
	// LatestForPatient returns the most recent discharge of the patient.
	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Details, error)
	List(ctx context.Context, limit, offset int) ([]*Details, int, error)
}
