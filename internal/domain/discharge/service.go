package discharge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/platform/telemetry"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

type Service struct {
	repo     Repository
	patients identity.PatientRepository
	doctors  identity.DoctorRepository
	metrics  telemetry.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients identity.PatientRepository, doctors identity.DoctorRepository, metrics telemetry.Recorder, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		metrics:  metrics,
		logger:   logger.With().Str("component", "discharge").Logger(),
		now:      time.Now,
	}
}

// Discharge bills an approved patient. releaseDate defaults to today and uses
// the YYYY-MM-DD layout.
func (s *Service) Discharge(ctx context.Context, actor *identity.Actor, patientID uuid.UUID, c Charges, releaseDate string) (*Details, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByAccountID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !p.IsApproved {
		return nil, apperr.Validation("patient is not approved")
	}

	release := s.now().UTC()
	if v := strings.TrimSpace(releaseDate); v != "" {
		if release, err = time.Parse("2006-01-02", v); err != nil {
			return nil, apperr.FieldValidation("release_date", "must use the format YYYY-MM-DD")
		}
	}

	var doctorName string
	if p.AssignedDoctorID != nil {
		d, err := s.doctors.GetByAccountID(ctx, *p.AssignedDoctorID)
		switch {
		case err == nil:
			doctorName = d.Name
		case !apperr.IsNotFound(err):
			return nil, err
		}
	}

	d, fields := Bill(p, doctorName, c, release)
	if fields != nil {
		return nil, apperr.ValidationFields(fields)
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, ErrAlreadyDischarged) {
			return nil, apperr.Validation(err.Error())
		}
		return nil, fmt.Errorf("create discharge: %w", err)
	}

	s.metrics.RecordTransition("patient", "discharged")
	s.logger.Info().
		Str("actor_id", actor.ID().String()).
		Str("patient_id", patientID.String()).
		Int("day_spent", d.DaySpent).
		Int64("total", d.Total).
		Msg("patient discharged")
	return d, nil
}

// Get returns a discharge to an admin or to the discharged patient.
func (s *Service) Get(ctx context.Context, actor *identity.Actor, id uuid.UUID) (*Details, error) {
	if actor == nil {
		return nil, apperr.Authorization("please log in to continue")
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.PatientID != actor.ID() && !access.IsPrivileged(actor) {
		return nil, apperr.Authorization("you can only view your own bill")
	}
	return d, nil
}

// ForPatient returns the acting patient's latest discharge.
func (s *Service) ForPatient(ctx context.Context, actor *identity.Actor) (*Details, error) {
	if _, err := access.Require(actor, access.CapPatient); err != nil {
		return nil, err
	}
	return s.repo.LatestForPatient(ctx, actor.ID())
}

func (s *Service) List(ctx context.Context, actor *identity.Actor, limit, offset int) ([]*Details, int, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}
