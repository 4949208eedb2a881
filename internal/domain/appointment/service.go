package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/platform/telemetry"
	"github.com/Het-thummar/hospital-management/internal/platform/websocket"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

// ScheduleInput is the admin appointment form.
type ScheduleInput struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Description string
	Date        string
	Time        string
	Status      bool
}

type Service struct {
	repo     Repository
	doctors  identity.DoctorRepository
	patients identity.PatientRepository
	metrics  telemetry.Recorder
	events   websocket.EventPublisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, doctors identity.DoctorRepository, patients identity.PatientRepository, metrics telemetry.Recorder, logger zerolog.Logger) *Service {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Service{
		repo:     repo,
		doctors:  doctors,
		patients: patients,
		metrics:  metrics,
		logger:   logger.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
}

// SetPublisher enables live notifications to the accounts involved.
func (s *Service) SetPublisher(p websocket.EventPublisher) { s.events = p }

func (s *Service) publish(ctx context.Context, typ string, a *Appointment, topics ...string) {
	if s.events == nil {
		return
	}
	for _, topic := range topics {
		if err := s.events.Publish(ctx, websocket.NewEvent(topic, typ, a.ID, a)); err != nil {
			s.logger.Warn().Err(err).Str("type", typ).Msg("live event not published")
		}
	}
}

// bookableDoctor loads a doctor for a new appointment. Unknown and unavailable
// doctors are both reported on field.
func (s *Service) bookableDoctor(ctx context.Context, id uuid.UUID, field string) (*identity.DoctorProfile, error) {
	d, err := s.doctors.GetByAccountID(ctx, id)
	if apperr.IsNotFound(err) {
		return nil, apperr.FieldValidation(field, "select a valid doctor")
	}
	if err != nil {
		return nil, err
	}
	if !d.Bookable() {
		return nil, apperr.FieldValidation(field, "doctor is not available")
	}
	return d, nil
}

// BookAppointment creates an unapproved, unaccepted appointment for the acting
// patient.
func (s *Service) BookAppointment(ctx context.Context, actor *identity.Actor, doctorID uuid.UUID, description string) (*Appointment, error) {
	if _, err := access.Require(actor, access.CapPatient); err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperr.FieldValidation("description", "this field is required")
	}
	doc, err := s.bookableDoctor(ctx, doctorID, "doctor_id")
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   actor.ID(),
		DoctorID:    doc.AccountID,
		PatientName: actor.Account.FullName(),
		DoctorName:  doc.Name,
		Description: description,
		CreatedDate: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	s.metrics.RecordTransition("appointment", "booked")
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Msg("appointment booked")
	s.publish(ctx, "appointment.requested", a, websocket.AccountTopic(a.DoctorID), websocket.AdminsTopic)
	return a, nil
}

// AcceptAppointment records the acting doctor's schedule. Ownership is checked
// before the form so a foreign appointment never leaks validation detail.
func (s *Service) AcceptAppointment(ctx context.Context, actor *identity.Actor, id uuid.UUID, date, clock string) (*Appointment, error) {
	if _, err := access.Require(actor, access.CapDoctor); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != actor.ID() {
		s.logger.Warn().
			Str("appointment_id", id.String()).
			Str("actor_id", actor.ID().String()).
			Msg("doctor tried to accept another doctor's appointment")
		return nil, apperr.Authorization("you can only accept your own appointments")
	}
	slot, fields := ParseSlot(date, clock, "scheduled_date", "scheduled_time")
	if fields != nil {
		return nil, apperr.ValidationFields(fields)
	}

	at := s.now().UTC()
	if err := s.repo.Accept(ctx, id, *slot, at); err != nil {
		return nil, err
	}
	a.IsAcceptedByDoctor = true
	a.DoctorScheduledDate = &slot.Date
	a.DoctorScheduledTime = &slot.Clock
	a.AcceptedDate = &at

	s.metrics.RecordTransition("appointment", "accepted")
	s.logger.Info().Str("appointment_id", id.String()).Str("doctor_id", actor.ID().String()).Msg("appointment accepted")
	s.publish(ctx, "appointment.accepted", a, websocket.AccountTopic(a.PatientID))
	return a, nil
}

func (s *Service) ApproveAppointment(ctx context.Context, actor *identity.Actor, id uuid.UUID) error {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return err
	}
	if err := s.repo.Approve(ctx, id); err != nil {
		return err
	}
	s.metrics.RecordTransition("appointment", "approved")
	s.logger.Info().Str("appointment_id", id.String()).Str("actor_id", actor.ID().String()).Msg("appointment approved")
	if s.events != nil {
		if a, err := s.repo.GetByID(ctx, id); err == nil {
			s.publish(ctx, "appointment.approved", a, websocket.AccountTopic(a.PatientID))
		}
	}
	return nil
}

func (s *Service) DeleteAppointment(ctx context.Context, actor *identity.Actor, id uuid.UUID) error {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.metrics.RecordTransition("appointment", "deleted")
	s.logger.Info().Str("appointment_id", id.String()).Str("actor_id", actor.ID().String()).Msg("appointment deleted")
	return nil
}

// ScheduleAppointment is the admin-created appointment. Date and time are
// optional but must be given together.
func (s *Service) ScheduleAppointment(ctx context.Context, actor *identity.Actor, in ScheduleInput) (*Appointment, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, err
	}

	fields := map[string]string{}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		fields["description"] = "this field is required"
	}
	var slot *Slot
	if strings.TrimSpace(in.Date) != "" || strings.TrimSpace(in.Time) != "" {
		var slotFields map[string]string
		slot, slotFields = ParseSlot(in.Date, in.Time, "appointment_date", "appointment_time")
		for k, v := range slotFields {
			fields[k] = v
		}
	}

	patient, err := s.patients.GetByAccountID(ctx, in.PatientID)
	switch {
	case apperr.IsNotFound(err):
		fields["patient_id"] = "select a valid patient"
	case err != nil:
		return nil, err
	}
	doc, err := s.bookableDoctor(ctx, in.DoctorID, "doctor_id")
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindValidation {
		for k, v := range e.Fields {
			fields[k] = v
		}
	} else if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields(fields)
	}

	a := &Appointment{
		PatientID:   patient.AccountID,
		DoctorID:    doc.AccountID,
		PatientName: patient.Name,
		DoctorName:  doc.Name,
		Description: description,
		Status:      in.Status,
		CreatedDate: s.now().UTC(),
	}
	if slot != nil {
		a.AppointmentDate = &slot.Date
		a.AppointmentTime = &slot.Clock
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	s.metrics.RecordTransition("appointment", "scheduled")
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("actor_id", actor.ID().String()).
		Str("doctor_id", a.DoctorID.String()).
		Msg("appointment scheduled by admin")
	s.publish(ctx, "appointment.scheduled", a, websocket.AccountTopic(a.DoctorID), websocket.AccountTopic(a.PatientID))
	return a, nil
}

// ListForPatient returns the acting patient's appointments.
func (s *Service) ListForPatient(ctx context.Context, actor *identity.Actor, limit, offset int) ([]*Appointment, int, error) {
	if _, err := access.Require(actor, access.CapPatient); err != nil {
		return nil, 0, err
	}
	id := actor.ID()
	return s.repo.List(ctx, Filter{PatientID: &id}, limit, offset)
}

// ListForDoctor returns the acting doctor's appointments. A nil accepted
// returns both tracks.
func (s *Service) ListForDoctor(ctx context.Context, actor *identity.Actor, accepted *bool, limit, offset int) ([]*Appointment, int, error) {
	if _, err := access.Require(actor, access.CapDoctor); err != nil {
		return nil, 0, err
	}
	id := actor.ID()
	return s.repo.List(ctx, Filter{DoctorID: &id, Accepted: accepted}, limit, offset)
}

func (s *Service) ListAll(ctx context.Context, actor *identity.Actor, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, f, limit, offset)
}
