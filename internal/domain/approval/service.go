// Package approval moves doctor, patient and admin profiles from pending to
// approved, or rejects them by deleting the account.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/platform/blobstore"
	"github.com/Het-thummar/hospital-management/internal/platform/db"
	"github.com/Het-thummar/hospital-management/internal/platform/notification"
	"github.com/Het-thummar/hospital-management/internal/platform/telemetry"
	"github.com/Het-thummar/hospital-management/internal/platform/websocket"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

// Notifier delivers approval notices. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// PatientResult is a patient approval and the appointment created with it,
// if any.
type PatientResult struct {
	Patient     *identity.PatientProfile `json:"patient"`
	Appointment *appointment.Appointment `json:"appointment,omitempty"`
}

// Pending is the admin work queue. Admins is only filled for superusers.
type Pending struct {
	Doctors  []*identity.DoctorProfile  `json:"doctors"`
	Patients []*identity.PatientProfile `json:"patients"`
	Admins   []*identity.AdminApproval  `json:"admins,omitempty"`
}

type Service struct {
	repos        *identity.Repos
	appointments appointment.Repository
	tx           db.Transactor
	blobs        blobstore.BlobStore
	notifier     Notifier
	metrics      telemetry.Recorder
	events       websocket.EventPublisher
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	repos *identity.Repos,
	appointments appointment.Repository,
	tx db.Transactor,
	blobs blobstore.BlobStore,
	notifier Notifier,
	metrics telemetry.Recorder,
	logger zerolog.Logger,
) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Service{
		repos:        repos,
		appointments: appointments,
		tx:           tx,
		blobs:        blobs,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger.With().Str("component", "approval").Logger(),
		now:          time.Now,
	}
}

// SetPublisher enables live notifications to approved accounts.
func (s *Service) SetPublisher(p websocket.EventPublisher) { s.events = p }

func (s *Service) publish(ctx context.Context, accountID uuid.UUID, typ string, data interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, websocket.NewEvent(websocket.AccountTopic(accountID), typ, accountID, data)); err != nil {
		s.logger.Warn().Err(err).Str("type", typ).Msg("live event not published")
	}
}

// ApproveDoctor marks the doctor approved by actor. Approving twice keeps the
// flag and overwrites the audit fields.
func (s *Service) ApproveDoctor(ctx context.Context, actor *identity.Actor, doctorID uuid.UUID) (*identity.DoctorProfile, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, err
	}
	if err := s.repos.Doctors.SetApproval(ctx, doctorID, actor.ID(), s.now().UTC()); err != nil {
		return nil, err
	}
	d, err := s.repos.Doctors.GetByAccountID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("doctor", "approved")
	s.logger.Info().Str("actor_id", actor.ID().String()).Str("doctor_id", doctorID.String()).Msg("doctor approved")
	s.notify(ctx, notification.TemplateDoctorApproved, d.Mobile, map[string]string{"name": d.Name})
	s.publish(ctx, doctorID, "doctor.approved", d)
	return d, nil
}

// RejectDoctor deletes the doctor's account together with its profile.
func (s *Service) RejectDoctor(ctx context.Context, actor *identity.Actor, doctorID uuid.UUID) error {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return err
	}
	d, err := s.repos.Doctors.GetByAccountID(ctx, doctorID)
	if err != nil {
		return err
	}
	if err := s.repos.Accounts.Delete(ctx, doctorID); err != nil {
		return err
	}
	s.dropPicture(ctx, d.ProfilePic)

	s.metrics.RecordTransition("doctor", "rejected")
	s.logger.Info().Str("actor_id", actor.ID().String()).Str("doctor_id", doctorID.String()).Msg("doctor rejected")
	return nil
}

// ApproveAdmin approves the request and adds the account to the Admin group.
// Only superusers may decide admin requests.
func (s *Service) ApproveAdmin(ctx context.Context, actor *identity.Actor, approvalID uuid.UUID) (*identity.AdminApproval, error) {
	if _, err := access.Require(actor, access.CapSuperuser); err != nil {
		return nil, err
	}

	var m *identity.AdminApproval
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Admins.SetApproval(ctx, approvalID, actor.ID(), s.now().UTC()); err != nil {
			return err
		}
		var err error
		if m, err = s.repos.Admins.GetByID(ctx, approvalID); err != nil {
			return err
		}
		if err := s.repos.Groups.AddMember(ctx, identity.AdminGroup, m.AccountID); err != nil {
			return fmt.Errorf("add admin group member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("admin", "approved")
	s.logger.Info().Str("actor_id", actor.ID().String()).Str("admin_id", m.AccountID.String()).Msg("admin approved")
	s.publish(ctx, m.AccountID, "admin.approved", m)
	return m, nil
}

func (s *Service) RejectAdmin(ctx context.Context, actor *identity.Actor, approvalID uuid.UUID) error {
	if _, err := access.Require(actor, access.CapSuperuser); err != nil {
		return err
	}
	m, err := s.repos.Admins.GetByID(ctx, approvalID)
	if err != nil {
		return err
	}
	if err := s.repos.Accounts.Delete(ctx, m.AccountID); err != nil {
		return err
	}

	s.metrics.RecordTransition("admin", "rejected")
	s.logger.Info().Str("actor_id", actor.ID().String()).Str("admin_id", m.AccountID.String()).Msg("admin rejected")
	return nil
}

// ApprovePatient approves the patient. When both date and clock are given an
// approved appointment is created in the same transaction, with the acting
// doctor or, for admins, the patient's assigned doctor.
func (s *Service) ApprovePatient(ctx context.Context, actor *identity.Actor, patientID uuid.UUID, date, clock string) (*PatientResult, error) {
	if _, err := access.Require(actor, access.CapAdminOrDoctor); err != nil {
		return nil, err
	}
	p, err := s.repos.Patients.GetByAccountID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var (
		slot   *appointment.Slot
		doctor *identity.DoctorProfile
	)
	if strings.TrimSpace(date) != "" && strings.TrimSpace(clock) != "" {
		var fields map[string]string
		if slot, fields = appointment.ParseSlot(date, clock, "appointment_date", "appointment_time"); fields != nil {
			return nil, apperr.ValidationFields(fields)
		}
		if doctor, err = s.appointmentDoctor(ctx, actor, p); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	res := &PatientResult{}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Patients.SetApproval(ctx, patientID, actor.ID(), now); err != nil {
			return err
		}
		if slot != nil {
			a := appointment.Scheduled(p, doctor, *slot, now)
			if err := s.appointments.Create(ctx, a); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			res.Appointment = a
		}
		var err error
		res.Patient, err = s.repos.Patients.GetByAccountID(ctx, patientID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition("patient", "approved")
	ev := s.logger.Info().Str("actor_id", actor.ID().String()).Str("patient_id", patientID.String())
	data := map[string]string{"name": p.Name, "appointment": ""}
	if res.Appointment != nil {
		s.metrics.RecordTransition("appointment", "scheduled")
		ev = ev.Str("appointment_id", res.Appointment.ID.String()).Str("doctor_id", doctor.AccountID.String())
		data["appointment"] = fmt.Sprintf(" Your appointment with Dr. %s is on %s at %s.",
			doctor.Name, slot.Date.Format(appointment.DateLayout), slot.Clock)
	}
	ev.Msg("patient approved")
	s.notify(ctx, notification.TemplatePatientApproved, p.Mobile, data)
	s.publish(ctx, patientID, "patient.approved", res)
	return res, nil
}

func (s *Service) appointmentDoctor(ctx context.Context, actor *identity.Actor, p *identity.PatientProfile) (*identity.DoctorProfile, error) {
	if actor.Doctor != nil {
		return actor.Doctor, nil
	}
	if p.AssignedDoctorID == nil {
		return nil, apperr.FieldValidation("doctor", "patient has no assigned doctor")
	}
	d, err := s.repos.Doctors.GetByAccountID(ctx, *p.AssignedDoctorID)
	if apperr.IsNotFound(err) {
		return nil, apperr.FieldValidation("doctor", "patient has no assigned doctor")
	}
	return d, err
}

// PendingApprovals lists unapproved profiles.
func (s *Service) PendingApprovals(ctx context.Context, actor *identity.Actor, limit int) (*Pending, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, err
	}
	pending := false
	out := &Pending{}

	var err error
	if out.Doctors, _, err = s.repos.Doctors.List(ctx, identity.DoctorFilter{Approved: &pending}, limit, 0); err != nil {
		return nil, fmt.Errorf("list pending doctors: %w", err)
	}
	if out.Patients, _, err = s.repos.Patients.List(ctx, identity.PatientFilter{Approved: &pending}, limit, 0); err != nil {
		return nil, fmt.Errorf("list pending patients: %w", err)
	}
	if actor.IsSuperuser() {
		if out.Admins, _, err = s.repos.Admins.List(ctx, &pending, limit, 0); err != nil {
			return nil, fmt.Errorf("list pending admins: %w", err)
		}
	}
	return out, nil
}

func (s *Service) notify(ctx context.Context, templateID, mobile string, data map[string]string) {
	if s.notifier == nil || mobile == "" {
		return
	}
	if err := s.notifier.Send(ctx, templateID, mobile, data); err != nil {
		s.logger.Warn().Err(err).Str("template", templateID).Msg("approval notice not delivered")
	}
}

func (s *Service) dropPicture(ctx context.Context, id string) {
	if s.blobs == nil || id == "" {
		return
	}
	if err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("blob_id", id).Msg("profile picture not removed")
	}
}
