// Package dashboard assembles the read models behind the patient, doctor and
// admin dashboards and the admin list pages.
package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/discharge"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

const recentLimit = 5

type PatientView struct {
	Patient      *identity.PatientProfile   `json:"patient"`
	Doctor       *identity.DoctorProfile    `json:"doctor,omitempty"`
	Appointments []*appointment.Appointment `json:"appointments"`
	Discharge    *discharge.Details         `json:"discharge,omitempty"`
}

type DoctorView struct {
	Doctor              *identity.DoctorProfile    `json:"doctor"`
	PatientCount        int                        `json:"patient_count"`
	AppointmentCount    int                        `json:"appointment_count"`
	PendingAppointments int                        `json:"pending_appointment_count"`
	Recent              []*appointment.Appointment `json:"recent_appointments"`
}

type Counts struct {
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
}

type AdminView struct {
	Doctors        Counts                     `json:"doctors"`
	Patients       Counts                     `json:"patients"`
	Appointments   Counts                     `json:"appointments"`
	RecentDoctors  []*identity.DoctorProfile  `json:"recent_doctors"`
	RecentPatients []*identity.PatientProfile `json:"recent_patients"`
}

type Service struct {
	repos        *identity.Repos
	appointments appointment.Repository
	discharges   discharge.Repository
}

func NewService(repos *identity.Repos, appointments appointment.Repository, discharges discharge.Repository) *Service {
	return &Service{repos: repos, appointments: appointments, discharges: discharges}
}

func flag(v bool) *bool { return &v }

func (s *Service) Patient(ctx context.Context, actor *identity.Actor) (*PatientView, error) {
	if _, err := access.Require(actor, access.CapPatient); err != nil {
		return nil, err
	}
	v := &PatientView{Patient: actor.Patient}
	if id := actor.Patient.AssignedDoctorID; id != nil {
		d, err := s.repos.Doctors.GetByAccountID(ctx, *id)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, fmt.Errorf("load assigned doctor: %w", err)
		}
		v.Doctor = d
	}

	pid := actor.ID()
	var err error
	if v.Appointments, _, err = s.appointments.List(ctx, appointment.Filter{PatientID: &pid}, recentLimit, 0); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	v.Discharge, err = s.discharges.LatestForPatient(ctx, pid)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, fmt.Errorf("load discharge: %w", err)
	}
	return v, nil
}

func (s *Service) Doctor(ctx context.Context, actor *identity.Actor) (*DoctorView, error) {
	if _, err := access.Require(actor, access.CapDoctor); err != nil {
		return nil, err
	}
	id := actor.ID()
	v := &DoctorView{Doctor: actor.Doctor}

	var err error
	if _, v.PatientCount, err = s.repos.Patients.List(ctx, identity.PatientFilter{Approved: flag(true), AssignedDoctorID: &id}, 0, 0); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	if _, v.AppointmentCount, err = s.appointments.List(ctx, appointment.Filter{DoctorID: &id, Accepted: flag(true)}, 0, 0); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	if v.Recent, v.PendingAppointments, err = s.appointments.List(ctx, appointment.Filter{DoctorID: &id, Accepted: flag(false)}, recentLimit, 0); err != nil {
		return nil, fmt.Errorf("list pending appointments: %w", err)
	}
	return v, nil
}

// DoctorPatients lists the approved patients assigned to the acting doctor.
func (s *Service) DoctorPatients(ctx context.Context, actor *identity.Actor, limit, offset int) ([]*identity.PatientProfile, int, error) {
	if _, err := access.Require(actor, access.CapDoctor); err != nil {
		return nil, 0, err
	}
	id := actor.ID()
	return s.repos.Patients.List(ctx, identity.PatientFilter{Approved: flag(true), AssignedDoctorID: &id}, limit, offset)
}

func (s *Service) Admin(ctx context.Context, actor *identity.Actor) (*AdminView, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, err
	}
	v := &AdminView{}
	var err error

	if v.RecentDoctors, v.Doctors.Approved, err = s.repos.Doctors.List(ctx, identity.DoctorFilter{Approved: flag(true)}, recentLimit, 0); err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if _, v.Doctors.Pending, err = s.repos.Doctors.List(ctx, identity.DoctorFilter{Approved: flag(false)}, 0, 0); err != nil {
		return nil, fmt.Errorf("count pending doctors: %w", err)
	}
	if v.RecentPatients, v.Patients.Approved, err = s.repos.Patients.List(ctx, identity.PatientFilter{Approved: flag(true)}, recentLimit, 0); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	if _, v.Patients.Pending, err = s.repos.Patients.List(ctx, identity.PatientFilter{Approved: flag(false)}, 0, 0); err != nil {
		return nil, fmt.Errorf("count pending patients: %w", err)
	}
	if _, v.Appointments.Approved, err = s.appointments.List(ctx, appointment.Filter{Status: flag(true)}, 0, 0); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	if _, v.Appointments.Pending, err = s.appointments.List(ctx, appointment.Filter{Status: flag(false)}, 0, 0); err != nil {
		return nil, fmt.Errorf("count pending appointments: %w", err)
	}
	return v, nil
}

func (s *Service) Doctors(ctx context.Context, actor *identity.Actor, approved *bool, limit, offset int) ([]*identity.DoctorProfile, int, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, 0, err
	}
	return s.repos.Doctors.List(ctx, identity.DoctorFilter{Approved: approved}, limit, offset)
}

func (s *Service) Patients(ctx context.Context, actor *identity.Actor, approved *bool, doctorID *uuid.UUID, limit, offset int) ([]*identity.PatientProfile, int, error) {
	if _, err := access.Require(actor, access.CapAdmin); err != nil {
		return nil, 0, err
	}
	return s.repos.Patients.List(ctx, identity.PatientFilter{Approved: approved, AssignedDoctorID: doctorID}, limit, offset)
}
