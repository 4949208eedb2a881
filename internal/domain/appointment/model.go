package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Het-thummar/hospital-management/internal/domain/identity"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Appointment maps to the appointments table. PatientID and DoctorID are
// account ids without foreign keys; the names are snapshots taken at creation
// and are never synced with later profile edits.
//
// Status is the admin approval track and IsAcceptedByDoctor the doctor track.
// The two are independent.
type Appointment struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	PatientID           uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID            uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientName         string     `db:"patient_name" json:"patient_name"`
	DoctorName          string     `db:"doctor_name" json:"doctor_name"`
	Description         string     `db:"description" json:"description"`
	Status              bool       `db:"status" json:"status"`
	IsAcceptedByDoctor  bool       `db:"is_accepted_by_doctor" json:"is_accepted_by_doctor"`
	CreatedDate         time.Time  `db:"created_date" json:"created_date"`
	AppointmentDate     *time.Time `db:"appointment_date" json:"appointment_date,omitempty"`
	AppointmentTime     *string    `db:"appointment_time" json:"appointment_time,omitempty"`
	DoctorScheduledDate *time.Time `db:"doctor_scheduled_date" json:"doctor_scheduled_date,omitempty"`
	DoctorScheduledTime *string    `db:"doctor_scheduled_time" json:"doctor_scheduled_time,omitempty"`
	AcceptedDate        *time.Time `db:"accepted_date" json:"accepted_date,omitempty"`
}

// Slot is a calendar date plus a wall-clock time in HH:MM.
type Slot struct {
	Date  time.Time
	Clock string
}

// ParseSlot parses a date (YYYY-MM-DD) and time (HH:MM or HH:MM:SS). Field
// errors are keyed by dateField and timeField.
func ParseSlot(date, clock, dateField, timeField string) (*Slot, map[string]string) {
	fields := map[string]string{}
	var s Slot

	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" {
		fields[dateField] = "this field is required"
	} else if d, err := time.Parse(DateLayout, date); err != nil {
		fields[dateField] = "must use the format YYYY-MM-DD"
	} else {
		s.Date = d
	}

	if clock == "" {
		fields[timeField] = "this field is required"
	} else if c, err := parseClock(clock); err != nil {
		fields[timeField] = "must use the format HH:MM"
	} else {
		s.Clock = c
	}

	if len(fields) > 0 {
		return nil, fields
	}
	return &s, nil
}

func parseClock(v string) (string, error) {
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		if t, err = time.Parse("15:04:05", v); err != nil {
			return "", err
		}
	}
	return t.Format(ClockLayout), nil
}

// Scheduled builds a pre-approved appointment created together with a patient
// approval.
func Scheduled(p *identity.PatientProfile, d *identity.DoctorProfile, slot Slot, now time.Time) *Appointment {
	date := slot.Date
	clock := slot.Clock
	return &Appointment{
		PatientID:       p.AccountID,
		DoctorID:        d.AccountID,
		PatientName:     p.Name,
		DoctorName:      d.Name,
		Description:     p.Symptoms,
		Status:          true,
		CreatedDate:     now,
		AppointmentDate: &date,
		AppointmentTime: &clock,
	}
}
