// Package discharge records the final bill of a patient's stay. A discharge
// is written once and never updated.
package discharge

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Het-thummar/hospital-management/internal/domain/identity"
)

// Details maps to the discharge_details table. Amounts are whole currency
// units; RoomCharge is the stored total for the stay, not the daily rate.
type Details struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName        string    `db:"patient_name" json:"patient_name"`
	AssignedDoctorName string    `db:"assigned_doctor_name" json:"assigned_doctor_name"`
	Address            string    `db:"address" json:"address"`
	Mobile             string    `db:"mobile" json:"mobile"`
	Symptoms           string    `db:"symptoms" json:"symptoms"`
	AdmitDate          time.Time `db:"admit_date" json:"admit_date"`
	ReleaseDate        time.Time `db:"release_date" json:"release_date"`
	DaySpent           int       `db:"day_spent" json:"day_spent"`
	RoomCharge         int64     `db:"room_charge" json:"room_charge"`
	MedicineCost       int64     `db:"medicine_cost" json:"medicine_cost"`
	DoctorFee          int64     `db:"doctor_fee" json:"doctor_fee"`
	OtherCharge        int64     `db:"other_charge" json:"other_charge"`
	Total              int64     `db:"total" json:"total"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Charges is what the admin enters at discharge.
type Charges struct {
	RoomChargePerDay int64
	MedicineCost     int64
	DoctorFee        int64
	OtherCharge      int64
}

// MaxChargeAmount caps each entered charge. time.Duration limits a stay to
// under 110000 days, so the capped room charge times the stay plus the other
// capped charges fits in an int64.
const MaxChargeAmount int64 = 1_000_000_000

// DaysBetween counts calendar days from admit to release. A same-day release
// counts as one day.
func DaysBetween(admit, release time.Time) int {
	a := time.Date(admit.Year(), admit.Month(), admit.Day(), 0, 0, 0, 0, time.UTC)
	r := time.Date(release.Year(), release.Month(), release.Day(), 0, 0, 0, 0, time.UTC)
	days := int(r.Sub(a).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Bill builds the discharge for p released on release. Field errors are
// returned instead of a record when the charges or dates are invalid.
func Bill(p *identity.PatientProfile, doctorName string, c Charges, release time.Time) (*Details, map[string]string) {
	fields := map[string]string{}
	for name, v := range map[string]int64{
		"room_charge":   c.RoomChargePerDay,
		"medicine_cost": c.MedicineCost,
		"doctor_fee":    c.DoctorFee,
		"other_charge":  c.OtherCharge,
	} {
		switch {
		case v < 0:
			fields[name] = "must not be negative"
		case v > MaxChargeAmount:
			fields[name] = fmt.Sprintf("must not exceed %d", MaxChargeAmount)
		}
	}
	release = time.Date(release.Year(), release.Month(), release.Day(), 0, 0, 0, 0, time.UTC)
	if release.Before(p.AdmitDate) {
		fields["release_date"] = "release date is before the admit date"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	days := DaysBetween(p.AdmitDate, release)
	d := &Details{
		PatientID:          p.AccountID,
		PatientName:        p.Name,
		AssignedDoctorName: doctorName,
		Address:            p.Address,
		Mobile:             p.Mobile,
		Symptoms:           p.Symptoms,
		AdmitDate:          p.AdmitDate,
		ReleaseDate:        release,
		DaySpent:           days,
		RoomCharge:         c.RoomChargePerDay * int64(days),
		MedicineCost:       c.MedicineCost,
		DoctorFee:          c.DoctorFee,
		OtherCharge:        c.OtherCharge,
	}
	d.Total = d.RoomCharge + d.MedicineCost + d.DoctorFee + d.OtherCharge
	return d, nil
}
