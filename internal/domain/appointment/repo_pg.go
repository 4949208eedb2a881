package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Het-thummar/hospital-management/internal/platform/db"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const columns = `id, patient_id, doctor_id, patient_name, doctor_name, description,
	status, is_accepted_by_doctor, created_date,
	appointment_date, appointment_time, doctor_scheduled_date, doctor_scheduled_time, accepted_date`

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.CreatedDate.IsZero() {
		a.CreatedDate = time.Now().UTC()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.PatientID, a.DoctorID, a.PatientName, a.DoctorName, a.Description,
		a.Status, a.IsAcceptedByDoctor, a.CreatedDate,
		a.AppointmentDate, a.AppointmentTime, a.DoctorScheduledDate, a.DoctorScheduledTime, a.AcceptedDate,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+columns+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) exec(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *repoPG) Accept(ctx context.Context, id uuid.UUID, slot Slot, at time.Time) error {
	return r.exec(ctx, `
		UPDATE appointments SET is_accepted_by_doctor = TRUE,
			doctor_scheduled_date = $2, doctor_scheduled_time = $3, accepted_date = $4
		WHERE id = $1`, id, slot.Date, slot.Clock, at)
}

func (r *repoPG) Approve(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE appointments SET status = TRUE WHERE id = $1`, id)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, v)
		idx++
	}
	if f.PatientID != nil {
		add(` AND patient_id = $%d`, *f.PatientID)
	}
	if f.DoctorID != nil {
		add(` AND doctor_id = $%d`, *f.DoctorID)
	}
	if f.Status != nil {
		add(` AND status = $%d`, *f.Status)
	}
	if f.Accepted != nil {
		add(` AND is_accepted_by_doctor = $%d`, *f.Accepted)
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY created_date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.PatientName, &a.DoctorName, &a.Description,
		&a.Status, &a.IsAcceptedByDoctor, &a.CreatedDate,
		&a.AppointmentDate, &a.AppointmentTime, &a.DoctorScheduledDate, &a.DoctorScheduledTime, &a.AcceptedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment")
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
