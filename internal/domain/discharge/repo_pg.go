package discharge

import (
	"context"
	"errors"

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

const columns = `id, patient_id, patient_name, assigned_doctor_name, address, mobile, symptoms,
	admit_date, release_date, day_spent, room_charge, medicine_cost, doctor_fee, other_charge, total, created_at`

func (r *repoPG) Create(ctx context.Context, d *Details) error {
	d.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO discharge_details (id, patient_id, patient_name, assigned_doctor_name, address, mobile, symptoms,
			admit_date, release_date, day_spent, room_charge, medicine_cost, doctor_fee, other_charge, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`,
		d.ID, d.PatientID, d.PatientName, d.AssignedDoctorName, d.Address, d.Mobile, d.Symptoms,
		d.AdmitDate, d.ReleaseDate, d.DaySpent, d.RoomCharge, d.MedicineCost, d.DoctorFee, d.OtherCharge, d.Total,
	).Scan(&d.CreatedAt)
	if db.IsUniqueViolation(err, "discharge_details_patient_admission_key") {
		return ErrAlreadyDischarged
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Details, error) {
	return scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+columns+` FROM discharge_details WHERE id = $1`, id))
}

func (r *repoPG) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Details, error) {
	return scan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns+` FROM discharge_details WHERE patient_id = $1 ORDER BY release_date DESC, created_at DESC LIMIT 1`,
		patientID))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Details, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM discharge_details`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+columns+` FROM discharge_details ORDER BY release_date DESC, created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Details
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func scan(row pgx.Row) (*Details, error) {
	var d Details
	err := row.Scan(&d.ID, &d.PatientID, &d.PatientName, &d.AssignedDoctorName, &d.Address, &d.Mobile, &d.Symptoms,
		&d.AdmitDate, &d.ReleaseDate, &d.DaySpent, &d.RoomCharge, &d.MedicineCost, &d.DoctorFee, &d.OtherCharge, &d.Total,
		&d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("discharge")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
