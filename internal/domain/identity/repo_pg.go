package identity

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

// NewPGRepos returns the PostgreSQL implementations of the identity repositories.
func NewPGRepos(pool *pgxpool.Pool) *Repos {
	return &Repos{
		Accounts: &accountRepoPG{pool: pool},
		Doctors:  &doctorRepoPG{pool: pool},
		Patients: &patientRepoPG{pool: pool},
		Admins:   &adminRepoPG{pool: pool},
		Groups:   &groupRepoPG{pool: pool},
	}
}

func notFound(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	return err
}

// -- Accounts --

type accountRepoPG struct {
	pool *pgxpool.Pool
}

const accountColumns = `id, username, first_name, last_name, password_hash, is_superuser, role, created_at`

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	if a.Role == "" {
		a.Role = RoleNone
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO accounts (id, username, first_name, last_name, password_hash, is_superuser, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		a.ID, a.Username, a.FirstName, a.LastName, a.PasswordHash, a.IsSuperuser, a.Role,
	).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err, "accounts_username_key") {
		return ErrUsernameTaken
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
}

func (r *accountRepoPG) AssignRole(ctx context.Context, id uuid.UUID, role Role) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE accounts SET role = $2 WHERE id = $1 AND role = 'none'`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrRoleAssigned
	}
	return nil
}

func (r *accountRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account")
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.PasswordHash, &a.IsSuperuser, &a.Role, &a.CreatedAt); err != nil {
		return nil, notFound(err, "account")
	}
	return &a, nil
}

// -- Doctors --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

const doctorColumns = `d.account_id, trim(a.first_name || ' ' || a.last_name), d.department, d.mobile, d.address,
	d.status, d.is_approved, d.approved_by, d.approved_date, d.profile_pic, d.created_at`

const doctorFrom = ` FROM doctor_profiles d JOIN accounts a ON a.id = d.account_id`

func (r *doctorRepoPG) Create(ctx context.Context, d *DoctorProfile) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctor_profiles (account_id, department, mobile, address, status, is_approved, profile_pic)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		d.AccountID, d.Department, d.Mobile, d.Address, d.Status, d.IsApproved, d.ProfilePic,
	).Scan(&d.CreatedAt)
}

func (r *doctorRepoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*DoctorProfile, error) {
	return scanDoctor(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorColumns+doctorFrom+` WHERE d.account_id = $1`, accountID))
}

func (r *doctorRepoPG) SetApproval(ctx context.Context, accountID, approvedBy uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE doctor_profiles SET is_approved = TRUE, approved_by = $2, approved_date = $3
		WHERE account_id = $1`, accountID, approvedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor")
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*DoctorProfile, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Approved != nil {
		where += fmt.Sprintf(` AND d.is_approved = $%d`, idx)
		args = append(args, *f.Approved)
		idx++
	}
	if f.BookableOnly {
		where += ` AND d.status AND d.is_approved`
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*)`+doctorFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + doctorColumns + doctorFrom + where +
		fmt.Sprintf(` ORDER BY a.first_name, a.last_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*DoctorProfile
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	var d DoctorProfile
	err := row.Scan(&d.AccountID, &d.Name, &d.Department, &d.Mobile, &d.Address,
		&d.Status, &d.IsApproved, &d.ApprovedBy, &d.ApprovedDate, &d.ProfilePic, &d.CreatedAt)
	if err != nil {
		return nil, notFound(err, "doctor")
	}
	return &d, nil
}

// -- Patients --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

const patientColumns = `p.account_id, trim(a.first_name || ' ' || a.last_name), p.mobile, p.address, p.symptoms,
	p.status, p.assigned_doctor_id, p.is_approved, p.approved_by, p.approved_at, p.admit_date, p.profile_pic, p.created_at`

const patientFrom = ` FROM patient_profiles p JOIN accounts a ON a.id = p.account_id`

func (r *patientRepoPG) Create(ctx context.Context, p *PatientProfile) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient_profiles (account_id, mobile, address, symptoms, status, assigned_doctor_id, is_approved, admit_date, profile_pic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		p.AccountID, p.Mobile, p.Address, p.Symptoms, p.Status, p.AssignedDoctorID, p.IsApproved, p.AdmitDate, p.ProfilePic,
	).Scan(&p.CreatedAt)
}

func (r *patientRepoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*PatientProfile, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientColumns+patientFrom+` WHERE p.account_id = $1`, accountID))
}

func (r *patientRepoPG) SetApproval(ctx context.Context, accountID, approvedBy uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient_profiles SET is_approved = TRUE, approved_by = $2, approved_at = $3
		WHERE account_id = $1`, accountID, approvedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, limit, offset int) ([]*PatientProfile, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Approved != nil {
		where += fmt.Sprintf(` AND p.is_approved = $%d`, idx)
		args = append(args, *f.Approved)
		idx++
	}
	if f.AssignedDoctorID != nil {
		where += fmt.Sprintf(` AND p.assigned_doctor_id = $%d`, idx)
		args = append(args, *f.AssignedDoctorID)
		idx++
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*)`+patientFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientColumns + patientFrom + where +
		fmt.Sprintf(` ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*PatientProfile
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanPatient(row pgx.Row) (*PatientProfile, error) {
	var p PatientProfile
	err := row.Scan(&p.AccountID, &p.Name, &p.Mobile, &p.Address, &p.Symptoms,
		&p.Status, &p.AssignedDoctorID, &p.IsApproved, &p.ApprovedBy, &p.ApprovedAt, &p.AdmitDate, &p.ProfilePic, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, "patient")
	}
	return &p, nil
}

// -- Admin approvals --

type adminRepoPG struct {
	pool *pgxpool.Pool
}

const adminColumns = `m.id, m.account_id, trim(a.first_name || ' ' || a.last_name), a.username,
	m.is_approved, m.approved_by, m.created_date, m.approved_date`

const adminFrom = ` FROM admin_approvals m JOIN accounts a ON a.id = m.account_id`

func (r *adminRepoPG) Create(ctx context.Context, m *AdminApproval) error {
	m.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO admin_approvals (id, account_id, is_approved)
		VALUES ($1, $2, $3)
		RETURNING created_date`,
		m.ID, m.AccountID, m.IsApproved,
	).Scan(&m.CreatedDate)
}

func (r *adminRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AdminApproval, error) {
	return scanAdmin(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+adminColumns+adminFrom+` WHERE m.id = $1`, id))
}

func (r *adminRepoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*AdminApproval, error) {
	return scanAdmin(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+adminColumns+adminFrom+` WHERE m.account_id = $1`, accountID))
}

func (r *adminRepoPG) SetApproval(ctx context.Context, id, approvedBy uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE admin_approvals SET is_approved = TRUE, approved_by = $2, approved_date = $3
		WHERE id = $1`, id, approvedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("admin approval")
	}
	return nil
}

func (r *adminRepoPG) List(ctx context.Context, approved *bool, limit, offset int) ([]*AdminApproval, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if approved != nil {
		where += fmt.Sprintf(` AND m.is_approved = $%d`, idx)
		args = append(args, *approved)
		idx++
	}

	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*)`+adminFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + adminColumns + adminFrom + where +
		fmt.Sprintf(` ORDER BY m.created_date LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*AdminApproval
	for rows.Next() {
		m, err := scanAdmin(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func scanAdmin(row pgx.Row) (*AdminApproval, error) {
	var m AdminApproval
	err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.Username, &m.IsApproved, &m.ApprovedBy, &m.CreatedDate, &m.ApprovedDate)
	if err != nil {
		return nil, notFound(err, "admin approval")
	}
	return &m, nil
}

// -- Groups --

type groupRepoPG struct {
	pool *pgxpool.Pool
}

func (r *groupRepoPG) AddMember(ctx context.Context, group string, accountID uuid.UUID) error {
	q := db.Conn(ctx, r.pool)
	var groupID uuid.UUID
	err := q.QueryRow(ctx, `
		INSERT INTO groups (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, uuid.New(), group).Scan(&groupID)
	if err != nil {
		return fmt.Errorf("ensure group %q: %w", group, err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO group_members (group_id, account_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, groupID, accountID)
	return err
}

func (r *groupRepoPG) IsMember(ctx context.Context, group string, accountID uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM group_members gm JOIN groups g ON g.id = gm.group_id
			WHERE g.name = $1 AND gm.account_id = $2
		)`, group, accountID).Scan(&ok)
	return ok, err
}
