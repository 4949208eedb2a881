package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Het-thummar/hospital-management/internal/platform/auth"
	"github.com/Het-thummar/hospital-management/internal/platform/db"
	"github.com/Het-thummar/hospital-management/internal/platform/telemetry"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// AccountInput is the base signup form shared by every role.
type AccountInput struct {
	FirstName       string
	LastName        string
	Username        string
	Password        string
	ConfirmPassword string
}

type DoctorInput struct {
	Department string
	Mobile     string
	Address    string
	Status     bool
	ProfilePic string
}

type PatientInput struct {
	Address          string
	Mobile           string
	Symptoms         string
	Status           bool
	AssignedDoctorID *uuid.UUID
	ProfilePic       string
}

type Service struct {
	repos   *Repos
	tx      db.Transactor
	metrics telemetry.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repos *Repos, tx db.Transactor, metrics telemetry.Recorder, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NopTransactor{}
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Service{
		repos:   repos,
		tx:      tx,
		metrics: metrics,
		logger:  logger.With().Str("component", "identity").Logger(),
		now:     time.Now,
	}
}

func validateAccount(in AccountInput) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(in.Username) == "" {
		fields["username"] = "this field is required"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["first_name"] = "this field is required"
	}
	switch {
	case utf8.RuneCountInString(in.Password) < auth.MinPasswordLength:
		fields["password"] = "password too short"
	case len(in.Password) > auth.MaxPasswordBytes:
		fields["password"] = "password too long"
	case in.Password != in.ConfirmPassword:
		fields["confirm_password"] = "passwords don't match"
	}
	return fields
}

func validateMobile(fields map[string]string, mobile string) {
	if !mobilePattern.MatchString(mobile) {
		fields["mobile"] = "mobile must be 10 digits"
	}
}

func fieldsErr(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apperr.ValidationFields(fields)
}

// RegisterAccount creates an account without a role. The password is stored
// only as a bcrypt hash.
func (s *Service) RegisterAccount(ctx context.Context, in AccountInput) (*Account, error) {
	if err := fieldsErr(validateAccount(in)); err != nil {
		return nil, err
	}
	return s.createAccount(ctx, in, false)
}

func (s *Service) createAccount(ctx context.Context, in AccountInput, superuser bool) (*Account, error) {
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperr.FieldValidation("password", "password too long")
	}
	if err != nil {
		return nil, err
	}
	a := &Account{
		Username:     strings.TrimSpace(in.Username),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		IsSuperuser:  superuser,
		Role:         RoleNone,
	}
	if err := s.repos.Accounts.Create(ctx, a); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, apperr.FieldValidation("username", "username taken")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *Service) assignRole(ctx context.Context, accountID uuid.UUID, role Role) error {
	err := s.repos.Accounts.AssignRole(ctx, accountID, role)
	if errors.Is(err, ErrRoleAssigned) {
		return apperr.Validation("account already has a role")
	}
	return err
}

// RegisterDoctor attaches a pending doctor profile to an account.
func (s *Service) RegisterDoctor(ctx context.Context, accountID uuid.UUID, in DoctorInput) (*DoctorProfile, error) {
	fields := map[string]string{}
	validateMobile(fields, in.Mobile)
	if !IsValidDepartment(in.Department) {
		fields["department"] = "unknown department"
	}
	if err := fieldsErr(fields); err != nil {
		return nil, err
	}

	d := &DoctorProfile{
		AccountID:  accountID,
		Department: in.Department,
		Mobile:     in.Mobile,
		Address:    strings.TrimSpace(in.Address),
		Status:     in.Status,
		ProfilePic: in.ProfilePic,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.assignRole(ctx, accountID, RoleDoctor); err != nil {
			return err
		}
		return s.repos.Doctors.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("doctor", "registered")
	return d, nil
}

// RegisterPatient attaches an unapproved patient profile to an account. An
// assigned doctor must be active and approved at this point.
func (s *Service) RegisterPatient(ctx context.Context, accountID uuid.UUID, in PatientInput) (*PatientProfile, error) {
	fields := map[string]string{}
	validateMobile(fields, in.Mobile)
	if in.AssignedDoctorID != nil {
		doc, err := s.repos.Doctors.GetByAccountID(ctx, *in.AssignedDoctorID)
		switch {
		case apperr.IsNotFound(err):
			fields["assigned_doctor_id"] = "select a valid doctor"
		case err != nil:
			return nil, err
		case !doc.Bookable():
			fields["assigned_doctor_id"] = "doctor is not available"
		}
	}
	if err := fieldsErr(fields); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &PatientProfile{
		AccountID:        accountID,
		Mobile:           in.Mobile,
		Address:          strings.TrimSpace(in.Address),
		Symptoms:         strings.TrimSpace(in.Symptoms),
		Status:           in.Status,
		AssignedDoctorID: in.AssignedDoctorID,
		AdmitDate:        time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		ProfilePic:       in.ProfilePic,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.assignRole(ctx, accountID, RolePatient); err != nil {
			return err
		}
		return s.repos.Patients.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("patient", "registered")
	return p, nil
}

// RegisterAdmin records a pending admin approval. The account gains no
// privilege until a superuser approves it.
func (s *Service) RegisterAdmin(ctx context.Context, accountID uuid.UUID) (*AdminApproval, error) {
	m := &AdminApproval{AccountID: accountID}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.assignRole(ctx, accountID, RoleAdmin); err != nil {
			return err
		}
		return s.repos.Admins.Create(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransition("admin", "registered")
	return m, nil
}

// SignupDoctor creates the account and doctor profile in one transaction.
// Field errors from both forms are reported together.
func (s *Service) SignupDoctor(ctx context.Context, acct AccountInput, in DoctorInput) (*Account, *DoctorProfile, error) {
	fields := validateAccount(acct)
	validateMobile(fields, in.Mobile)
	if !IsValidDepartment(in.Department) {
		fields["department"] = "unknown department"
	}
	if err := fieldsErr(fields); err != nil {
		return nil, nil, err
	}

	var (
		a *Account
		d *DoctorProfile
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.createAccount(ctx, acct, false); err != nil {
			return err
		}
		d, err = s.RegisterDoctor(ctx, a.ID, in)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	a.Role = RoleDoctor
	s.logger.Info().Str("account_id", a.ID.String()).Str("department", d.Department).Msg("doctor signed up")
	return a, d, nil
}

func (s *Service) SignupPatient(ctx context.Context, acct AccountInput, in PatientInput) (*Account, *PatientProfile, error) {
	fields := validateAccount(acct)
	validateMobile(fields, in.Mobile)
	if err := fieldsErr(fields); err != nil {
		return nil, nil, err
	}

	var (
		a *Account
		p *PatientProfile
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.createAccount(ctx, acct, false); err != nil {
			return err
		}
		p, err = s.RegisterPatient(ctx, a.ID, in)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	a.Role = RolePatient
	s.logger.Info().Str("account_id", a.ID.String()).Msg("patient signed up")
	return a, p, nil
}

func (s *Service) SignupAdmin(ctx context.Context, acct AccountInput) (*Account, *AdminApproval, error) {
	if err := fieldsErr(validateAccount(acct)); err != nil {
		return nil, nil, err
	}

	var (
		a *Account
		m *AdminApproval
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if a, err = s.createAccount(ctx, acct, false); err != nil {
			return err
		}
		m, err = s.RegisterAdmin(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	a.Role = RoleAdmin
	s.logger.Info().Str("account_id", a.ID.String()).Msg("admin signed up, awaiting approval")
	return a, m, nil
}

// CreateSuperuser creates a root account outside the approval workflow.
func (s *Service) CreateSuperuser(ctx context.Context, in AccountInput) (*Account, error) {
	if err := fieldsErr(validateAccount(in)); err != nil {
		return nil, err
	}
	a, err := s.createAccount(ctx, in, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("account_id", a.ID.String()).Str("username", a.Username).Msg("superuser created")
	return a, nil
}

// Login verifies credentials for the given login page. The account's role
// must match the page; superusers may use the admin login.
func (s *Service) Login(ctx context.Context, role Role, username, password string) (*Actor, error) {
	fail := func(outcome string, err error) (*Actor, error) {
		s.metrics.RecordLogin(string(role), outcome)
		return nil, err
	}

	a, err := s.repos.Accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if apperr.IsNotFound(err) {
		return fail("invalid_credentials", apperr.Validation("invalid username or password"))
	}
	if err != nil {
		return fail("error", err)
	}
	if err := auth.CheckPassword(a.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return fail("invalid_credentials", apperr.Validation("invalid username or password"))
		}
		return fail("error", err)
	}
	if a.Role != role && !(role == RoleAdmin && a.IsSuperuser) {
		return fail("wrong_role", apperr.Validation(fmt.Sprintf("this account is not registered as %s", role)))
	}

	actor, err := s.ResolveActor(ctx, a.ID)
	if err != nil {
		return fail("error", err)
	}
	s.metrics.RecordLogin(string(role), "success")
	s.logger.Info().Str("account_id", a.ID.String()).Str("role", string(role)).Msg("login")
	return actor, nil
}

// ResolveActor loads the account and the role profile matching its role.
func (s *Service) ResolveActor(ctx context.Context, accountID uuid.UUID) (*Actor, error) {
	a, err := s.repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	actor := &Actor{Account: a}

	switch a.Role {
	case RoleDoctor:
		if actor.Doctor, err = s.repos.Doctors.GetByAccountID(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("load doctor profile: %w", err)
		}
	case RolePatient:
		if actor.Patient, err = s.repos.Patients.GetByAccountID(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("load patient profile: %w", err)
		}
	case RoleAdmin:
		if actor.Admin, err = s.repos.Admins.GetByAccountID(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("load admin approval: %w", err)
		}
	}

	if actor.InAdminGroup, err = s.repos.Groups.IsMember(ctx, AdminGroup, a.ID); err != nil {
		return nil, fmt.Errorf("check admin group: %w", err)
	}
	return actor, nil
}

// BookableDoctors lists active, approved doctors for the signup and booking
// forms.
func (s *Service) BookableDoctors(ctx context.Context) ([]*DoctorProfile, error) {
	docs, _, err := s.repos.Doctors.List(ctx, DoctorFilter{BookableOnly: true}, 500, 0)
	return docs, err
}
