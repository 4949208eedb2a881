package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Het-thummar/hospital-management/internal/platform/auth"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

func newTestService() (*Service, *Repos) {
	repos := NewMemoryRepos()
	return NewService(repos, nil, nil, zerolog.Nop()), repos
}

func accountIn(username string) AccountInput {
	return AccountInput{
		FirstName:       "Test",
		LastName:        "User",
		Username:        username,
		Password:        "s3cret-pass",
		ConfirmPassword: "s3cret-pass",
	}
}

func fieldErr(t *testing.T, err error, field string) string {
	t.Helper()
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected apperr, got %v", err)
	require.Equal(t, apperr.KindValidation, ae.Kind)
	return ae.Fields[field]
}

func TestRegisterAccount_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	in := accountIn("alice")
	in.ConfirmPassword = "different-pass"
	_, err := svc.RegisterAccount(ctx, in)
	assert.Equal(t, "passwords don't match", fieldErr(t, err, "confirm_password"))

	in = accountIn("alice")
	in.Password, in.ConfirmPassword = "short", "short"
	_, err = svc.RegisterAccount(ctx, in)
	assert.Equal(t, "password too short", fieldErr(t, err, "password"))

	_, err = svc.RegisterAccount(ctx, accountIn("alice"))
	require.NoError(t, err)
	_, err = svc.RegisterAccount(ctx, accountIn("alice"))
	assert.Equal(t, "username taken", fieldErr(t, err, "username"))
}

func TestRegisterAccount_PasswordLength(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	in := accountIn("long")
	in.Password = strings.Repeat("a", auth.MaxPasswordBytes+1)
	in.ConfirmPassword = in.Password
	_, err := svc.RegisterAccount(ctx, in)
	assert.Equal(t, "password too long", fieldErr(t, err, "password"))

	// Eight characters but sixteen bytes: accepted.
	in = accountIn("umlaut8")
	in.Password = strings.Repeat("ä", 8)
	in.ConfirmPassword = in.Password
	_, err = svc.RegisterAccount(ctx, in)
	require.NoError(t, err)

	// Four characters but eight bytes: too short.
	in = accountIn("umlaut4")
	in.Password = "ääää"
	in.ConfirmPassword = in.Password
	_, err = svc.RegisterAccount(ctx, in)
	assert.Equal(t, "password too short", fieldErr(t, err, "password"))

	// 25 three-byte characters fit the character rule but not bcrypt.
	in = accountIn("wide")
	in.Password = strings.Repeat("€", 25)
	in.ConfirmPassword = in.Password
	_, err = svc.CreateSuperuser(ctx, in)
	assert.Equal(t, "password too long", fieldErr(t, err, "password"))
}

func TestRegisterAccount_HashesPassword(t *testing.T) {
	svc, repos := newTestService()
	a, err := svc.RegisterAccount(context.Background(), accountIn("bob"))
	require.NoError(t, err)

	stored, err := repos.Accounts.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)
	assert.NoError(t, auth.CheckPassword(stored.PasswordHash, "s3cret-pass"))
	assert.Equal(t, RoleNone, stored.Role)
}

func TestSignupDoctor(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	a, d, err := svc.SignupDoctor(ctx, accountIn("dr_lee"), DoctorInput{
		Department: "Cardiology",
		Mobile:     "1234567890",
		Address:    "12 Main St",
		Status:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, a.Role)
	assert.False(t, d.IsApproved)
	assert.Nil(t, d.ApprovedBy)

	_, total, err := repos.Doctors.List(ctx, DoctorFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	actor, err := svc.ResolveActor(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, KindDoctor, RoleOf(actor))
	assert.Nil(t, actor.Patient)
	assert.Nil(t, actor.Admin)
}

func TestSignupDoctor_BadMobile(t *testing.T) {
	svc, repos := newTestService()
	_, _, err := svc.SignupDoctor(context.Background(), accountIn("dr_short"), DoctorInput{
		Department: "Cardiology",
		Mobile:     "12345",
	})
	assert.Equal(t, "mobile must be 10 digits", fieldErr(t, err, "mobile"))

	_, err = repos.Accounts.GetByUsername(context.Background(), "dr_short")
	assert.True(t, apperr.IsNotFound(err), "no account should be created")
}

func TestSignupDoctor_UnknownDepartment(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.SignupDoctor(context.Background(), accountIn("dr_x"), DoctorInput{
		Department: "Astrology",
		Mobile:     "1234567890",
	})
	assert.Equal(t, "unknown department", fieldErr(t, err, "department"))
}

func TestSignupPatient_DefaultsUnapproved(t *testing.T) {
	svc, _ := newTestService()
	a, p, err := svc.SignupPatient(context.Background(), accountIn("p1"), PatientInput{
		Address:  "1 Elm St",
		Mobile:   "9876543210",
		Symptoms: "cough",
		Status:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, RolePatient, a.Role)
	assert.False(t, p.IsApproved)
	assert.False(t, p.AdmitDate.IsZero())
}

func TestSignupPatient_AssignedDoctorMustBeBookable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	doc, _, err := svc.SignupDoctor(ctx, accountIn("dr_pending"), DoctorInput{Department: "Cardiology", Mobile: "1234567890", Status: true})
	require.NoError(t, err)

	_, _, err = svc.SignupPatient(ctx, accountIn("p2"), PatientInput{
		Mobile:           "9876543210",
		AssignedDoctorID: &doc.ID,
	})
	assert.Equal(t, "doctor is not available", fieldErr(t, err, "assigned_doctor_id"))

	unknown := uuid.New()
	_, _, err = svc.SignupPatient(ctx, accountIn("p3"), PatientInput{
		Mobile:           "9876543210",
		AssignedDoctorID: &unknown,
	})
	assert.Equal(t, "select a valid doctor", fieldErr(t, err, "assigned_doctor_id"))
}

func TestSignupAdmin_Pending(t *testing.T) {
	svc, _ := newTestService()
	a, m, err := svc.SignupAdmin(context.Background(), accountIn("admin1"))
	require.NoError(t, err)
	assert.False(t, m.IsApproved)
	assert.Equal(t, a.ID, m.AccountID)

	actor, err := svc.ResolveActor(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, KindAdminPending, RoleOf(actor))
}

func TestSecondRoleRejected(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	a, _, err := svc.SignupAdmin(ctx, accountIn("both"))
	require.NoError(t, err)

	_, err = svc.RegisterDoctor(ctx, a.ID, DoctorInput{Department: "Cardiology", Mobile: "1234567890"})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "account already has a role")

	_, err = repos.Doctors.GetByAccountID(ctx, a.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, _, err := svc.SignupPatient(ctx, accountIn("pat"), PatientInput{Mobile: "9876543210"})
	require.NoError(t, err)

	actor, err := svc.Login(ctx, RolePatient, "pat", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, KindPatient, RoleOf(actor))

	_, err = svc.Login(ctx, RolePatient, "pat", "wrong-password")
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Login(ctx, RolePatient, "nobody", "s3cret-pass")
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Login(ctx, RoleDoctor, "pat", "s3cret-pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered as doctor")
}

func TestLogin_SuperuserUsesAdminPage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	root, err := svc.CreateSuperuser(ctx, accountIn("root"))
	require.NoError(t, err)
	assert.True(t, root.IsSuperuser)

	actor, err := svc.Login(ctx, RoleAdmin, "root", "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, actor.IsSuperuser())
	assert.Equal(t, KindNone, RoleOf(actor))
}

func TestResolveActor_AdminGroup(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	a, err := svc.RegisterAccount(ctx, accountIn("grouped"))
	require.NoError(t, err)
	require.NoError(t, repos.Groups.AddMember(ctx, AdminGroup, a.ID))

	actor, err := svc.ResolveActor(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, actor.InAdminGroup)
}

func TestBookableDoctors(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	active, _, err := svc.SignupDoctor(ctx, accountIn("dr_active"), DoctorInput{Department: "Cardiology", Mobile: "1234567890", Status: true})
	require.NoError(t, err)
	inactive, _, err := svc.SignupDoctor(ctx, accountIn("dr_inactive"), DoctorInput{Department: "Dermatology", Mobile: "1234567891"})
	require.NoError(t, err)

	docs, err := svc.BookableDoctors(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	approver := uuid.New()
	require.NoError(t, repos.Doctors.SetApproval(ctx, active.ID, approver, svc.now()))
	require.NoError(t, repos.Doctors.SetApproval(ctx, inactive.ID, approver, svc.now()))

	docs, err = svc.BookableDoctors(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, active.ID, docs[0].AccountID)
	assert.Equal(t, "Test User", docs[0].Name)
}

func TestMemoryRepos_DeleteCascades(t *testing.T) {
	svc, repos := newTestService()
	ctx := context.Background()

	doc, _, err := svc.SignupDoctor(ctx, accountIn("dr_gone"), DoctorInput{Department: "Cardiology", Mobile: "1234567890", Status: true})
	require.NoError(t, err)
	require.NoError(t, repos.Doctors.SetApproval(ctx, doc.ID, uuid.New(), svc.now()))
	pat, _, err := svc.SignupPatient(ctx, accountIn("p_kept"), PatientInput{Mobile: "9876543210", AssignedDoctorID: &doc.ID})
	require.NoError(t, err)

	require.NoError(t, repos.Accounts.Delete(ctx, doc.ID))

	_, err = repos.Doctors.GetByAccountID(ctx, doc.ID)
	assert.True(t, apperr.IsNotFound(err))
	p, err := repos.Patients.GetByAccountID(ctx, pat.ID)
	require.NoError(t, err)
	assert.Nil(t, p.AssignedDoctorID)

	assert.True(t, apperr.IsNotFound(repos.Accounts.Delete(ctx, doc.ID)))
}

func TestRoleOf(t *testing.T) {
	assert.Equal(t, KindNone, RoleOf(nil))
	assert.Equal(t, KindNone, RoleOf(&Actor{Account: &Account{}}))
	assert.Equal(t, KindAdminPending, RoleOf(&Actor{Admin: &AdminApproval{}}))
	assert.Equal(t, KindAdminApproved, RoleOf(&Actor{Admin: &AdminApproval{IsApproved: true}}))
	assert.Equal(t, "admin_approved", KindAdminApproved.String())
}
