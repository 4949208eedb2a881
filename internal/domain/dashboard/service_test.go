package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/discharge"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/platform/auth"
	"github.com/Het-thummar/hospital-management/internal/platform/middleware"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

type fixture struct {
	ids   *identity.Service
	repos *identity.Repos
	appts *appointment.Service
	svc   *Service
}

func newFixture() *fixture {
	repos := identity.NewMemoryRepos()
	apptRepo := appointment.NewMemoryRepo()
	return &fixture{
		ids:   identity.NewService(repos, nil, nil, zerolog.Nop()),
		repos: repos,
		appts: appointment.NewService(apptRepo, repos.Doctors, repos.Patients, nil, zerolog.Nop()),
		svc:   NewService(repos, apptRepo, discharge.NewMemoryRepo()),
	}
}

func accountIn(username, first string) identity.AccountInput {
	return identity.AccountInput{FirstName: first, LastName: "Test", Username: username, Password: "s3cret-pass", ConfirmPassword: "s3cret-pass"}
}

func (f *fixture) actor(t *testing.T, id uuid.UUID) *identity.Actor {
	t.Helper()
	a, err := f.ids.ResolveActor(context.Background(), id)
	require.NoError(t, err)
	return a
}

type world struct {
	root, lee, pending, p1, p2 *identity.Actor
}

func (f *fixture) populate(t *testing.T) world {
	t.Helper()
	ctx := context.Background()
	root, err := f.ids.CreateSuperuser(ctx, accountIn("root", "Root"))
	require.NoError(t, err)

	doctor := func(username string, approve bool) uuid.UUID {
		a, _, err := f.ids.SignupDoctor(ctx, accountIn(username, "Lee"), identity.DoctorInput{
			Department: "Cardiology", Mobile: "5551234567", Address: "Ward 3", Status: true,
		})
		require.NoError(t, err)
		if approve {
			require.NoError(t, f.repos.Doctors.SetApproval(ctx, a.ID, root.ID, time.Now()))
		}
		return a.ID
	}
	lee := doctor("dr_lee", true)
	pending := doctor("dr_new", false)

	patient := func(username string, approve bool) uuid.UUID {
		a, _, err := f.ids.SignupPatient(ctx, accountIn(username, "Pat"), identity.PatientInput{
			Address: "Street 1", Mobile: "5559876543", Symptoms: "cough", AssignedDoctorID: &lee,
		})
		require.NoError(t, err)
		if approve {
			require.NoError(t, f.repos.Patients.SetApproval(ctx, a.ID, root.ID, time.Now()))
		}
		return a.ID
	}
	p1 := patient("p1", true)
	p2 := patient("p2", false)

	w := world{
		root:    f.actor(t, root.ID),
		lee:     f.actor(t, lee),
		pending: f.actor(t, pending),
		p1:      f.actor(t, p1),
		p2:      f.actor(t, p2),
	}
	a, err := f.appts.BookAppointment(ctx, w.p1, lee, "fever")
	require.NoError(t, err)
	_, err = f.appts.BookAppointment(ctx, w.p2, lee, "rash")
	require.NoError(t, err)
	_, err = f.appts.AcceptAppointment(ctx, w.lee, a.ID, "2030-01-02", "10:00")
	require.NoError(t, err)
	require.NoError(t, f.appts.ApproveAppointment(ctx, w.root, a.ID))
	return w
}

func TestAdminDashboard(t *testing.T) {
	f := newFixture()
	w := f.populate(t)

	v, err := f.svc.Admin(context.Background(), w.root)
	require.NoError(t, err)
	assert.Equal(t, Counts{Approved: 1, Pending: 1}, v.Doctors)
	assert.Equal(t, Counts{Approved: 1, Pending: 1}, v.Patients)
	assert.Equal(t, Counts{Approved: 1, Pending: 1}, v.Appointments)
	assert.Len(t, v.RecentDoctors, 1)

	_, err = f.svc.Admin(context.Background(), w.lee)
	assert.True(t, apperr.IsAuthorization(err))
}

func TestDoctorDashboard(t *testing.T) {
	f := newFixture()
	w := f.populate(t)

	v, err := f.svc.Doctor(context.Background(), w.lee)
	require.NoError(t, err)
	assert.Equal(t, 1, v.PatientCount, "only approved patients count")
	assert.Equal(t, 1, v.AppointmentCount)
	assert.Equal(t, 1, v.PendingAppointments)
	require.Len(t, v.Recent, 1)
	assert.Equal(t, "rash", v.Recent[0].Description)

	_, err = f.svc.Doctor(context.Background(), w.pending)
	assert.True(t, apperr.IsAuthorization(err))

	patients, total, err := f.svc.DoctorPatients(context.Background(), w.lee, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, w.p1.ID(), patients[0].AccountID)
}

func TestPatientDashboard(t *testing.T) {
	f := newFixture()
	w := f.populate(t)

	v, err := f.svc.Patient(context.Background(), w.p1)
	require.NoError(t, err)
	require.NotNil(t, v.Doctor)
	assert.Equal(t, "Lee Test", v.Doctor.Name)
	assert.Len(t, v.Appointments, 1)
	assert.Nil(t, v.Discharge)

	_, err = f.svc.Patient(context.Background(), w.lee)
	assert.True(t, apperr.IsAuthorization(err))
}

func TestAdminLists(t *testing.T) {
	f := newFixture()
	w := f.populate(t)
	ctx := context.Background()

	docs, total, err := f.svc.Doctors(ctx, w.root, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, docs, 2)

	_, total, err = f.svc.Doctors(ctx, w.root, flag(false), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	leeID := w.lee.ID()
	_, total, err = f.svc.Patients(ctx, w.root, nil, &leeID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestHandler_Dashboards(t *testing.T) {
	f := newFixture()
	w := f.populate(t)

	revoker := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(revoker.Close)
	sessions := auth.NewSessions(strings.Repeat("k", 32), time.Hour, revoker, false)
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	e.Use(auth.SessionMiddleware(sessions))
	e.Use(identity.ActorMiddleware(f.ids))
	NewHandler(f.svc).RegisterRoutes(e)

	get := func(actor *identity.Actor, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if actor != nil {
			sess, err := sessions.Issue(actor.ID(), identity.RoleOf(actor).String())
			require.NoError(t, err)
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+sess.Token)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := get(w.p2, "/patient-dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "awaiting approval")

	rec = get(w.lee, "/doctor-dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"patient_count":1`)

	rec = get(w.root, "/admin-doctors?approved=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = get(w.p1, "/admin-dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = get(nil, "/doctor-dashboard")
	assert.Equal(t, identity.DoctorLoginPath, rec.Header().Get(echo.HeaderLocation))
}
