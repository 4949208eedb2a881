package approval

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/platform/blobstore"
	"github.com/Het-thummar/hospital-management/internal/platform/notification"
	"github.com/Het-thummar/hospital-management/internal/platform/websocket"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

type fixture struct {
	ids      *identity.Service
	repos    *identity.Repos
	appts    *appointment.MemoryRepo
	blobs    *blobstore.InMemoryBlobStore
	sms      *notification.MockSMSSender
	notifier *notification.Notifier
	svc      *Service
}

func newFixture() *fixture {
	repos := identity.NewMemoryRepos()
	appts := appointment.NewMemoryRepo()
	blobs := blobstore.NewInMemoryBlobStore()
	sms := &notification.MockSMSSender{}
	notifier := notification.NewNotifier(&notification.MockEmailSender{}, sms, nil)
	return &fixture{
		ids:      identity.NewService(repos, nil, nil, zerolog.Nop()),
		repos:    repos,
		appts:    appts,
		blobs:    blobs,
		sms:      sms,
		notifier: notifier,
		svc:      NewService(repos, appts, nil, blobs, notifier, nil, zerolog.Nop()),
	}
}

func accountIn(username, first string) identity.AccountInput {
	return identity.AccountInput{
		FirstName:       first,
		LastName:        "Test",
		Username:        username,
		Password:        "s3cret-pass",
		ConfirmPassword: "s3cret-pass",
	}
}

func (f *fixture) actor(t *testing.T, id uuid.UUID) *identity.Actor {
	t.Helper()
	a, err := f.ids.ResolveActor(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) superuser(t *testing.T, username string) *identity.Actor {
	t.Helper()
	a, err := f.ids.CreateSuperuser(context.Background(), accountIn(username, "Root"))
	require.NoError(t, err)
	return f.actor(t, a.ID)
}

func (f *fixture) doctor(t *testing.T, username string, pic string) *identity.Actor {
	t.Helper()
	a, _, err := f.ids.SignupDoctor(context.Background(), accountIn(username, "Lee"), identity.DoctorInput{
		Department: "Cardiology",
		Mobile:     "5551234567",
		Address:    "Ward 3",
		Status:     true,
		ProfilePic: pic,
	})
	require.NoError(t, err)
	return f.actor(t, a.ID)
}

func (f *fixture) patient(t *testing.T, username string, assigned *uuid.UUID) *identity.Actor {
	t.Helper()
	a, _, err := f.ids.SignupPatient(context.Background(), accountIn(username, "Pat"), identity.PatientInput{
		Address:          "Street 1",
		Mobile:           "5559876543",
		Symptoms:         "cough",
		AssignedDoctorID: assigned,
	})
	require.NoError(t, err)
	return f.actor(t, a.ID)
}

func (f *fixture) admin(t *testing.T, username string) (*identity.Actor, *identity.AdminApproval) {
	t.Helper()
	a, m, err := f.ids.SignupAdmin(context.Background(), accountIn(username, "Ada"))
	require.NoError(t, err)
	return f.actor(t, a.ID), m
}

func TestApproveDoctor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	doc := f.doctor(t, "dr_lee", "")

	d, err := f.svc.ApproveDoctor(ctx, root, doc.ID())
	require.NoError(t, err)
	assert.True(t, d.IsApproved)
	require.NotNil(t, d.ApprovedBy)
	assert.Equal(t, root.ID(), *d.ApprovedBy)
	assert.NotNil(t, d.ApprovedDate)

	calls := f.sms.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "5551234567", calls[0].To)
	assert.Contains(t, calls[0].Body, "Lee Test")
}

func TestApproveDoctor_PublishesLiveEvent(t *testing.T) {
	f := newFixture()
	hub := websocket.NewHub(zerolog.Nop())
	f.svc.SetPublisher(hub)
	root := f.superuser(t, "root")
	doc := f.doctor(t, "dr_lee", "")

	conn := websocket.NewClient([]string{websocket.AccountTopic(doc.ID())})
	hub.Register(conn)

	_, err := f.svc.ApproveDoctor(context.Background(), root, doc.ID())
	require.NoError(t, err)
	require.Len(t, conn.Send, 1)
	assert.Contains(t, string(<-conn.Send), `"type":"doctor.approved"`)
}

func TestApproveDoctor_TwiceOverwritesAuditFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	other := f.superuser(t, "root2")
	doc := f.doctor(t, "dr_lee", "")

	_, err := f.svc.ApproveDoctor(ctx, root, doc.ID())
	require.NoError(t, err)
	d, err := f.svc.ApproveDoctor(ctx, other, doc.ID())
	require.NoError(t, err)
	assert.True(t, d.IsApproved)
	assert.Equal(t, other.ID(), *d.ApprovedBy)
}

func TestApproveDoctor_Denied(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doc := f.doctor(t, "dr_lee", "")
	p := f.patient(t, "p1", nil)
	pendingAdmin, _ := f.admin(t, "ada")

	for _, actor := range []*identity.Actor{doc, p, pendingAdmin, nil} {
		_, err := f.svc.ApproveDoctor(ctx, actor, doc.ID())
		assert.True(t, apperr.IsAuthorization(err))
	}
	stored, err := f.repos.Doctors.GetByAccountID(ctx, doc.ID())
	require.NoError(t, err)
	assert.False(t, stored.IsApproved)
	assert.Empty(t, f.sms.Calls())
}

func TestRejectDoctor_ThenApproveIsNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")

	meta, err := f.blobs.Put(ctx, blobstore.BlobMetadata{ContentType: "image/png"}, bytes.NewReader([]byte("\x89PNG\r\n\x1a\nrest")))
	require.NoError(t, err)
	doc := f.doctor(t, "dr_lee", meta.ID)

	require.NoError(t, f.svc.RejectDoctor(ctx, root, doc.ID()))

	_, err = f.repos.Accounts.GetByID(ctx, doc.ID())
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.svc.ApproveDoctor(ctx, root, doc.ID())
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(f.svc.RejectDoctor(ctx, root, doc.ID())))

	_, _, err = f.blobs.Get(ctx, meta.ID)
	assert.True(t, errors.Is(err, blobstore.ErrBlobNotFound))
}

func TestApproveAdmin_SuperuserOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	first, firstReq := f.admin(t, "ada")
	_, secondReq := f.admin(t, "bob")

	m, err := f.svc.ApproveAdmin(ctx, root, firstReq.ID)
	require.NoError(t, err)
	assert.True(t, m.IsApproved)

	// Reload: now an approved admin in the Admin group, but not a superuser.
	first = f.actor(t, first.ID())
	assert.True(t, first.InAdminGroup)
	assert.Equal(t, identity.KindAdminApproved, identity.RoleOf(first))

	_, err = f.svc.ApproveAdmin(ctx, first, secondReq.ID)
	assert.True(t, apperr.IsAuthorization(err))
	assert.True(t, apperr.IsAuthorization(f.svc.RejectAdmin(ctx, first, secondReq.ID)))

	// A workflow admin can still approve doctors.
	doc := f.doctor(t, "dr_lee", "")
	_, err = f.svc.ApproveDoctor(ctx, first, doc.ID())
	require.NoError(t, err)
}

func TestRejectAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	ada, req := f.admin(t, "ada")

	require.NoError(t, f.svc.RejectAdmin(ctx, root, req.ID))
	_, err := f.repos.Accounts.GetByID(ctx, ada.ID())
	assert.True(t, apperr.IsNotFound(err))
	_, err = f.svc.ApproveAdmin(ctx, root, req.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestApprovePatient_WithoutSlotCreatesNoAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	p := f.patient(t, "p1", nil)

	res, err := f.svc.ApprovePatient(ctx, root, p.ID(), "2030-01-02", "")
	require.NoError(t, err)
	assert.True(t, res.Patient.IsApproved)
	assert.Nil(t, res.Appointment)

	_, total, err := f.appts.List(ctx, appointment.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestApprovePatient_ByDoctorSchedules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	doc := f.doctor(t, "dr_lee", "")
	_, err := f.svc.ApproveDoctor(ctx, root, doc.ID())
	require.NoError(t, err)
	doc = f.actor(t, doc.ID())
	p := f.patient(t, "p1", nil)

	res, err := f.svc.ApprovePatient(ctx, doc, p.ID(), "2030-01-02", "09:30")
	require.NoError(t, err)
	require.NotNil(t, res.Appointment)
	assert.Equal(t, doc.ID(), res.Appointment.DoctorID)
	assert.Equal(t, p.ID(), res.Appointment.PatientID)
	assert.True(t, res.Appointment.Status)
	assert.Equal(t, "cough", res.Appointment.Description)
	assert.Equal(t, doc.ID(), *res.Patient.ApprovedBy)

	items, total, err := f.appts.List(ctx, appointment.Filter{PatientID: &res.Patient.AccountID}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "09:30", *items[0].AppointmentTime)

	calls := f.sms.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[len(calls)-1].Body, "2030-01-02 at 09:30")
}

func TestApprovePatient_AdminUsesAssignedDoctor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	doc := f.doctor(t, "dr_lee", "")
	_, err := f.svc.ApproveDoctor(ctx, root, doc.ID())
	require.NoError(t, err)

	assigned := doc.ID()
	p := f.patient(t, "p1", &assigned)
	res, err := f.svc.ApprovePatient(ctx, root, p.ID(), "2030-01-02", "09:30")
	require.NoError(t, err)
	require.NotNil(t, res.Appointment)
	assert.Equal(t, doc.ID(), res.Appointment.DoctorID)
	assert.Equal(t, "Lee Test", res.Appointment.DoctorName)

	lonely := f.patient(t, "p2", nil)
	_, err = f.svc.ApprovePatient(ctx, root, lonely.ID(), "2030-01-02", "09:30")
	assert.True(t, apperr.IsValidation(err))
	stored, err := f.repos.Patients.GetByAccountID(ctx, lonely.ID())
	require.NoError(t, err)
	assert.False(t, stored.IsApproved, "a failed scheduling leaves the patient pending")
}

func TestApprovePatient_Denied(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pendingDoc := f.doctor(t, "dr_new", "")
	p := f.patient(t, "p1", nil)
	other := f.patient(t, "p2", nil)

	_, err := f.svc.ApprovePatient(ctx, pendingDoc, p.ID(), "", "")
	assert.True(t, apperr.IsAuthorization(err))
	_, err = f.svc.ApprovePatient(ctx, other, p.ID(), "", "")
	assert.True(t, apperr.IsAuthorization(err))
}

func TestApprovePatient_BadSlot(t *testing.T) {
	f := newFixture()
	root := f.superuser(t, "root")
	p := f.patient(t, "p1", nil)

	_, err := f.svc.ApprovePatient(context.Background(), root, p.ID(), "tomorrow", "noon")
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "must use the format YYYY-MM-DD", ae.Fields["appointment_date"])
	assert.Equal(t, "must use the format HH:MM", ae.Fields["appointment_time"])
}

func TestApproval_NotificationFailureIsIgnored(t *testing.T) {
	f := newFixture()
	f.svc.notifier = notification.NewNotifier(&notification.MockEmailSender{}, &notification.MockSMSSender{ShouldFail: true, FailError: "twilio down"}, nil)
	root := f.superuser(t, "root")
	doc := f.doctor(t, "dr_lee", "")

	d, err := f.svc.ApproveDoctor(context.Background(), root, doc.ID())
	require.NoError(t, err)
	assert.True(t, d.IsApproved)
}

func TestPendingApprovals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	root := f.superuser(t, "root")
	f.doctor(t, "dr_a", "")
	approved := f.doctor(t, "dr_b", "")
	_, err := f.svc.ApproveDoctor(ctx, root, approved.ID())
	require.NoError(t, err)
	f.patient(t, "p1", nil)
	ada, req := f.admin(t, "ada")

	out, err := f.svc.PendingApprovals(ctx, root, 50)
	require.NoError(t, err)
	assert.Len(t, out.Doctors, 1)
	assert.Len(t, out.Patients, 1)
	assert.Len(t, out.Admins, 1)

	_, err = f.svc.ApproveAdmin(ctx, root, req.ID)
	require.NoError(t, err)
	out, err = f.svc.PendingApprovals(ctx, f.actor(t, ada.ID()), 50)
	require.NoError(t, err)
	assert.Len(t, out.Doctors, 1)
	assert.Empty(t, out.Admins, "only superusers see admin requests")

	_, err = f.svc.PendingApprovals(ctx, approved, 50)
	assert.True(t, apperr.IsAuthorization(err))
}

func TestServiceClock(t *testing.T) {
	f := newFixture()
	fixed := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }
	root := f.superuser(t, "root")
	doc := f.doctor(t, "dr_lee", "")

	d, err := f.svc.ApproveDoctor(context.Background(), root, doc.ID())
	require.NoError(t, err)
	assert.True(t, d.ApprovedDate.Equal(fixed))
}
