package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Het-thummar/hospital-management/internal/config"
	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/discharge"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/internal/platform/auth"
	"github.com/Het-thummar/hospital-management/internal/platform/blobstore"
	"github.com/Het-thummar/hospital-management/internal/platform/db"
	"github.com/Het-thummar/hospital-management/internal/platform/notification"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeReports struct{}

func (fakeReports) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("no database")
}

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		SessionSecret:  strings.Repeat("s", 32),
		SessionTTL:     time.Hour,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		RequestTimeout: 5 * time.Second,
		ContactEmail:   "desk@example.com",
	}
}

func testDeps(t *testing.T) *deps {
	t.Helper()
	revoker := auth.NewMemoryRevocationStore(time.Minute)
	t.Cleanup(revoker.Close)
	return &deps{
		repos:        identity.NewMemoryRepos(),
		appointments: appointment.NewMemoryRepo(),
		discharges:   discharge.NewMemoryRepo(),
		tx:           db.NopTransactor{},
		blobs:        blobstore.NewInMemoryBlobStore(),
		email:        &notification.MockEmailSender{},
		sms:          &notification.MockSMSSender{},
		revoker:      revoker,
		pinger:       fakePinger{},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, d *deps) *echo.Echo {
	t.Helper()
	e, err := newServer(cfg, zerolog.Nop(), d)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func TestServer_Health(t *testing.T) {
	d := testDeps(t)
	e := newTestServer(t, testConfig(), d)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}

	d.pinger = fakePinger{err: errors.New("connection refused")}
	e = newTestServer(t, testConfig(), d)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	e := newTestServer(t, testConfig(), testDeps(t))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hms_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestServer_GuardedRoutesRedirectToLogin(t *testing.T) {
	e := newTestServer(t, testConfig(), testDeps(t))

	cases := map[string]string{
		"/patient-dashboard":       identity.PatientLoginPath,
		"/doctor-dashboard":        identity.DoctorLoginPath,
		"/admin-dashboard":         identity.AdminLoginPath,
		"/admin-pending-approvals": identity.AdminLoginPath,
		"/ws":                      "/",
	}
	for path, login := range cases {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusSeeOther {
			t.Errorf("%s: expected 303, got %d", path, rec.Code)
		}
		if got := rec.Header().Get(echo.HeaderLocation); got != login {
			t.Errorf("%s: expected redirect to %s, got %s", path, login, got)
		}
	}
}

func TestServer_ReportsOnlyWithDatabase(t *testing.T) {
	e := newTestServer(t, testConfig(), testDeps(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin-reports", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a database, got %d", rec.Code)
	}

	d := testDeps(t)
	d.reports = fakeReports{}
	e = newTestServer(t, testConfig(), d)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin-reports", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != identity.AdminLoginPath {
		t.Fatalf("expected a redirect to the admin login, got %d %s", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
}

func TestServer_SuperuserLogin(t *testing.T) {
	d := testDeps(t)
	ids := identity.NewService(d.repos, nil, nil, zerolog.Nop())
	_, err := ids.CreateSuperuser(context.Background(), identity.AccountInput{
		FirstName: "Root", Username: "root", Password: "s3cret-pass", ConfirmPassword: "s3cret-pass",
	})
	if err != nil {
		t.Fatalf("CreateSuperuser: %v", err)
	}
	e := newTestServer(t, testConfig(), d)

	req := httptest.NewRequest(http.MethodPost, identity.AdminLoginPath, strings.NewReader(`{"username":"root","password":"s3cret-pass"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
		RedirectTo string `json:"redirect_to"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.RedirectTo != "/admin-dashboard" {
		t.Errorf("expected admin landing, got %q", body.RedirectTo)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin-dashboard", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+body.Data.Token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
}

func TestServer_CSRF(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFKey = strings.Repeat("c", 32)
	e := newTestServer(t, cfg, testDeps(t))

	req := httptest.NewRequest(http.MethodPost, "/contactus", strings.NewReader(`{"name":"Sam","email":"sam@example.com","message":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without a token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-CSRF-Token") == "" {
		t.Error("expected a CSRF token on safe requests")
	}
}

func TestCSRFSkipper(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/book-appointment", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer abc")
	if !csrfSkipper(e.NewContext(req, httptest.NewRecorder())) {
		t.Error("bearer requests should skip CSRF")
	}

	req = httptest.NewRequest(http.MethodPost, "/book-appointment", nil)
	req.Header.Set(echo.HeaderAuthorization, "bearer abc")
	if !csrfSkipper(e.NewContext(req, httptest.NewRecorder())) {
		t.Error("the auth scheme is case-insensitive")
	}

	req = httptest.NewRequest(http.MethodPost, "/book-appointment", nil)
	req.Header.Set(echo.HeaderAuthorization, "Basic abc")
	if csrfSkipper(e.NewContext(req, httptest.NewRecorder())) {
		t.Error("other auth schemes must be checked")
	}

	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/book-appointment", nil), httptest.NewRecorder())
	if csrfSkipper(c) {
		t.Error("cookie requests must be checked")
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), httptest.NewRecorder())
	c.SetPath("/metrics")
	if !csrfSkipper(c) {
		t.Error("ops paths should skip CSRF")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := db.NewMigrator(nil, migrationSource("")).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(got) == 0 || got[0].Version != 1 {
		t.Fatalf("expected migration 1 first, got %+v", got)
	}
	for _, table := range []string{"accounts", "appointments", "discharge_details", "discharge_details_patient_admission_key"} {
		if !strings.Contains(got[0].SQL, table) {
			t.Errorf("expected %s in the core migration", table)
		}
	}
}
