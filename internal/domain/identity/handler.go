package identity

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/internal/platform/auth"
	"github.com/Het-thummar/hospital-management/internal/platform/blobstore"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
	"github.com/Het-thummar/hospital-management/pkg/notice"
)

// Login pages per role, used as redirect targets for unauthenticated requests.
const (
	PatientLoginPath = "/patientlogin"
	DoctorLoginPath  = "/doctorlogin"
	AdminLoginPath   = "/adminlogin"
)

type Handler struct {
	svc      *Service
	sessions *auth.Sessions
	blobs    blobstore.BlobStore
}

func NewHandler(svc *Service, sessions *auth.Sessions, blobs blobstore.BlobStore) *Handler {
	return &Handler{svc: svc, sessions: sessions, blobs: blobs}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET(PatientLoginPath, h.LoginPage(RolePatient))
	e.POST(PatientLoginPath, h.Login(RolePatient))
	e.GET("/patientsignup", h.SignupPage(RolePatient))
	e.POST("/patientsignup", h.SignupPatient)

	e.GET(DoctorLoginPath, h.LoginPage(RoleDoctor))
	e.POST(DoctorLoginPath, h.Login(RoleDoctor))
	e.GET("/doctorsignup", h.SignupPage(RoleDoctor))
	e.POST("/doctorsignup", h.SignupDoctor)

	e.GET(AdminLoginPath, h.LoginPage(RoleAdmin))
	e.POST(AdminLoginPath, h.Login(RoleAdmin))
	e.GET("/adminsignup", h.SignupPage(RoleAdmin))
	e.POST("/adminsignup", h.SignupAdmin)

	e.POST("/logout", h.Logout)
	e.GET("/doctors", h.ListDoctors)
}

// -- Forms --

type AccountForm struct {
	FirstName       string `form:"first_name" json:"first_name" validate:"required,max=150"`
	LastName        string `form:"last_name" json:"last_name" validate:"max=150"`
	Username        string `form:"username" json:"username" validate:"required,max=150"`
	Password        string `form:"password" json:"password" validate:"required,max=72"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password" validate:"required,max=72"`
}

func (f AccountForm) input() AccountInput {
	return AccountInput{
		FirstName:       f.FirstName,
		LastName:        f.LastName,
		Username:        f.Username,
		Password:        f.Password,
		ConfirmPassword: f.ConfirmPassword,
	}
}

type doctorSignupForm struct {
	AccountForm
	Department string `form:"department" json:"department" validate:"required"`
	Mobile     string `form:"mobile" json:"mobile" validate:"required"`
	Address    string `form:"address" json:"address" validate:"required,max=40"`
	Status     bool   `form:"status" json:"status"`
}

type patientSignupForm struct {
	AccountForm
	Address          string `form:"address" json:"address" validate:"required,max=40"`
	Mobile           string `form:"mobile" json:"mobile" validate:"required"`
	Symptoms         string `form:"symptoms" json:"symptoms" validate:"required,max=100"`
	Status           bool   `form:"status" json:"status"`
	AssignedDoctorID string `form:"assigned_doctor_id" json:"assigned_doctor_id"`
}

type loginForm struct {
	Username string `form:"username" json:"username" validate:"required"`
	Password string `form:"password" json:"password" validate:"required"`
}

func bindAndValidate(c echo.Context, form interface{}) error {
	if err := c.Bind(form); err != nil {
		return apperr.Validation("invalid form submission")
	}
	return c.Validate(form)
}

// -- Pages --

func (h *Handler) LoginPage(role Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, notice.With(map[string]interface{}{"role": role}, nil))
	}
}

func (h *Handler) SignupPage(role Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		data := map[string]interface{}{"role": role}
		switch role {
		case RoleDoctor:
			data["departments"] = Departments
		case RolePatient:
			docs, err := h.svc.BookableDoctors(c.Request().Context())
			if err != nil {
				return err
			}
			data["doctors"] = doctorChoices(docs)
		}
		return c.JSON(http.StatusOK, notice.With(data, nil))
	}
}

type doctorChoice struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
}

func doctorChoices(docs []*DoctorProfile) []doctorChoice {
	out := make([]doctorChoice, 0, len(docs))
	for _, d := range docs {
		out = append(out, doctorChoice{ID: d.AccountID, Name: d.Name, Department: d.Department})
	}
	return out
}

func (h *Handler) ListDoctors(c echo.Context) error {
	docs, err := h.svc.BookableDoctors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(map[string]interface{}{
		"doctors":     doctorChoices(docs),
		"departments": Departments,
	}, nil))
}

// -- Signup --

// upload stores the optional profile picture and returns its id together with
// a cleanup func that removes it again if the signup fails.
func (h *Handler) upload(c echo.Context) (string, func(), error) {
	noop := func() {}
	fh, err := c.FormFile("profile_pic")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", noop, nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "multipart") {
			return "", noop, nil
		}
		return "", noop, apperr.FieldValidation("profile_pic", "could not read upload")
	}
	return h.store(c.Request().Context(), fh)
}

func (h *Handler) store(ctx context.Context, fh *multipart.FileHeader) (string, func(), error) {
	id, err := blobstore.SaveUpload(ctx, h.blobs, "profile_pic", fh, "")
	if err != nil || id == "" {
		return "", func() {}, err
	}
	return id, func() { _ = h.blobs.Delete(context.Background(), id) }, nil
}

func (h *Handler) SignupDoctor(c echo.Context) error {
	var f doctorSignupForm
	if err := bindAndValidate(c, &f); err != nil {
		return err
	}
	pic, cleanup, err := h.upload(c)
	if err != nil {
		return err
	}

	a, d, err := h.svc.SignupDoctor(c.Request().Context(), f.input(), DoctorInput{
		Department: f.Department,
		Mobile:     f.Mobile,
		Address:    f.Address,
		Status:     f.Status,
		ProfilePic: pic,
	})
	if err != nil {
		cleanup()
		return err
	}
	return h.startSession(c, http.StatusCreated, &Actor{Account: a, Doctor: d}, map[string]interface{}{"doctor": d})
}

func (h *Handler) SignupPatient(c echo.Context) error {
	var f patientSignupForm
	if err := bindAndValidate(c, &f); err != nil {
		return err
	}

	var assigned *uuid.UUID
	if f.AssignedDoctorID != "" {
		id, err := uuid.Parse(f.AssignedDoctorID)
		if err != nil {
			return apperr.FieldValidation("assigned_doctor_id", "select a valid doctor")
		}
		assigned = &id
	}

	pic, cleanup, err := h.upload(c)
	if err != nil {
		return err
	}

	a, p, err := h.svc.SignupPatient(c.Request().Context(), f.input(), PatientInput{
		Address:          f.Address,
		Mobile:           f.Mobile,
		Symptoms:         f.Symptoms,
		Status:           f.Status,
		AssignedDoctorID: assigned,
		ProfilePic:       pic,
	})
	if err != nil {
		cleanup()
		return err
	}
	return h.startSession(c, http.StatusCreated, &Actor{Account: a, Patient: p}, map[string]interface{}{"patient": p})
}

func (h *Handler) SignupAdmin(c echo.Context) error {
	var f AccountForm
	if err := bindAndValidate(c, &f); err != nil {
		return err
	}
	a, m, err := h.svc.SignupAdmin(c.Request().Context(), f.input())
	if err != nil {
		return err
	}
	return h.startSession(c, http.StatusCreated, &Actor{Account: a, Admin: m}, map[string]interface{}{"admin_approval": m})
}

// -- Login / logout --

func (h *Handler) Login(role Role) echo.HandlerFunc {
	return func(c echo.Context) error {
		var f loginForm
		if err := bindAndValidate(c, &f); err != nil {
			return err
		}
		actor, err := h.svc.Login(c.Request().Context(), role, f.Username, f.Password)
		if err != nil {
			return err
		}
		return h.startSession(c, http.StatusOK, actor, nil)
	}
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		if err := h.sessions.Revoke(ctx, claims); err != nil {
			return err
		}
	}
	h.sessions.ClearCookie(c)
	return c.JSON(http.StatusOK, notice.Redirect("/", notice.Success("you have been logged out")))
}

type sessionView struct {
	Account   *Account               `json:"account"`
	Role      string                 `json:"role"`
	Token     string                 `json:"token"`
	ExpiresAt time.Time              `json:"expires_at"`
	Extra     map[string]interface{} `json:"profile,omitempty"`
}

func (h *Handler) startSession(c echo.Context, status int, actor *Actor, extra map[string]interface{}) error {
	sess, err := h.sessions.Issue(actor.ID(), RoleOf(actor).String())
	if err != nil {
		return err
	}
	h.sessions.SetCookie(c, sess)

	to, n := Landing(actor)
	return c.JSON(status, &notice.Response{
		Data: sessionView{
			Account:   actor.Account,
			Role:      RoleOf(actor).String(),
			Token:     sess.Token,
			ExpiresAt: sess.ExpiresAt,
			Extra:     extra,
		},
		Notice:     n,
		RedirectTo: to,
	})
}

// Landing returns where an actor goes after login or signup. Unapproved
// accounts stay on the home page with an awaiting-approval notice.
func Landing(actor *Actor) (string, *notice.Notice) {
	if actor.IsSuperuser() || actor.InAdminGroup {
		return "/admin-dashboard", notice.Success("welcome back")
	}
	switch RoleOf(actor) {
	case KindDoctor:
		if actor.Doctor.IsApproved {
			return "/doctor-dashboard", notice.Success("welcome back")
		}
		return "/", notice.Info("your doctor account is awaiting approval")
	case KindPatient:
		if actor.Patient.IsApproved {
			return "/patient-dashboard", notice.Success("welcome back")
		}
		return "/", notice.Info("your patient account is awaiting approval")
	case KindAdminApproved:
		return "/admin-dashboard", notice.Success("welcome back")
	case KindAdminPending:
		return "/", notice.Info("your admin account is awaiting approval")
	default:
		return "/", nil
	}
}

// -- Middleware --

// ActorMiddleware resolves the session's account into an Actor. A session
// whose account no longer exists continues anonymously.
func ActorMiddleware(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			id, ok := auth.AccountIDFromContext(ctx)
			if !ok {
				return next(c)
			}
			actor, err := svc.ResolveActor(ctx, id)
			if apperr.IsNotFound(err) {
				return next(c)
			}
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(WithActor(ctx, actor)))
			return next(c)
		}
	}
}

// RequireActor redirects anonymous requests to loginPath.
func RequireActor(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ActorFromContext(c.Request().Context()) == nil {
				return apperr.Unauthenticated("please log in to continue").WithRedirect(loginPath)
			}
			return next(c)
		}
	}
}
