package dashboard

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/pkg/notice"
	"github.com/Het-thummar/hospital-management/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	admin := access.Guard(access.CapAdmin)

	e.GET("/patient-dashboard", h.PatientDashboard, access.Guard(access.CapPatient)...)
	e.GET("/doctor-dashboard", h.DoctorDashboard, access.Guard(access.CapDoctor)...)
	e.GET("/doctor-patients", h.DoctorPatients, access.Guard(access.CapDoctor)...)
	e.GET("/admin-dashboard", h.AdminDashboard, admin...)
	e.GET("/admin-doctors", h.AdminDoctors, admin...)
	e.GET("/admin-patients", h.AdminPatients, admin...)
}

func actorOf(c echo.Context) *identity.Actor {
	return identity.ActorFromContext(c.Request().Context())
}

// approvedParam reads ?approved=true|false; anything else means both.
func approvedParam(c echo.Context) *bool {
	switch c.QueryParam("approved") {
	case "true":
		return flag(true)
	case "false":
		return flag(false)
	}
	return nil
}

func (h *Handler) PatientDashboard(c echo.Context) error {
	actor := actorOf(c)
	v, err := h.svc.Patient(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	var n *notice.Notice
	if !actor.Patient.IsApproved {
		n = notice.Info("your patient account is awaiting approval")
	}
	return c.JSON(http.StatusOK, notice.With(v, n))
}

func (h *Handler) DoctorDashboard(c echo.Context) error {
	v, err := h.svc.Doctor(c.Request().Context(), actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(v, nil))
}

func (h *Handler) DoctorPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.DoctorPatients(c.Request().Context(), actorOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}

func (h *Handler) AdminDashboard(c echo.Context) error {
	v, err := h.svc.Admin(c.Request().Context(), actorOf(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(v, nil))
}

func (h *Handler) AdminDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Doctors(c.Request().Context(), actorOf(c), approvedParam(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}

// AdminPatients accepts ?doctor_id= to show one doctor's patients.
func (h *Handler) AdminPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	var doctorID *uuid.UUID
	if id, err := uuid.Parse(c.QueryParam("doctor_id")); err == nil {
		doctorID = &id
	}
	items, total, err := h.svc.Patients(c.Request().Context(), actorOf(c), approvedParam(c), doctorID, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}
