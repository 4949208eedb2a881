package approval

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
	"github.com/Het-thummar/hospital-management/internal/domain/appointment"
	"github.com/Het-thummar/hospital-management/internal/domain/identity"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
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
	superuser := access.Guard(access.CapSuperuser)
	staff := access.Guard(access.CapAdminOrDoctor)

	e.GET("/admin-pending-approvals", h.Pending, admin...)
	e.POST("/approve-doctor/:id", h.ApproveDoctor, admin...)
	e.POST("/reject-doctor/:id", h.RejectDoctor, admin...)
	e.POST("/approve-admin/:id", h.ApproveAdmin, superuser...)
	e.POST("/reject-admin/:id", h.RejectAdmin, superuser...)
	e.POST("/approve-patient/:id", h.ApprovePatient, staff...)
}

func actorOf(c echo.Context) *identity.Actor {
	return identity.ActorFromContext(c.Request().Context())
}

func (h *Handler) Pending(c echo.Context) error {
	pg := pagination.FromContext(c)
	out, err := h.svc.PendingApprovals(c.Request().Context(), actorOf(c), pg.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(out, nil))
}

func (h *Handler) ApproveDoctor(c echo.Context) error {
	id, err := appointment.ParamID(c, "doctor")
	if err != nil {
		return err
	}
	d, err := h.svc.ApproveDoctor(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &notice.Response{
		Data:       d,
		Notice:     notice.Success("doctor approved"),
		RedirectTo: "/admin-pending-approvals",
	})
}

func (h *Handler) RejectDoctor(c echo.Context) error {
	id, err := appointment.ParamID(c, "doctor")
	if err != nil {
		return err
	}
	if err := h.svc.RejectDoctor(c.Request().Context(), actorOf(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.Redirect("/admin-pending-approvals", notice.Success("doctor rejected")))
}

func (h *Handler) ApproveAdmin(c echo.Context) error {
	id, err := appointment.ParamID(c, "admin approval")
	if err != nil {
		return err
	}
	m, err := h.svc.ApproveAdmin(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &notice.Response{
		Data:       m,
		Notice:     notice.Success("admin approved"),
		RedirectTo: "/admin-pending-approvals",
	})
}

func (h *Handler) RejectAdmin(c echo.Context) error {
	id, err := appointment.ParamID(c, "admin approval")
	if err != nil {
		return err
	}
	if err := h.svc.RejectAdmin(c.Request().Context(), actorOf(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.Redirect("/admin-pending-approvals", notice.Success("admin rejected")))
}

type approvePatientForm struct {
	AppointmentDate string `form:"appointment_date" json:"appointment_date"`
	AppointmentTime string `form:"appointment_time" json:"appointment_time"`
}

func (h *Handler) ApprovePatient(c echo.Context) error {
	id, err := appointment.ParamID(c, "patient")
	if err != nil {
		return err
	}
	var f approvePatientForm
	if err := c.Bind(&f); err != nil {
		return apperr.Validation("invalid form submission")
	}
	actor := actorOf(c)
	res, err := h.svc.ApprovePatient(c.Request().Context(), actor, id, f.AppointmentDate, f.AppointmentTime)
	if err != nil {
		return err
	}

	to := "/admin-pending-approvals"
	if !access.IsPrivileged(actor) {
		to = "/doctor-dashboard"
	}
	msg := "patient approved"
	if res.Appointment != nil {
		msg = "patient approved and appointment scheduled"
	}
	return c.JSON(http.StatusOK, &notice.Response{Data: res, Notice: notice.Success(msg), RedirectTo: to})
}
