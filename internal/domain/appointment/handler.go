package appointment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/internal/domain/access"
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
	patient, doctor, admin := access.Guard(access.CapPatient), access.Guard(access.CapDoctor), access.Guard(access.CapAdmin)

	e.POST("/book-appointment", h.Book, patient...)
	e.GET("/patient-appointments", h.PatientAppointments, patient...)

	e.POST("/accept-appointment/:id", h.Accept, doctor...)
	e.GET("/doctor-appointments", h.DoctorAppointments, doctor...)

	e.GET("/admin-appointments", h.AdminAppointments, admin...)
	e.POST("/approve-appointment/:id", h.Approve, admin...)
	e.POST("/delete-appointment/:id", h.Delete, admin...)
	e.POST("/schedule-appointment", h.Schedule, admin...)
}

type bookForm struct {
	DoctorID    string `form:"doctor_id" json:"doctor_id" validate:"required"`
	Description string `form:"description" json:"description" validate:"required,max=500"`
}

type acceptForm struct {
	ScheduledDate string `form:"scheduled_date" json:"scheduled_date"`
	ScheduledTime string `form:"scheduled_time" json:"scheduled_time"`
}

type scheduleForm struct {
	PatientID       string `form:"patient_id" json:"patient_id" validate:"required"`
	DoctorID        string `form:"doctor_id" json:"doctor_id" validate:"required"`
	Description     string `form:"description" json:"description" validate:"required,max=500"`
	AppointmentDate string `form:"appointment_date" json:"appointment_date"`
	AppointmentTime string `form:"appointment_time" json:"appointment_time"`
	Status          bool   `form:"status" json:"status"`
}

func bindAndValidate(c echo.Context, form interface{}) error {
	if err := c.Bind(form); err != nil {
		return apperr.Validation("invalid form submission")
	}
	return c.Validate(form)
}

// ParamID parses the :id path parameter. A malformed id is reported as a
// missing entity.
func ParamID(c echo.Context, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.NotFound(entity)
	}
	return id, nil
}

func parseRef(v, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, apperr.FieldValidation(field, "select a valid option")
	}
	return id, nil
}

func actorOf(c echo.Context) *identity.Actor {
	return identity.ActorFromContext(c.Request().Context())
}

func (h *Handler) Book(c echo.Context) error {
	var f bookForm
	if err := bindAndValidate(c, &f); err != nil {
		return err
	}
	doctorID, err := parseRef(f.DoctorID, "doctor_id")
	if err != nil {
		return err
	}
	a, err := h.svc.BookAppointment(c.Request().Context(), actorOf(c), doctorID, f.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &notice.Response{
		Data:       a,
		Notice:     notice.Success("appointment requested, awaiting approval"),
		RedirectTo: "/patient-appointments",
	})
}

func (h *Handler) PatientAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForPatient(c.Request().Context(), actorOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}

func (h *Handler) Accept(c echo.Context) error {
	id, err := ParamID(c, "appointment")
	if err != nil {
		return err
	}
	var f acceptForm
	if err := c.Bind(&f); err != nil {
		return apperr.Validation("invalid form submission")
	}
	a, err := h.svc.AcceptAppointment(c.Request().Context(), actorOf(c), id, f.ScheduledDate, f.ScheduledTime)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &notice.Response{
		Data:       a,
		Notice:     notice.Success("appointment accepted"),
		RedirectTo: "/doctor-dashboard",
	})
}

// DoctorAppointments accepts ?accepted=true|false to pick one track.
func (h *Handler) DoctorAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var accepted *bool
	switch c.QueryParam("accepted") {
	case "true":
		v := true
		accepted = &v
	case "false":
		v := false
		accepted = &v
	}
	items, total, err := h.svc.ListForDoctor(c.Request().Context(), actorOf(c), accepted, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}

func (h *Handler) AdminAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	if v := c.QueryParam("status"); v == "true" || v == "false" {
		b := v == "true"
		f.Status = &b
	}
	items, total, err := h.svc.ListAll(c.Request().Context(), actorOf(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := ParamID(c, "appointment")
	if err != nil {
		return err
	}
	if err := h.svc.ApproveAppointment(c.Request().Context(), actorOf(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.Redirect("/admin-appointments", notice.Success("appointment approved")))
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := ParamID(c, "appointment")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), actorOf(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.Redirect("/admin-appointments", notice.Success("appointment deleted")))
}

func (h *Handler) Schedule(c echo.Context) error {
	var f scheduleForm
	if err := bindAndValidate(c, &f); err != nil {
		return err
	}
	patientID, err := parseRef(f.PatientID, "patient_id")
	if err != nil {
		return err
	}
	doctorID, err := parseRef(f.DoctorID, "doctor_id")
	if err != nil {
		return err
	}
	a, err := h.svc.ScheduleAppointment(c.Request().Context(), actorOf(c), ScheduleInput{
		PatientID:   patientID,
		DoctorID:    doctorID,
		Description: f.Description,
		Date:        f.AppointmentDate,
		Time:        f.AppointmentTime,
		Status:      f.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &notice.Response{
		Data:       a,
		Notice:     notice.Success("appointment scheduled"),
		RedirectTo: "/admin-appointments",
	})
}
