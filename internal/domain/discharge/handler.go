package discharge

import (
	"fmt"
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
	e.POST("/discharge-patient/:id", h.Discharge, admin...)
	e.GET("/admin-discharges", h.List, admin...)
	e.GET("/patient-discharge", h.Mine, access.Guard(access.CapPatient)...)
	e.GET("/discharge/:id/pdf", h.PDF, identity.RequireActor(identity.PatientLoginPath))
}

type dischargeForm struct {
	RoomCharge   int64  `form:"room_charge" json:"room_charge" validate:"gte=0,lte=1000000000"`
	MedicineCost int64  `form:"medicine_cost" json:"medicine_cost" validate:"gte=0,lte=1000000000"`
	DoctorFee    int64  `form:"doctor_fee" json:"doctor_fee" validate:"gte=0,lte=1000000000"`
	OtherCharge  int64  `form:"other_charge" json:"other_charge" validate:"gte=0,lte=1000000000"`
	ReleaseDate  string `form:"release_date" json:"release_date"`
}

func actorOf(c echo.Context) *identity.Actor {
	return identity.ActorFromContext(c.Request().Context())
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := appointment.ParamID(c, "patient")
	if err != nil {
		return err
	}
	var f dischargeForm
	if err := c.Bind(&f); err != nil {
		return apperr.Validation("invalid form submission")
	}
	if err := c.Validate(&f); err != nil {
		return err
	}
	d, err := h.svc.Discharge(c.Request().Context(), actorOf(c), id, Charges{
		RoomChargePerDay: f.RoomCharge,
		MedicineCost:     f.MedicineCost,
		DoctorFee:        f.DoctorFee,
		OtherCharge:      f.OtherCharge,
	}, f.ReleaseDate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, &notice.Response{
		Data:       d,
		Notice:     notice.Success(fmt.Sprintf("%s discharged, total %d", d.PatientName, d.Total)),
		RedirectTo: "/admin-discharges",
	})
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), actorOf(c), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(pagination.NewPage(items, total, pg), nil))
}

func (h *Handler) Mine(c echo.Context) error {
	d, err := h.svc.ForPatient(c.Request().Context(), actorOf(c))
	if apperr.IsNotFound(err) {
		return c.JSON(http.StatusOK, notice.With(nil, notice.Info("you have not been discharged yet")))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notice.With(d, nil))
}

func (h *Handler) PDF(c echo.Context) error {
	id, err := appointment.ParamID(c, "discharge")
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), actorOf(c), id)
	if err != nil {
		return err
	}
	body, err := RenderPDF(d)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="discharge-%s.pdf"`, d.ID))
	return c.Blob(http.StatusOK, "application/pdf", body)
}
