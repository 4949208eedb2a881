// Package reporting serves the admin's canned hospital reports. Each report is
// a fixed SQL query over the core tables; callers pick one by id and may pass
// the parameters it declares.
package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

// MeasureDefinition is one report.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the rows of an evaluated measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// Parameters are bound in declaration order as $1, $2, ... and are all dates
// in YYYY-MM-DD; a missing one binds NULL.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patients-by-approval",
		Name:        "Patients by Approval",
		Description: "Registered patients split by approval state",
		SQL: `SELECT is_approved, COUNT(*) AS total
			FROM patient_profiles GROUP BY is_approved ORDER BY is_approved`,
		Parameters: []string{},
	},
	{
		ID:          "doctors-by-department",
		Name:        "Doctors by Department",
		Description: "Doctors per department with the approved share",
		SQL: `SELECT department, COUNT(*) AS total,
				COUNT(*) FILTER (WHERE is_approved) AS approved
			FROM doctor_profiles GROUP BY department ORDER BY total DESC, department`,
		Parameters: []string{},
	},
	{
		ID:          "appointment-pipeline",
		Name:        "Appointment Pipeline",
		Description: "Appointments by doctor acceptance and admin approval, optionally since a creation date",
		SQL: `SELECT is_accepted_by_doctor, status AS approved, COUNT(*) AS total
			FROM appointments
			WHERE ($1::date IS NULL OR created_date >= $1::date)
			GROUP BY is_accepted_by_doctor, status
			ORDER BY is_accepted_by_doctor, status`,
		Parameters: []string{"since"},
	},
	{
		ID:          "discharge-revenue",
		Name:        "Discharge Revenue",
		Description: "Discharges and billed totals per release month within an optional date range",
		SQL: `SELECT to_char(release_date, 'YYYY-MM') AS month,
				COUNT(*) AS discharges,
				SUM(day_spent)::bigint AS days,
				SUM(total)::bigint AS revenue
			FROM discharge_details
			WHERE ($1::date IS NULL OR release_date >= $1::date)
			  AND ($2::date IS NULL OR release_date <= $2::date)
			GROUP BY 1 ORDER BY 1 DESC`,
		Parameters: []string{"from", "to"},
	},
}

// Querier is the part of a pool or transaction the reports need.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type Handler struct {
	db Querier
}

func NewHandler(db Querier) *Handler {
	return &Handler{db: db}
}

// RegisterRoutes mounts the reports behind mw, which is expected to restrict
// them to admins.
func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	g := e.Group("/admin-reports", mw...)
	g.GET("", h.ListMeasures)
	g.GET("/:id", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return apperr.NotFound("report")
	}

	params := map[string]string{}
	args := make([]interface{}, len(measure.Parameters))
	for i, p := range measure.Parameters {
		v := c.QueryParam(p)
		if v == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return apperr.FieldValidation(p, "must use the format YYYY-MM-DD")
		}
		params[p] = v
		args[i] = d
	}

	results, err := h.execute(c.Request().Context(), measure.SQL, args...)
	if err != nil {
		return apperr.Internal("report query failed", fmt.Errorf("measure %s: %w", measure.ID, err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Parameters:  params,
	})
}

// execute runs sql and returns each row keyed by column name.
func (h *Handler) execute(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := h.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
