package orders

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/careplan/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/orders", h.Intake)
	api.GET("/orders", h.List)
	api.GET("/orders/export", h.Export)
	api.GET("/orders/:id", h.Get)
}

// Intake handles POST /orders. The service returns *APIError for every
// client-addressable failure; the server error handler renders the body.
func (h *Handler) Intake(c echo.Context) error {
	var req IntakeRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError([]string{"request body is not valid JSON"})
	}
	result, err := h.svc.Intake(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Search(c.Request().Context(), c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Export(c echo.Context) error {
	rows, err := h.svc.Export(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if c.QueryParam("format") == "csv" {
		return writeExportCSV(c, rows)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": rows, "total": len(rows)})
}

func writeExportCSV(c echo.Context, rows []*ExportRow) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="orders_export.csv"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	header := []string{"order_id", "mrn", "patient_name", "npi", "provider_name",
		"medication_name", "primary_diagnosis", "status", "order_date", "error_message", "plan_generated_at"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.OrderID.String(), r.MRN, r.PatientName, r.NPI, r.ProviderName,
			r.MedicationName, r.PrimaryDiagnosis, string(r.Status),
			r.OrderDate.Format("2006-01-02"), strVal(r.ErrorMessage), "",
		}
		if r.PlanGeneratedAt != nil {
			rec[len(rec)-1] = r.PlanGeneratedAt.Format("2006-01-02 15:04:05")
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ErrorHandler renders every error as the unified body
// {type, code, message, errors|warnings}. Echo's built-in errors are
// wrapped; *APIError passes through with its own status.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		_ = c.JSON(apiErr.HTTPStatus, apiErr)
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		_ = c.JSON(he.Code, &APIError{
			Type:    "error",
			Code:    codeForStatus(he.Code),
			Message: fmt.Sprintf("%v", he.Message),
		})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, &APIError{
		Type:    "error",
		Code:    CodeInternal,
		Message: "internal server error",
	})
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest:
		return CodeValidation
	default:
		return CodeInternal
	}
}
