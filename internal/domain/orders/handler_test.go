package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *testEnv) {
	env := newTestEnv()
	return NewHandler(env.svc), env
}

const intakeBody = `{
	"patient": {"first_name": "Jane", "last_name": "Doe", "mrn": "123456", "dob": "1979-06-08"},
	"provider": {"first_name": "Alice", "last_name": "Smith", "npi": "1234567893"},
	"medication_name": "Pyridostigmine",
	"primary_diagnosis": "G70.01"
}`

func TestHandler_Intake(t *testing.T) {
	h, env := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(intakeBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Intake(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var res IntakeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != StatusPending {
		t.Errorf("expected pending, got %s", res.Status)
	}
	if len(env.queue.ids) != 1 {
		t.Errorf("expected one queued id, got %d", len(env.queue.ids))
	}
}

func TestHandler_Intake_MalformedJSON(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Intake(c)
	apiErr := requireAPIError(t, err)
	if apiErr.HTTPStatus != http.StatusBadRequest || apiErr.Code != CodeValidation {
		t.Errorf("expected 400 %s, got %d %s", CodeValidation, apiErr.HTTPStatus, apiErr.Code)
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", err)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/orders/"+id, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	apiErr := requireAPIError(t, h.Get(c))
	if apiErr.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.HTTPStatus)
	}
}

func TestHandler_List(t *testing.T) {
	h, env := newTestHandler()
	if _, err := env.svc.Intake(context.Background(), validIntake()); err != nil {
		t.Fatalf("seed intake: %v", err)
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders?limit=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Total != 1 {
		t.Errorf("expected total 1, got %d", body.Total)
	}
}

func TestHandler_Export_CSV(t *testing.T) {
	h, env := newTestHandler()
	if _, err := env.svc.Intake(context.Background(), validIntake()); err != nil {
		t.Fatalf("seed intake: %v", err)
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/export?format=csv", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "order_id,") {
		t.Errorf("unexpected header row: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Pyridostigmine") {
		t.Errorf("row should carry the medication, got %s", lines[1])
	}
}

func TestHandler_Export_JSON(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/export", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Total != 0 {
		t.Errorf("expected empty export, got total %d", body.Total)
	}
}

func TestErrorHandler_RendersAPIError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(NewBlocked(CodeSameDayDuplicate, []string{"dup"}), c)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	var body APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Type != "error" || body.Code != CodeSameDayDuplicate {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestErrorHandler_WrapsEchoHTTPError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(echo.NewHTTPError(http.StatusNotFound, "nope"), c)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code != CodeNotFound {
		t.Errorf("expected %s, got %s", CodeNotFound, body.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/orders":       false,
		"GET /api/v1/orders":        false,
		"GET /api/v1/orders/export": false,
		"GET /api/v1/orders/:id":    false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for key, found := range want {
		if !found {
			t.Errorf("route %s not registered", key)
		}
	}
}
