package careplan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/carebridge/careplan/internal/domain/orders"
)

func newTestHandler() (*Handler, *planEnv) {
	env := newPlanEnv()
	return NewHandler(env.svc), env
}

func TestHandler_Status(t *testing.T) {
	h, env := newTestHandler()
	o := env.seedOrder(orders.StatusProcessing)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/"+o.ID.String()+"/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	if err := h.Status(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res orders.StatusResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != orders.StatusProcessing {
		t.Errorf("expected processing, got %s", res.Status)
	}
}

func TestHandler_Status_InvalidID(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/abc/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.Status(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", err)
	}
}

func TestHandler_Download(t *testing.T) {
	h, env := newTestHandler()
	o := env.seedOrder(orders.StatusCompleted)
	env.plans.Upsert(context.Background(), &CarePlan{OrderID: o.ID, Content: planContent})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/"+o.ID.String()+"/careplan/download", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	if err := h.Download(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "attachment") {
		t.Errorf("expected attachment disposition, got %s", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "PHARMACEUTICAL CARE PLAN") {
		t.Error("download body should start with the header block")
	}
}

func TestHandler_Regenerate(t *testing.T) {
	h, env := newTestHandler()
	o := env.seedOrder(orders.StatusFailed)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/orders/"+o.ID.String()+"/regenerate", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(o.ID.String())

	if err := h.Regenerate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if len(env.queue.ids) != 1 {
		t.Errorf("expected one enqueue, got %d", len(env.queue.ids))
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/orders/:id/status":            false,
		"GET /api/v1/orders/:id/careplan":          false,
		"GET /api/v1/orders/:id/careplan/download": false,
		"POST /api/v1/orders/:id/regenerate":       false,
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
