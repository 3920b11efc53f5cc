package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/codr1/fieldbook/internal/config"
)

type fakeBackend struct {
	mu     sync.Mutex
	status int
	writes []string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/owner/dashboard/stats":
		fmt.Fprint(w, `{"totalBookings":3,"pendingApprovals":1,"totalRevenue":"450000"}`)
	case r.URL.Path == "/owner/dashboard/top-fields":
		fmt.Fprint(w, `[{"fieldId":1,"fieldName":"Field A","bookingCount":3,"revenue":"450000"}]`)
	case r.URL.Path == "/owner/dashboard/upcoming-bookings", r.URL.Path == "/owner/dashboard/recent-bookings":
		fmt.Fprint(w, `[]`)
	case r.URL.Path == "/owner/dashboard/peak-hours":
		fmt.Fprint(w, `[{"hour":19,"bookingCount":2}]`)
	case r.URL.Path == "/owner/complexes":
		fmt.Fprint(w, `[{"id":1,"name":"Central","fieldCount":2,"isActive":true}]`)
	case r.URL.Path == "/revenue":
		fmt.Fprintf(w, `[{"startDate":%q,"period":"bucket","totalRevenue":"450000","totalBookings":3}]`, r.URL.Query().Get("startDate"))
	case r.URL.Path == "/bookings/10" && r.Method == http.MethodGet:
		b.mu.Lock()
		status := b.status
		b.mu.Unlock()
		fmt.Fprintf(w, `{"id":10,"status":%d,"bookingDate":"2099-01-01","startTime":"18:00","endTime":"19:30","totalAmount":"300000","depositAmount":"0","fieldName":"Field A","customerName":"Minh"}`, status)
	case strings.HasPrefix(r.URL.Path, "/bookings/10/") && r.Method == http.MethodPost:
		b.mu.Lock()
		b.writes = append(b.writes, strings.TrimPrefix(r.URL.Path, "/bookings/10/"))
		b.status = 1
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func newTestApp(t *testing.T, backendURL string) *app {
	t.Helper()
	t.Setenv("BACKEND_API_TOKEN", "test-token")
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
app:
  name: fieldbook
  environment: test
  port: 8080
  timezone: Asia/Ho_Chi_Minh
backend:
  base_url: %s
database:
  filename: %s
features:
  enable_metrics: true
`, backendURL, filepath.ToSlash(filepath.Join(t.TempDir(), "db", "app.db")))))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.close)
	return a
}

func TestAppEndToEnd(t *testing.T) {
	backend := &fakeBackend{}
	backendServer := httptest.NewServer(backend)
	t.Cleanup(backendServer.Close)

	a := newTestApp(t, backendServer.URL)
	handler := newServer(a).Handler

	call := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rec
	}

	rec := call(http.MethodGet, "/api/v1/owner/dashboard?owner_id=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID on response")
	}
	var view struct {
		Stats struct {
			Data struct {
				TotalBookings int64 `json:"totalBookings"`
			} `json:"data"`
		} `json:"stats"`
		Revenue struct {
			Data  []json.RawMessage `json:"data"`
			Error string            `json:"error"`
		} `json:"revenue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if view.Stats.Data.TotalBookings != 3 {
		t.Fatalf("expected stats from backend, got %+v", view.Stats)
	}
	if len(view.Revenue.Data) != 1 || view.Revenue.Error != "" {
		t.Fatalf("expected one revenue bucket, got %+v", view.Revenue)
	}

	rec = call(http.MethodPut, "/api/v1/owner/dashboard/period?owner_id=1", `{"periodType":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("change period: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = call(http.MethodPost, "/api/v1/bookings/10/approve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = call(http.MethodPost, "/api/v1/bookings/10/approve", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second approve: expected 409, got %d", rec.Code)
	}

	rec = call(http.MethodGet, "/api/v1/bookings/10/actions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("action log: expected 200, got %d", rec.Code)
	}
	var log struct {
		Entries []struct {
			Outcome string `json:"outcome"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &log); err != nil {
		t.Fatalf("decode action log: %v", err)
	}
	if len(log.Entries) != 2 {
		t.Fatalf("expected 2 action log entries, got %d", len(log.Entries))
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.writes) != 1 || backend.writes[0] != "approve" {
		t.Fatalf("expected a single approve write, got %v", backend.writes)
	}

	if rec := call(http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}
