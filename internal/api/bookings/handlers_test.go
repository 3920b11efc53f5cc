package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/fieldbook/internal/actions"
	"github.com/codr1/fieldbook/internal/booking"
	"github.com/codr1/fieldbook/internal/db"
	"github.com/codr1/fieldbook/internal/portalclient"
	"github.com/codr1/fieldbook/internal/testutil"
)

var testNow = time.Date(2025, 12, 24, 19, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu       sync.Mutex
	bookings map[int64]booking.Booking
	writes   []string
	writeErr error
}

func (f *fakeBackend) GetBooking(_ context.Context, id int64) (booking.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return booking.Booking{}, &portalclient.StatusError{Method: "GET", Path: "/bookings", Code: http.StatusNotFound}
	}
	return b, nil
}

func (f *fakeBackend) write(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, name)
	return f.writeErr
}

func (f *fakeBackend) Approve(_ context.Context, id int64) error { return f.write("approve") }
func (f *fakeBackend) Reject(_ context.Context, id int64, reason string) error {
	return f.write("reject:" + reason)
}
func (f *fakeBackend) Cancel(_ context.Context, id int64) error     { return f.write("cancel") }
func (f *fakeBackend) Complete(_ context.Context, id int64) error   { return f.write("complete") }
func (f *fakeBackend) MarkNoShow(_ context.Context, id int64) error { return f.write("no_show") }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newBooking(id int64, status booking.Status) booking.Booking {
	return booking.Booking{
		ID:          id,
		Status:      status,
		BookingDate: time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC),
		StartTime:   booking.TimeOfDay{Hour: 18},
		EndTime:     booking.TimeOfDay{Hour: 20},
	}
}

func setup(t *testing.T, backend *fakeBackend) (*http.ServeMux, *db.DB) {
	t.Helper()
	database := testutil.NewTestDB(t)

	loader = backend
	facade = actions.NewFacade(backend, actions.WithClock(fixedClock{testNow}), actions.WithRecorder(db.NewActionLog(database)))
	queries = database.Queries
	now = func() time.Time { return testNow }
	t.Cleanup(func() {
		loader, facade, queries, now = nil, nil, nil, time.Now
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/bookings/{id}", HandleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/{action}", HandleBookingAction)
	mux.HandleFunc("GET /api/v1/bookings/{id}/actions", HandleActionLog)
	return mux, database
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestApproveSucceeds(t *testing.T) {
	backend := &fakeBackend{bookings: map[int64]booking.Booking{1: newBooking(1, booking.StatusPending)}}
	mux, _ := setup(t, backend)

	rec := do(mux, http.MethodPost, "/api/v1/bookings/1/approve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp actionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != booking.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", resp.Status)
	}
	if len(backend.writes) != 1 || backend.writes[0] != "approve" {
		t.Fatalf("unexpected writes %v", backend.writes)
	}
}

func TestCompleteBeforeMatchEndIsConflict(t *testing.T) {
	backend := &fakeBackend{bookings: map[int64]booking.Booking{2: newBooking(2, booking.StatusConfirmed)}}
	mux, _ := setup(t, backend)

	rec := do(mux, http.MethodPost, "/api/v1/bookings/2/complete", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp actionErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != actions.OutcomeGuardViolation || resp.Error != "only allowed after the match ends" {
		t.Fatalf("unexpected error body %+v", resp)
	}
	if len(backend.writes) != 0 {
		t.Fatalf("guard violation must not reach the backend, got %v", backend.writes)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	backend := &fakeBackend{bookings: map[int64]booking.Booking{3: newBooking(3, booking.StatusPending)}}
	mux, _ := setup(t, backend)

	if rec := do(mux, http.MethodPost, "/api/v1/bookings/3/reject", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d", rec.Code)
	}
	if rec := do(mux, http.MethodPost, "/api/v1/bookings/3/reject", `{"reason":"  "}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for blank reason, got %d", rec.Code)
	}
	rec := do(mux, http.MethodPost, "/api/v1/bookings/3/reject", `{"reason":"pitch flooded"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(backend.writes) != 1 || backend.writes[0] != "reject:pitch flooded" {
		t.Fatalf("unexpected writes %v", backend.writes)
	}
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	backend := &fakeBackend{
		bookings: map[int64]booking.Booking{4: newBooking(4, booking.StatusConfirmed)},
		writeErr: errors.New("connection reset"),
	}
	mux, _ := setup(t, backend)

	rec := do(mux, http.MethodPost, "/api/v1/bookings/4/cancel", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestOpenBreakerIsServiceUnavailable(t *testing.T) {
	backend := &fakeBackend{
		bookings: map[int64]booking.Booking{4: newBooking(4, booking.StatusConfirmed)},
		writeErr: fmt.Errorf("%w: circuit breaker is open", portalclient.ErrBackendUnavailable),
	}
	mux, _ := setup(t, backend)

	rec := do(mux, http.MethodPost, "/api/v1/bookings/4/cancel", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp actionErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "backend_unavailable" {
		t.Fatalf("expected backend_unavailable code, got %q", resp.Code)
	}
}

func TestUnknownBookingAndAction(t *testing.T) {
	backend := &fakeBackend{bookings: map[int64]booking.Booking{}}
	mux, _ := setup(t, backend)

	if rec := do(mux, http.MethodPost, "/api/v1/bookings/99/approve", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing booking, got %d", rec.Code)
	}
	if rec := do(mux, http.MethodPost, "/api/v1/bookings/99/teleport", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rec.Code)
	}
	if rec := do(mux, http.MethodPost, "/api/v1/bookings/abc/approve", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestGetBookingListsAvailableActions(t *testing.T) {
	backend := &fakeBackend{bookings: map[int64]booking.Booking{5: newBooking(5, booking.StatusPending)}}
	mux, _ := setup(t, backend)

	rec := do(mux, http.MethodGet, "/api/v1/bookings/5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		AvailableActions []string `json:"availableActions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"approve", "reject", "cancel"}
	if len(resp.AvailableActions) != len(want) {
		t.Fatalf("expected %v, got %v", want, resp.AvailableActions)
	}
	for i := range want {
		if resp.AvailableActions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, resp.AvailableActions)
		}
	}
}

func TestActionLogRecordsEveryAttempt(t *testing.T) {
	backend := &fakeBackend{bookings: map[int64]booking.Booking{6: newBooking(6, booking.StatusConfirmed)}}
	mux, _ := setup(t, backend)

	do(mux, http.MethodPost, "/api/v1/bookings/6/approve", "")
	do(mux, http.MethodPost, "/api/v1/bookings/6/cancel", "")

	rec := do(mux, http.MethodGet, "/api/v1/bookings/6/actions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp actionLogResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}
	outcomes := map[string]string{}
	for _, e := range resp.Entries {
		outcomes[e.Action] = e.Outcome
	}
	if outcomes["approve"] != actions.OutcomeGuardViolation || outcomes["cancel"] != actions.OutcomeSucceeded {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}
