package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newTestApp(t *testing.T, backend Backend) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sched := DefaultSchedule()
	store := newTestStore(t, backend)
	a := New(store, sched, discardLogger())
	a.Clock = func() time.Time { return monday }
	return a
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type slotOpenBody struct {
	Date string `json:"date"`
	Time string `json:"time"`
	Open bool   `json:"open"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandlers_BookingLifecycle(t *testing.T) {
	a := newTestApp(t, NewMemoryBackend())
	r := NewRouter(a, AuthConfig{})

	rec := doRequest(t, r, http.MethodPost, "/api/appointments", booking("2025-06-07"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[Appointment](t, rec)
	if created.ID == "" || created.Status != StatusConfirmed {
		t.Fatalf("unexpected created record: %+v", created)
	}

	rec = doRequest(t, r, http.MethodGet, "/api/slots/open?date=2025-06-07", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("slot open: expected 200, got %d", rec.Code)
	}
	if decode[slotOpenBody](t, rec).Open {
		t.Fatalf("expected booked slot to be reported taken")
	}

	rec = doRequest(t, r, http.MethodGet, "/api/slots/open?date=2025-06-07&exclude="+created.ID, nil, nil)
	if !decode[slotOpenBody](t, rec).Open {
		t.Fatalf("expected slot open when excluding its own appointment")
	}

	rec = doRequest(t, r, http.MethodGet, "/api/appointments/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	if got := decode[Appointment](t, rec); got != created {
		t.Fatalf("get mismatch: %+v", got)
	}

	rec = doRequest(t, r, http.MethodPatch, "/api/appointments/"+created.ID, map[string]string{"presentation_date": "2025-06-10"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[Appointment](t, rec); got.Status != StatusRescheduled || got.PresentationDate != "2025-06-10" {
		t.Fatalf("unexpected updated record: %+v", got)
	}

	rec = doRequest(t, r, http.MethodDelete, "/api/appointments/"+created.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rec.Code)
	}
	if got := decode[Appointment](t, rec); got.Status != StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", got.Status)
	}

	rec = doRequest(t, r, http.MethodPatch, "/api/appointments/"+created.ID, map[string]string{"area": "Elsewhere"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("update cancelled: expected 409, got %d", rec.Code)
	}
}

func TestHandlers_ListDates(t *testing.T) {
	a := newTestApp(t, NewMemoryBackend())
	r := NewRouter(a, AuthConfig{})

	if rec := doRequest(t, r, http.MethodPost, "/api/appointments", booking("2025-06-03"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := doRequest(t, r, http.MethodGet, "/api/dates?weeks=1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	dates := decode[[]DateAvailability](t, rec)
	if len(dates) != 2 {
		t.Fatalf("expected 2 dates, got %+v", dates)
	}
	if dates[0].Date != "2025-06-03" || dates[0].Weekday != "Tuesday" || dates[0].Open {
		t.Fatalf("unexpected first date: %+v", dates[0])
	}
	if dates[1].Date != "2025-06-07" || dates[1].Time != "12:00" || !dates[1].Open {
		t.Fatalf("unexpected second date: %+v", dates[1])
	}

	rec = doRequest(t, r, http.MethodGet, "/api/dates", nil, nil)
	if got := decode[[]DateAvailability](t, rec); len(got) != 8 {
		t.Fatalf("expected default window of 8 dates, got %d", len(got))
	}

	rec = doRequest(t, r, http.MethodGet, "/api/dates?from=2025-06-08&weeks=2", nil, nil)
	got := decode[[]DateAvailability](t, rec)
	if len(got) != 4 || got[0].Date != "2025-06-10" {
		t.Fatalf("unexpected dates from reference: %+v", got)
	}

	for _, q := range []string{"weeks=0", "weeks=53", "weeks=abc", "from=June"} {
		if rec := doRequest(t, r, http.MethodGet, "/api/dates?"+q, nil, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestHandlers_ErrorMapping(t *testing.T) {
	a := newTestApp(t, NewMemoryBackend())
	r := NewRouter(a, AuthConfig{})

	if rec := doRequest(t, r, http.MethodPost, "/api/appointments", booking("2025-06-07"), nil); rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate slot", http.MethodPost, "/api/appointments", booking("2025-06-07"), http.StatusConflict},
		{"wrong weekday", http.MethodPost, "/api/appointments", booking("2025-06-04"), http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/appointments", "not an object", http.StatusBadRequest},
		{"get missing", http.MethodGet, "/api/appointments/missing", nil, http.StatusNotFound},
		{"update missing", http.MethodPatch, "/api/appointments/missing", map[string]string{"area": "x"}, http.StatusNotFound},
		{"cancel missing", http.MethodDelete, "/api/appointments/missing", nil, http.StatusNotFound},
		{"slot without date", http.MethodGet, "/api/slots/open", nil, http.StatusBadRequest},
		{"slot bad date", http.MethodGet, "/api/slots/open?date=tomorrow", nil, http.StatusBadRequest},
		{"slot bad time", http.MethodGet, "/api/slots/open?date=2025-06-07&time=ab", nil, http.StatusBadRequest},
		{"slot trailing junk time", http.MethodGet, "/api/slots/open?date=2025-06-07&time=12:00xyz", nil, http.StatusBadRequest},
		{"unknown status filter", http.MethodGet, "/api/appointments?status=Pending", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, r, tc.method, tc.path, tc.body, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandlers_StoreUnavailable(t *testing.T) {
	a := newTestApp(t, failingBackend{err: errors.New("sheet unreachable")})
	r := NewRouter(a, AuthConfig{})

	for _, path := range []string{"/api/appointments", "/api/dates", "/api/slots/open?date=2025-06-07"} {
		rec := doRequest(t, r, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "sheet unreachable") {
			t.Fatalf("%s: backend detail leaked: %s", path, rec.Body.String())
		}
	}
}

func TestHandlers_ListFiltersAndGroups(t *testing.T) {
	a := newTestApp(t, NewMemoryBackend())
	r := NewRouter(a, AuthConfig{})

	first := decode[Appointment](t, doRequest(t, r, http.MethodPost, "/api/appointments", booking("2025-06-07"), nil))
	doRequest(t, r, http.MethodPost, "/api/appointments", booking("2025-06-10"), nil)
	doRequest(t, r, http.MethodDelete, "/api/appointments/"+first.ID, nil, nil)

	all := decode[[]Appointment](t, doRequest(t, r, http.MethodGet, "/api/appointments", nil, nil))
	if len(all) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(all))
	}

	cancelled := decode[[]Appointment](t, doRequest(t, r, http.MethodGet, "/api/appointments?status=Cancelled", nil, nil))
	if len(cancelled) != 1 || cancelled[0].ID != first.ID {
		t.Fatalf("unexpected cancelled filter result: %+v", cancelled)
	}

	groups := decode[StatusGroups](t, doRequest(t, r, http.MethodGet, "/api/appointments?group=status", nil, nil))
	if len(groups.Confirmed) != 1 || len(groups.Cancelled) != 1 || len(groups.Rescheduled) != 0 {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

func TestHandlers_EmptyListIsArray(t *testing.T) {
	a := newTestApp(t, NewMemoryBackend())
	r := NewRouter(a, AuthConfig{})

	rec := doRequest(t, r, http.MethodGet, "/api/appointments", nil, nil)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty JSON array, got %s", body)
	}
}

func TestHandlers_HealthAndReady(t *testing.T) {
	r := NewRouter(newTestApp(t, NewMemoryBackend()), AuthConfig{StaticTokens: []string{"secret"}})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, r, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 without auth, got %d", path, rec.Code)
		}
	}
}

func TestHandlers_RequestID(t *testing.T) {
	r := NewRouter(newTestApp(t, NewMemoryBackend()), AuthConfig{})

	rec := doRequest(t, r, http.MethodGet, "/healthz", nil, nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
	rec = doRequest(t, r, http.MethodGet, "/healthz", nil, map[string]string{RequestIDHeader: "abc-123"})
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-hmac-secret"
	r := NewRouter(newTestApp(t, NewMemoryBackend()), AuthConfig{
		StaticTokens: []string{"static-token"},
		JWTSecret:    secret,
	})

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "booking-desk",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "booking-desk",
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic static-token", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"static token", "Bearer static-token", http.StatusOK},
		{"valid jwt", "Bearer " + signed, http.StatusOK},
		{"forged jwt", "Bearer " + forged, http.StatusUnauthorized},
		{"expired jwt", "Bearer " + expired, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var header map[string]string
			if tc.header != "" {
				header = map[string]string{"Authorization": tc.header}
			}
			rec := doRequest(t, r, http.MethodGet, "/api/appointments", nil, header)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthConfig_Enabled(t *testing.T) {
	if (AuthConfig{}).Enabled() {
		t.Fatalf("expected empty config disabled")
	}
	if (AuthConfig{StaticTokens: []string{" ", ""}}).Enabled() {
		t.Fatalf("expected blank tokens disabled")
	}
	if !(AuthConfig{JWTSecret: "s"}).Enabled() {
		t.Fatalf("expected secret to enable auth")
	}
}
