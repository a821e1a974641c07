package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	redisclient "github.com/careops/priority-token-scheduling/internal/redis"
	"github.com/careops/priority-token-scheduling/internal/token"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := token.NewService(token.NewStore(), zerolog.Nop())
	return NewRouter(RouterConfig{
		Service: svc,
		Locker:  redisclient.NewNoopLocker(),
		Logger:  zerolog.Nop(),
		Env:     "test",
		Version: "test",
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createDoctorViaAPI(t *testing.T, router http.Handler) DoctorResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/doctors", CreateDoctorRequest{
		Name:                "Dr. Vega",
		Specialty:           "General Practice",
		StartTime:           "09:00",
		EndTime:             "09:30",
		SlotDurationMinutes: 15,
		MaxPatientsPerSlot:  1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create doctor: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[DoctorResponse](t, rec)
}

func TestCreateDoctorValidatesTimes(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/doctors", CreateDoctorRequest{
		Name:                "Dr. Vega",
		StartTime:           "late morning",
		EndTime:             "12:00",
		SlotDurationMinutes: 15,
		MaxPatientsPerSlot:  1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad start time, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/doctors", CreateDoctorRequest{
		Name:                "Dr. Vega",
		StartTime:           "09:00",
		EndTime:             "12:00",
		SlotDurationMinutes: 0,
		MaxPatientsPerSlot:  1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a zero slot duration, got %d", rec.Code)
	}
}

func TestListSlotsGeneratesDay(t *testing.T) {
	router := newTestRouter(t)
	doc := createDoctorViaAPI(t, router)

	rec := doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?date=2026-03-02", doc.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	slots := decodeBody[[]SlotResponse](t, rec)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].StartTime != "09:00" || slots[1].StartTime != "09:15" {
		t.Errorf("slot times %s, %s", slots[0].StartTime, slots[1].StartTime)
	}
}

func TestListSlotsRejectsBadDate(t *testing.T) {
	router := newTestRouter(t)
	doc := createDoctorViaAPI(t, router)

	rec := doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?date=03-02-2026", doc.ID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed date, got %d", rec.Code)
	}
}

func TestAllocateFlow(t *testing.T) {
	router := newTestRouter(t)
	doc := createDoctorViaAPI(t, router)

	alloc := func(source string, emergency bool) *httptest.ResponseRecorder {
		return doJSON(t, router, http.MethodPost, "/tokens", AllocateTokenRequest{
			DoctorID:    doc.ID.String(),
			Date:        "2026-03-02",
			Source:      source,
			PatientName: "Ada",
			Emergency:   emergency,
		})
	}

	rec := alloc("WALK_IN", false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first booking: status %d body %s", rec.Code, rec.Body.String())
	}
	first := decodeBody[TokenResponse](t, rec)
	if first.Status != "SCHEDULED" || first.PriorityScore != 1 {
		t.Errorf("unexpected token %+v", first)
	}

	if rec := alloc("WALK_IN", false); rec.Code != http.StatusCreated {
		t.Fatalf("second booking: status %d", rec.Code)
	}

	// Day is full: a third booking conflicts, and so does an emergency
	// with no later free slot to displace into.
	if rec := alloc("WALK_IN", false); rec.Code != http.StatusConflict {
		t.Errorf("third booking: expected 409, got %d", rec.Code)
	}
	if rec := alloc("", true); rec.Code != http.StatusConflict {
		t.Errorf("emergency on full day: expected 409, got %d", rec.Code)
	}
}

func TestAllocateRejectsInvalidSource(t *testing.T) {
	router := newTestRouter(t)
	doc := createDoctorViaAPI(t, router)

	rec := doJSON(t, router, http.MethodPost, "/tokens", AllocateTokenRequest{
		DoctorID:    doc.ID.String(),
		Date:        "2026-03-02",
		Source:      "VIP",
		PatientName: "Ada",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	body := decodeBody[ErrorResponse](t, rec)
	if body.Error != "invalid_source" {
		t.Errorf("error code %q", body.Error)
	}
}

func TestAllocateUnknownDoctor(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/tokens", AllocateTokenRequest{
		DoctorID:    "0b5c6c77-6be7-4a3a-9c2f-9c0f2f3d9e10",
		Date:        "2026-03-02",
		Source:      "ONLINE",
		PatientName: "Ada",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCancelAndNoShow(t *testing.T) {
	router := newTestRouter(t)
	doc := createDoctorViaAPI(t, router)

	var ids []string
	for i := 0; i < 2; i++ {
		rec := doJSON(t, router, http.MethodPost, "/tokens", AllocateTokenRequest{
			DoctorID:    doc.ID.String(),
			Date:        "2026-03-02",
			Source:      "ONLINE",
			PatientName: "Ada",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("booking %d: status %d", i, rec.Code)
		}
		ids = append(ids, decodeBody[TokenResponse](t, rec).ID.String())
	}

	rec := doJSON(t, router, http.MethodPost, "/tokens/"+ids[0]+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[TokenResponse](t, rec).Status; got != "CANCELLED" {
		t.Errorf("status %s after cancel", got)
	}

	// Terminal tokens collapse to 404 on any further transition.
	if rec := doJSON(t, router, http.MethodPost, "/tokens/"+ids[0]+"/cancel", nil); rec.Code != http.StatusNotFound {
		t.Errorf("double cancel: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/tokens/"+ids[1]+"/no-show", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("no-show: status %d", rec.Code)
	}
	if got := decodeBody[TokenResponse](t, rec).Status; got != "NO_SHOW" {
		t.Errorf("status %s after no-show", got)
	}
}

func TestCancelUnknownTokenIs404(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/tokens/5f64d9cb-3a7e-44a6-b8d6-cf33a8070e7d/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestScheduleView(t *testing.T) {
	router := newTestRouter(t)
	doc := createDoctorViaAPI(t, router)

	// Read-only: before any booking the schedule is empty, not generated.
	rec := doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/doctors/%s/schedule?date=2026-03-02", doc.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule: status %d", rec.Code)
	}
	if views := decodeBody[[]SlotViewResponse](t, rec); len(views) != 0 {
		t.Errorf("expected empty schedule, got %d slots", len(views))
	}

	if rec := doJSON(t, router, http.MethodPost, "/tokens", AllocateTokenRequest{
		DoctorID:    doc.ID.String(),
		Date:        "2026-03-02",
		Source:      "PAID",
		PatientName: "Ada",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("booking: status %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/doctors/%s/schedule?date=2026-03-02", doc.ID), nil)
	views := decodeBody[[]SlotViewResponse](t, rec)
	if len(views) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(views))
	}
	if views[0].ScheduledCount != 1 || len(views[0].Tokens) != 1 {
		t.Errorf("first slot view %+v", views[0])
	}
	if views[0].Tokens[0].Source != "PAID" {
		t.Errorf("token source %s", views[0].Tokens[0].Source)
	}
}

func TestHealthLiveness(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness: status %d", rec.Code)
	}
	resp := decodeBody[LivenessResponse](t, rec)
	if resp.Status != "ok" {
		t.Errorf("status %q", resp.Status)
	}
}

func TestReadinessWithDisabledDependencies(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readiness: status %d", rec.Code)
	}
	resp := decodeBody[ReadinessResponse](t, rec)
	if resp.Dependencies["postgres"] != "disabled" || resp.Dependencies["redis"] != "disabled" {
		t.Errorf("dependencies %v", resp.Dependencies)
	}
}
