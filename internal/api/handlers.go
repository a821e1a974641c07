package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/priority-token-scheduling/internal/persist"
	redisclient "github.com/careops/priority-token-scheduling/internal/redis"
	"github.com/careops/priority-token-scheduling/internal/token"
)

// Handlers wires the scheduler to HTTP. Mutations run under the day lock
// when one is configured and the store is persisted after every successful
// write; persistence failures are logged, not surfaced, since the in-memory
// mutation has already committed.
type Handlers struct {
	svc       *token.Service
	locker    redisclient.Locker
	persister persist.Persister
	log       zerolog.Logger
}

func NewHandlers(svc *token.Service, locker redisclient.Locker, persister persist.Persister, log zerolog.Logger) *Handlers {
	return &Handlers{
		svc:       svc,
		locker:    locker,
		persister: persister,
		log:       log,
	}
}

func (h *Handlers) createDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	start, err := token.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
		return
	}
	end, err := token.ParseClock(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
		return
	}

	doc, err := h.svc.CreateDoctor(token.CreateDoctorParams{
		Name:                req.Name,
		Specialty:           req.Specialty,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: req.SlotDurationMinutes,
		MaxPatientsPerSlot:  req.MaxPatientsPerSlot,
	})
	if err != nil {
		if errors.Is(err, token.ErrInvalidDoctor) {
			writeError(w, http.StatusBadRequest, "invalid_doctor", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	h.persistAfterWrite(r.Context())
	writeJSON(w, http.StatusCreated, toDoctorResponse(*doc))
}

func (h *Handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	docs := h.svc.ListDoctors()
	out := make([]DoctorResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDoctorResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseDoctorID(w, r)
	if !ok {
		return
	}
	date, ok := parseDate(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	var slots []token.Slot
	err := h.locker.WithDayLock(r.Context(), doctorID, date, func(ctx context.Context) error {
		var err error
		slots, err = h.svc.EnsureSlots(doctorID, date)
		return err
	})
	if err != nil {
		h.handleScheduleError(w, err)
		return
	}

	h.persistAfterWrite(r.Context())

	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) allocateToken(w http.ResponseWriter, r *http.Request) {
	var req AllocateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	var tok *token.Token
	err = h.locker.WithDayLock(r.Context(), doctorID, date, func(ctx context.Context) error {
		var err error
		tok, err = h.svc.Allocate(token.AllocateRequest{
			DoctorID:    doctorID,
			Date:        date,
			Source:      req.Source,
			PatientName: req.PatientName,
			Emergency:   req.Emergency,
		})
		return err
	})
	if err != nil {
		h.handleAllocateError(w, err)
		return
	}

	h.persistAfterWrite(r.Context())
	writeJSON(w, http.StatusCreated, toTokenResponse(*tok))
}

func (h *Handlers) cancelToken(w http.ResponseWriter, r *http.Request) {
	h.finishToken(w, r, h.svc.Cancel)
}

func (h *Handlers) noShowToken(w http.ResponseWriter, r *http.Request) {
	h.finishToken(w, r, h.svc.MarkNoShow)
}

func (h *Handlers) finishToken(w http.ResponseWriter, r *http.Request, op func(uuid.UUID) (*token.Token, error)) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token_id", "id must be a valid UUID")
		return
	}

	// The day lock key needs the token's doctor and date, so look it up
	// first; the final status check still happens inside the operation.
	existing, err := h.svc.Lookup(id)
	if err != nil {
		h.handleTokenError(w, err)
		return
	}

	var tok *token.Token
	err = h.locker.WithDayLock(r.Context(), existing.DoctorID, existing.Date, func(ctx context.Context) error {
		var err error
		tok, err = op(id)
		return err
	})
	if err != nil {
		h.handleTokenError(w, err)
		return
	}

	h.persistAfterWrite(r.Context())
	writeJSON(w, http.StatusOK, toTokenResponse(*tok))
}

func (h *Handlers) getSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := parseDoctorID(w, r)
	if !ok {
		return
	}
	date, ok := parseDate(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	views, err := h.svc.Schedule(doctorID, date)
	if err != nil {
		h.handleScheduleError(w, err)
		return
	}

	out := make([]SlotViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toSlotViewResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleAllocateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, "invalid_source", err.Error())
	case errors.Is(err, token.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, token.ErrNoCapacity):
		writeError(w, http.StatusConflict, "no_capacity", "no slot capacity available for this day")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "day_being_modified", "this day is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handlers) handleTokenError(w http.ResponseWriter, err error) {
	switch {
	// A token that is absent or already terminal is the same not-found
	// class condition to callers.
	case errors.Is(err, token.ErrTokenNotFound),
		errors.Is(err, token.ErrTokenNotCancellable):
		writeError(w, http.StatusNotFound, "token_not_found", "token does not exist or is not cancellable")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "day_being_modified", "this day is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handlers) handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "day_being_modified", "this day is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *Handlers) persistAfterWrite(ctx context.Context) {
	if h.persister == nil {
		return
	}
	if err := h.persister.Save(ctx, h.svc.Snapshot()); err != nil {
		h.log.Error().Err(err).Msg("failed to persist snapshot after write")
	}
}

func parseDoctorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(w http.ResponseWriter, date string) (string, bool) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return "", false
	}
	return date, true
}
