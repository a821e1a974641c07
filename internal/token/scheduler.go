package token

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service owns the store and runs every scheduling operation under a single
// mutex, one mutation in flight at a time. The store is injected so tests
// and the simulator can run their own isolated instances.
type Service struct {
	mu    sync.Mutex
	store *Store
	log   zerolog.Logger
}

func NewService(store *Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
	}
}

// CreateDoctorParams describes a new doctor. The working window is
// [StartTime, EndTime) at minute granularity.
type CreateDoctorParams struct {
	Name                string
	Specialty           string
	StartTime           Clock
	EndTime             Clock
	SlotDurationMinutes int
	MaxPatientsPerSlot  int
}

func (s *Service) CreateDoctor(p CreateDoctorParams) (*Doctor, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDoctor)
	}
	if p.SlotDurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", ErrInvalidDoctor)
	}
	if p.MaxPatientsPerSlot <= 0 {
		return nil, fmt.Errorf("%w: max patients per slot must be positive", ErrInvalidDoctor)
	}
	if p.EndTime <= p.StartTime {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidDoctor)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := &Doctor{
		ID:                  uuid.New(),
		Name:                p.Name,
		Specialty:           p.Specialty,
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		SlotDurationMinutes: p.SlotDurationMinutes,
		MaxPatientsPerSlot:  p.MaxPatientsPerSlot,
		CreatedAt:           time.Now(),
	}
	s.store.addDoctor(d)

	out := *d
	return &out, nil
}

func (s *Service) ListDoctors() []Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.listDoctors()
}

// EnsureSlots lazily generates the day's slots for a doctor and returns them
// sorted by start time. Generation happens exactly once per (doctor, date);
// later calls return the existing sequence unchanged. A trailing interval
// shorter than the slot duration is not emitted.
func (s *Service) EnsureSlots(doctorID uuid.UUID, date string) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSlotsLocked(doctorID, date)
}

func (s *Service) ensureSlotsLocked(doctorID uuid.UUID, date string) ([]Slot, error) {
	doc, ok := s.store.doctor(doctorID)
	if !ok {
		return nil, ErrDoctorNotFound
	}

	existing := s.store.slotsFor(doctorID, date)
	if len(existing) == 0 {
		generated := generateSlots(doc, date)
		s.store.insertSlots(doctorID, date, generated)
		s.logEvent(nil, EventSlotsGenerated, map[string]any{
			"doctor_id": doctorID.String(),
			"date":      date,
			"count":     len(generated),
		})
		existing = s.store.slotsFor(doctorID, date)
	}

	out := make([]Slot, 0, len(existing))
	for _, sl := range existing {
		out = append(out, *sl)
	}
	return out, nil
}

func generateSlots(doc *Doctor, date string) []*Slot {
	var slots []*Slot
	now := time.Now()
	for cur := doc.StartTime; cur.Add(doc.SlotDurationMinutes) <= doc.EndTime; cur = cur.Add(doc.SlotDurationMinutes) {
		slots = append(slots, &Slot{
			ID:        uuid.New(),
			DoctorID:  doc.ID,
			Date:      date,
			StartTime: cur,
			EndTime:   cur.Add(doc.SlotDurationMinutes),
			Capacity:  doc.MaxPatientsPerSlot,
			CreatedAt: now,
		})
	}
	return slots
}

// AllocateRequest is a single booking request. Emergency overrides Source:
// the token is scored and stored as EMERGENCY regardless of the field value.
type AllocateRequest struct {
	DoctorID    uuid.UUID
	Date        string
	Source      string
	PatientName string
	Emergency   bool
}

// Allocate places a new token in the earliest slot with free capacity. When
// the day is full, emergencies get a second displacement pass: the least
// urgent occupant of a slot is moved to a later slot with room and the
// emergency takes its place. A failed allocation leaves the store untouched.
func (s *Service) Allocate(req AllocateRequest) (*Token, error) {
	var src Source
	var err error
	if req.Emergency {
		src = SourceEmergency
	} else {
		src, err = ParseSource(req.Source)
		if err != nil {
			return nil, err
		}
	}
	score := src.Score()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store.doctor(req.DoctorID); !ok {
		return nil, ErrDoctorNotFound
	}
	if _, err := s.ensureSlotsLocked(req.DoctorID, req.Date); err != nil {
		return nil, err
	}
	slots := s.store.slotsFor(req.DoctorID, req.Date)

	// Pass 1: earliest fit, emergencies included.
	for _, sl := range slots {
		if s.store.scheduledCount(sl.ID) < sl.Capacity {
			tok := s.placeToken(req, src, score, sl.ID)
			return tok, nil
		}
	}

	if src != SourceEmergency {
		return nil, ErrNoCapacity
	}

	if tok, ok := s.displaceLocked(slots, req, src, score); ok {
		return tok, nil
	}
	return nil, ErrNoCapacity
}

// displaceLocked is the emergency second pass. For each slot, capacity is
// rechecked (the freed unit may have appeared since the first pass) and the
// slot's least urgent occupant is bumped into the first later slot with
// room. When no later slot has room the scan moves on to the next candidate
// slot rather than giving up; nothing is committed until a candidate and a
// landing slot are both found.
func (s *Service) displaceLocked(slots []*Slot, req AllocateRequest, src Source, score int) (*Token, bool) {
	for i, sl := range slots {
		if s.store.scheduledCount(sl.ID) < sl.Capacity {
			return s.placeToken(req, src, score, sl.ID), true
		}

		occupants := s.store.scheduledBySlot(sl.ID)
		if len(occupants) == 0 {
			continue
		}
		victim := occupants[len(occupants)-1]
		if victim.PriorityScore >= score {
			continue
		}

		for j := i + 1; j < len(slots); j++ {
			later := slots[j]
			if s.store.scheduledCount(later.ID) >= later.Capacity {
				continue
			}
			from := victim.SlotID
			victim.SlotID = later.ID
			tok := s.placeToken(req, src, score, sl.ID)
			s.logEvent(&victim.ID, EventTokenBumped, map[string]any{
				"from_slot_id": from.String(),
				"to_slot_id":   later.ID.String(),
				"bumped_by":    tok.ID.String(),
			})
			s.log.Debug().
				Str("token_id", victim.ID.String()).
				Str("to_slot_id", later.ID.String()).
				Msg("occupant bumped for emergency")
			return tok, true
		}
	}

	return nil, false
}

func (s *Service) placeToken(req AllocateRequest, src Source, score int, slotID uuid.UUID) *Token {
	tok := &Token{
		ID:            uuid.New(),
		DoctorID:      req.DoctorID,
		SlotID:        slotID,
		Date:          req.Date,
		PatientName:   req.PatientName,
		Source:        src,
		PriorityScore: score,
		Status:        StatusScheduled,
		Seq:           s.store.nextSeq(),
		CreatedAt:     time.Now(),
	}
	s.store.addToken(tok)
	s.logEvent(&tok.ID, EventTokenAllocated, map[string]any{
		"slot_id": slotID.String(),
		"source":  string(src),
		"score":   score,
	})

	out := *tok
	return &out
}

// Cancel transitions a SCHEDULED token to CANCELLED and rebalances the
// vacated slot. CANCELLED and NO_SHOW are terminal.
func (s *Service) Cancel(tokenID uuid.UUID) (*Token, error) {
	return s.finish(tokenID, StatusCancelled, EventTokenCancelled)
}

// MarkNoShow transitions a SCHEDULED token to NO_SHOW and rebalances the
// vacated slot.
func (s *Service) MarkNoShow(tokenID uuid.UUID) (*Token, error) {
	return s.finish(tokenID, StatusNoShow, EventTokenNoShow)
}

func (s *Service) finish(tokenID uuid.UUID, to TokenStatus, eventType string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.store.token(tokenID)
	if !ok {
		return nil, ErrTokenNotFound
	}
	if tok.Status != StatusScheduled {
		return nil, ErrTokenNotCancellable
	}

	tok.Status = to
	s.logEvent(&tok.ID, eventType, map[string]any{
		"slot_id": tok.SlotID.String(),
	})
	s.rebalanceLocked(tok.DoctorID, tok.Date, tok.SlotID)

	out := *tok
	return &out, nil
}

// rebalanceLocked pulls one token forward into a freed slot: the first later
// slot holding any SCHEDULED token gives up its highest-priority one. A
// single unit of capacity was freed, so exactly one token moves; the
// cancellation does not cascade further down the day.
func (s *Service) rebalanceLocked(doctorID uuid.UUID, date string, freedSlotID uuid.UUID) {
	slots := s.store.slotsFor(doctorID, date)
	idx := -1
	for i, sl := range slots {
		if sl.ID == freedSlotID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	for j := idx + 1; j < len(slots); j++ {
		occupants := s.store.scheduledBySlot(slots[j].ID)
		if len(occupants) == 0 {
			continue
		}
		moved := occupants[0]
		from := moved.SlotID
		moved.SlotID = freedSlotID
		s.logEvent(&moved.ID, EventTokenRebalanced, map[string]any{
			"from_slot_id": from.String(),
			"to_slot_id":   freedSlotID.String(),
		})
		s.log.Debug().
			Str("token_id", moved.ID.String()).
			Str("to_slot_id", freedSlotID.String()).
			Msg("token pulled into freed slot")
		return
	}
}

// Lookup returns a token by id without mutating anything.
func (s *Service) Lookup(tokenID uuid.UUID) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.store.token(tokenID)
	if !ok {
		return nil, ErrTokenNotFound
	}
	out := *tok
	return &out, nil
}

// Schedule projects the current slot and token state of a doctor's day.
// It is read-only: a day with no prior activity comes back as an empty
// schedule rather than triggering slot generation.
func (s *Service) Schedule(doctorID uuid.UUID, date string) ([]SlotView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store.doctor(doctorID); !ok {
		return nil, ErrDoctorNotFound
	}

	slots := s.store.slotsFor(doctorID, date)
	views := make([]SlotView, 0, len(slots))
	for _, sl := range slots {
		occupants := s.store.scheduledBySlot(sl.ID)
		view := SlotView{
			Slot:           *sl,
			ScheduledCount: len(occupants),
			Tokens:         make([]Token, 0, len(occupants)),
		}
		for _, t := range occupants {
			view.Tokens = append(view.Tokens, *t)
		}
		views = append(views, view)
	}
	return views, nil
}

// Events returns the mutation event log in order.
func (s *Service) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.store.events))
	copy(out, s.store.events)
	return out
}

// Snapshot exports the full store state for persistence.
func (s *Service) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.snapshot()
}

// Restore replaces the store state with a previously persisted snapshot.
func (s *Service) Restore(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.restore(snap)
}

func (s *Service) logEvent(tokenID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := Event{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if tokenID != nil {
		id := *tokenID
		ev.TokenID = &id
	}
	s.store.appendEvent(ev)
}
