package token

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source is where a booking request came from. It is a closed set; anything
// else is rejected at parse time.
type Source string

const (
	SourceEmergency Source = "EMERGENCY"
	SourcePaid      Source = "PAID"
	SourceFollowUp  Source = "FOLLOW_UP"
	SourceOnline    Source = "ONLINE"
	SourceWalkIn    Source = "WALK_IN"
)

// Score returns the priority score for the source, higher meaning more
// urgent. Unknown sources score 0 and never get past ParseSource.
func (s Source) Score() int {
	switch s {
	case SourceEmergency:
		return 5
	case SourcePaid:
		return 4
	case SourceFollowUp:
		return 3
	case SourceOnline:
		return 2
	case SourceWalkIn:
		return 1
	default:
		return 0
	}
}

// ParseSource validates a source string against the known set.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	switch src {
	case SourceEmergency, SourcePaid, SourceFollowUp, SourceOnline, SourceWalkIn:
		return src, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
}

type TokenStatus string

const (
	StatusScheduled TokenStatus = "SCHEDULED"
	StatusCancelled TokenStatus = "CANCELLED"
	StatusNoShow    TokenStatus = "NO_SHOW"
)

// Clock is a local time of day at minute granularity, counted as minutes
// since midnight. It marshals as "HH:MM".
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add advances the clock by the given number of minutes.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Doctor is immutable once created. Working hours are the half-open window
// [StartTime, EndTime).
type Doctor struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Specialty           string    `json:"specialty,omitempty"`
	StartTime           Clock     `json:"start_time"`
	EndTime             Clock     `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int       `json:"max_patients_per_slot"`
	CreatedAt           time.Time `json:"created_at"`
}

// Slot is one interval [StartTime, EndTime) for one doctor on one date.
// Capacity is copied from the doctor at generation time; slots are never
// modified or deleted after generation.
type Slot struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime Clock     `json:"start_time"`
	EndTime   Clock     `json:"end_time"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

// Token is one patient's booking. SlotID is the only mutable reference: the
// allocator's displacement pass and the rebalancer move tokens between the
// existing slots of a day. Seq records arrival order for priority ties.
type Token struct {
	ID            uuid.UUID   `json:"id"`
	DoctorID      uuid.UUID   `json:"doctor_id"`
	SlotID        uuid.UUID   `json:"slot_id"`
	Date          string      `json:"date"`
	PatientName   string      `json:"patient_name"`
	Source        Source      `json:"source"`
	PriorityScore int         `json:"priority_score"`
	Status        TokenStatus `json:"status"`
	Seq           uint64      `json:"seq"`
	CreatedAt     time.Time   `json:"created_at"`
}

// SlotView is the read-only schedule projection of one slot: its timing,
// capacity, and the scheduled tokens ranked by priority.
type SlotView struct {
	Slot
	ScheduledCount int     `json:"scheduled_count"`
	Tokens         []Token `json:"tokens"`
}

// Event types recorded by the service on every mutation.
const (
	EventSlotsGenerated  = "SLOTS_GENERATED"
	EventTokenAllocated  = "TOKEN_ALLOCATED"
	EventTokenBumped     = "TOKEN_BUMPED"
	EventTokenCancelled  = "TOKEN_CANCELLED"
	EventTokenNoShow     = "TOKEN_NO_SHOW"
	EventTokenRebalanced = "TOKEN_REBALANCED"
)

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	TokenID   *uuid.UUID      `json:"token_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Snapshot is the full store state handed to a Persister after each
// successful mutation and restored at boot.
type Snapshot struct {
	Doctors []Doctor `json:"doctors"`
	Slots   []Slot   `json:"slots"`
	Tokens  []Token  `json:"tokens"`
	Events  []Event  `json:"events"`
	Seq     uint64   `json:"seq"`
}
