package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careops/priority-token-scheduling/internal/token"
)

type CreateDoctorRequest struct {
	Name                string `json:"name"`
	Specialty           string `json:"specialty,omitempty"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int    `json:"max_patients_per_slot"`
}

type DoctorResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Specialty           string    `json:"specialty,omitempty"`
	StartTime           string    `json:"start_time"`
	EndTime             string    `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	MaxPatientsPerSlot  int       `json:"max_patients_per_slot"`
	CreatedAt           time.Time `json:"created_at"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Capacity  int       `json:"capacity"`
}

type AllocateTokenRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	Source      string `json:"source"`
	PatientName string `json:"patient_name"`
	Emergency   bool   `json:"emergency"`
}

type TokenResponse struct {
	ID            uuid.UUID `json:"id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	Date          string    `json:"date"`
	PatientName   string    `json:"patient_name"`
	Source        string    `json:"source"`
	PriorityScore int       `json:"priority_score"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type SlotViewResponse struct {
	SlotResponse
	ScheduledCount int             `json:"scheduled_count"`
	Tokens         []TokenResponse `json:"tokens"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toDoctorResponse(d token.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:                  d.ID,
		Name:                d.Name,
		Specialty:           d.Specialty,
		StartTime:           d.StartTime.String(),
		EndTime:             d.EndTime.String(),
		SlotDurationMinutes: d.SlotDurationMinutes,
		MaxPatientsPerSlot:  d.MaxPatientsPerSlot,
		CreatedAt:           d.CreatedAt,
	}
}

func toSlotResponse(s token.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date,
		StartTime: s.StartTime.String(),
		EndTime:   s.EndTime.String(),
		Capacity:  s.Capacity,
	}
}

func toTokenResponse(t token.Token) TokenResponse {
	return TokenResponse{
		ID:            t.ID,
		DoctorID:      t.DoctorID,
		SlotID:        t.SlotID,
		Date:          t.Date,
		PatientName:   t.PatientName,
		Source:        string(t.Source),
		PriorityScore: t.PriorityScore,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
	}
}

func toSlotViewResponse(v token.SlotView) SlotViewResponse {
	out := SlotViewResponse{
		SlotResponse:   toSlotResponse(v.Slot),
		ScheduledCount: v.ScheduledCount,
		Tokens:         make([]TokenResponse, 0, len(v.Tokens)),
	}
	for _, t := range v.Tokens {
		out.Tokens = append(out.Tokens, toTokenResponse(t))
	}
	return out
}
