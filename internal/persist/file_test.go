package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/careops/priority-token-scheduling/internal/token"
)

func TestFilePersisterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	p := NewFilePersister(path)

	store := token.NewStore()
	svc := token.NewService(store, zerolog.Nop())

	start, _ := token.ParseClock("09:00")
	end, _ := token.ParseClock("10:00")
	doc, err := svc.CreateDoctor(token.CreateDoctorParams{
		Name:                "Dr. Osei",
		Specialty:           "Cardiology",
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: 15,
		MaxPatientsPerSlot:  2,
	})
	if err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}
	tok, err := svc.Allocate(token.AllocateRequest{
		DoctorID:    doc.ID,
		Date:        "2026-03-02",
		Source:      "ONLINE",
		PatientName: "Ada",
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := p.Save(context.Background(), svc.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	restored := token.NewService(token.NewStore(), zerolog.Nop())
	restored.Restore(snap)

	views, err := restored.Schedule(doc.ID, "2026-03-02")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("expected 4 slots after reload, got %d", len(views))
	}
	if views[0].ScheduledCount != 1 || views[0].Tokens[0].ID != tok.ID {
		t.Error("token did not survive the file round trip")
	}
	if views[0].StartTime.String() != "09:00" {
		t.Errorf("slot start mangled: %s", views[0].StartTime)
	}
}

func TestFilePersisterLoadMissing(t *testing.T) {
	p := NewFilePersister(filepath.Join(t.TempDir(), "missing.json"))
	if _, err := p.Load(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestFilePersisterOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	p := NewFilePersister(path)

	if err := p.Save(context.Background(), &token.Snapshot{Seq: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := p.Save(context.Background(), &token.Snapshot{Seq: 2}); err != nil {
		t.Fatalf("Save (second): %v", err)
	}

	snap, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Seq != 2 {
		t.Errorf("expected latest snapshot, got seq %d", snap.Seq)
	}
}
