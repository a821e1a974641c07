package token

import (
	"testing"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	svc := newTestService(t)
	doc := createTestDoctor(t, svc, "09:00", "09:45", 15, 1)

	kept := book(t, svc, doc.ID, "PAID")
	cancelled := book(t, svc, doc.ID, "WALK_IN")
	if _, err := svc.Cancel(cancelled.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	snap := svc.Snapshot()

	restored := NewService(NewStore(), svc.log)
	restored.Restore(snap)

	views, err := restored.Schedule(doc.ID, testDate)
	if err != nil {
		t.Fatalf("Schedule after restore: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 slots after restore, got %d", len(views))
	}
	if views[0].ScheduledCount != 1 || views[0].Tokens[0].ID != kept.ID {
		t.Error("scheduled token did not survive the round trip")
	}

	got, err := restored.Lookup(cancelled.ID)
	if err != nil {
		t.Fatalf("Lookup after restore: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("cancelled token restored with status %s", got.Status)
	}

	if len(restored.Events()) != len(svc.Events()) {
		t.Error("event log did not survive the round trip")
	}

	// Sequence numbers keep advancing past the restored ones, so arrival
	// order tie-breaks stay correct for new bookings.
	next := book(t, restored, doc.ID, "WALK_IN")
	if next.Seq <= kept.Seq {
		t.Errorf("new token seq %d does not advance past restored seq %d", next.Seq, kept.Seq)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	svc := newTestService(t)
	doc := createTestDoctor(t, svc, "09:00", "09:30", 15, 1)
	tok := book(t, svc, doc.ID, "WALK_IN")

	snap := svc.Snapshot()
	snap.Tokens[0].Status = StatusNoShow

	got, err := svc.Lookup(tok.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Status != StatusScheduled {
		t.Error("mutating a snapshot leaked into the live store")
	}
}
