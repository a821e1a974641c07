package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careops/priority-token-scheduling/internal/token"
)

// PgPersister keeps the snapshot in Postgres. Save rewrites the tables in a
// single transaction; a day's worth of slots and tokens is small enough that
// a full rewrite beats tracking row-level diffs.
type PgPersister struct {
	pool *pgxpool.Pool
}

func NewPgPersister(pool *pgxpool.Pool) *PgPersister {
	return &PgPersister{pool: pool}
}

// EnsureSchema creates the snapshot tables when they are missing.
func (p *PgPersister) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS doctors (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			specialty text,
			start_time text NOT NULL,
			end_time text NOT NULL,
			slot_duration_minutes int NOT NULL,
			max_patients_per_slot int NOT NULL,
			created_at timestamptz NOT NULL
		);
		CREATE TABLE IF NOT EXISTS slots (
			id uuid PRIMARY KEY,
			doctor_id uuid NOT NULL,
			date text NOT NULL,
			start_time text NOT NULL,
			end_time text NOT NULL,
			capacity int NOT NULL,
			created_at timestamptz NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tokens (
			id uuid PRIMARY KEY,
			doctor_id uuid NOT NULL,
			slot_id uuid NOT NULL,
			date text NOT NULL,
			patient_name text NOT NULL,
			source text NOT NULL,
			priority_score int NOT NULL,
			status text NOT NULL,
			seq bigint NOT NULL,
			created_at timestamptz NOT NULL
		);
		CREATE TABLE IF NOT EXISTS schedule_events (
			id bigint PRIMARY KEY,
			event_type text NOT NULL,
			token_id uuid,
			payload jsonb,
			created_at timestamptz NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PgPersister) Save(ctx context.Context, snap *token.Snapshot) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"schedule_events", "tokens", "slots", "doctors"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, d := range snap.Doctors {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, start_time, end_time, slot_duration_minutes, max_patients_per_slot, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, d.ID, d.Name, nullableString(d.Specialty), d.StartTime.String(), d.EndTime.String(),
			d.SlotDurationMinutes, d.MaxPatientsPerSlot, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
	}

	for _, s := range snap.Slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, doctor_id, date, start_time, end_time, capacity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, s.ID, s.DoctorID, s.Date, s.StartTime.String(), s.EndTime.String(), s.Capacity, s.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	for _, t := range snap.Tokens {
		_, err := tx.Exec(ctx, `
			INSERT INTO tokens (id, doctor_id, slot_id, date, patient_name, source, priority_score, status, seq, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, t.ID, t.DoctorID, t.SlotID, t.Date, t.PatientName, string(t.Source), t.PriorityScore,
			string(t.Status), int64(t.Seq), t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
	}

	for _, ev := range snap.Events {
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_events (id, event_type, token_id, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, ev.ID, ev.EventType, ev.TokenID, []byte(ev.Payload), ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

func (p *PgPersister) Load(ctx context.Context) (*token.Snapshot, error) {
	snap := &token.Snapshot{}

	rows, err := p.pool.Query(ctx, `
		SELECT id, name, specialty, start_time, end_time, slot_duration_minutes, max_patients_per_slot, created_at
		FROM doctors
	`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Doctors = append(snap.Doctors, *d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, capacity, created_at
		FROM slots
	`)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Slots = append(snap.Slots, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT id, doctor_id, slot_id, date, patient_name, source, priority_score, status, seq, created_at
		FROM tokens
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Tokens = append(snap.Tokens, *t)
		if t.Seq > snap.Seq {
			snap.Seq = t.Seq
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT id, event_type, token_id, payload, created_at
		FROM schedule_events
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for rows.Next() {
		var ev token.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.TokenID, &payload, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = payload
		snap.Events = append(snap.Events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	if len(snap.Doctors) == 0 && len(snap.Slots) == 0 && len(snap.Tokens) == 0 {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

func scanDoctor(row pgx.Row) (*token.Doctor, error) {
	var d token.Doctor
	var specialty *string
	var start, end string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&start,
		&end,
		&d.SlotDurationMinutes,
		&d.MaxPatientsPerSlot,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan doctor: %w", err)
	}

	if specialty != nil {
		d.Specialty = *specialty
	}
	if d.StartTime, err = token.ParseClock(start); err != nil {
		return nil, fmt.Errorf("doctor start time: %w", err)
	}
	if d.EndTime, err = token.ParseClock(end); err != nil {
		return nil, fmt.Errorf("doctor end time: %w", err)
	}
	return &d, nil
}

func scanSlot(row pgx.Row) (*token.Slot, error) {
	var s token.Slot
	var start, end string

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&start,
		&end,
		&s.Capacity,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan slot: %w", err)
	}

	if s.StartTime, err = token.ParseClock(start); err != nil {
		return nil, fmt.Errorf("slot start time: %w", err)
	}
	if s.EndTime, err = token.ParseClock(end); err != nil {
		return nil, fmt.Errorf("slot end time: %w", err)
	}
	return &s, nil
}

func scanToken(row pgx.Row) (*token.Token, error) {
	var t token.Token
	var source, status string
	var seq int64

	err := row.Scan(
		&t.ID,
		&t.DoctorID,
		&t.SlotID,
		&t.Date,
		&t.PatientName,
		&source,
		&t.PriorityScore,
		&status,
		&seq,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}

	t.Source = token.Source(source)
	t.Status = token.TokenStatus(status)
	t.Seq = uint64(seq)
	return &t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
