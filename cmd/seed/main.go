// Command seed fills the Postgres store with fake doctors so the api-server
// has a roster to schedule against.
package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/careops/priority-token-scheduling/internal/db"
	"github.com/careops/priority-token-scheduling/internal/persist"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := persist.NewPgPersister(pool).EnsureSchema(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 25); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	// Working windows are varied so some doctors end up with a trailing
	// remainder that never becomes a slot.
	windows := []struct {
		start, end string
		duration   int
		capacity   int
	}{
		{"08:00", "12:00", 15, 1},
		{"09:00", "13:00", 20, 2},
		{"10:00", "16:00", 30, 2},
		{"09:30", "12:45", 25, 1},
		{"14:00", "18:00", 15, 3},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		w := windows[gofakeit.Number(0, len(windows)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, start_time, end_time, slot_duration_minutes, max_patients_per_slot, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		`, uuid.New(), "Dr. "+gofakeit.Name(), specialties[gofakeit.Number(0, len(specialties)-1)],
			w.start, w.end, w.duration, w.capacity)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
