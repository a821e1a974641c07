// Command simulate drives one clinic day through the scheduler in process:
// bulk bookings across the patient classes, a cancellation, a no-show, and a
// burst of emergencies, then prints the event log and the final schedules.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careops/priority-token-scheduling/internal/token"
)

type SimConfig struct {
	Date        string
	Doctors     int
	Bookings    int
	Emergencies int
	Seed        int64
}

type SimCounts struct {
	Booked     int
	Rejected   int
	Cancelled  int
	NoShows    int
	EmergOK    int
	EmergFail  int
	Rebalanced int
	Bumped     int
}

func main() {
	cfg := loadConfig()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	logger.Info().
		Str("date", cfg.Date).
		Int("doctors", cfg.Doctors).
		Int("bookings", cfg.Bookings).
		Int("emergencies", cfg.Emergencies).
		Int64("seed", cfg.Seed).
		Msg("simulation starting")

	rng := rand.New(rand.NewSource(cfg.Seed))
	faker := gofakeit.New(uint64(cfg.Seed))

	store := token.NewStore()
	svc := token.NewService(store, logger.Level(zerolog.InfoLevel))

	doctors := createDoctors(svc, faker, cfg.Doctors)
	counts := SimCounts{}

	sources := []string{
		string(token.SourcePaid),
		string(token.SourceFollowUp),
		string(token.SourceOnline),
		string(token.SourceWalkIn),
	}

	var booked []uuid.UUID
	for i := 0; i < cfg.Bookings; i++ {
		doc := doctors[rng.Intn(len(doctors))]
		tok, err := svc.Allocate(token.AllocateRequest{
			DoctorID:    doc.ID,
			Date:        cfg.Date,
			Source:      sources[rng.Intn(len(sources))],
			PatientName: faker.Name(),
		})
		if err != nil {
			if errors.Is(err, token.ErrNoCapacity) {
				counts.Rejected++
				continue
			}
			logger.Fatal().Err(err).Msg("booking failed unexpectedly")
		}
		counts.Booked++
		booked = append(booked, tok.ID)
	}

	// One cancellation and one no-show, each vacating an early slot so the
	// rebalancer has something to pull forward.
	if len(booked) > 0 {
		if _, err := svc.Cancel(booked[0]); err == nil {
			counts.Cancelled++
		}
	}
	if len(booked) > 1 {
		if _, err := svc.MarkNoShow(booked[1]); err == nil {
			counts.NoShows++
		}
	}

	for i := 0; i < cfg.Emergencies; i++ {
		doc := doctors[rng.Intn(len(doctors))]
		_, err := svc.Allocate(token.AllocateRequest{
			DoctorID:    doc.ID,
			Date:        cfg.Date,
			PatientName: faker.Name(),
			Emergency:   true,
		})
		if err != nil {
			if errors.Is(err, token.ErrNoCapacity) {
				counts.EmergFail++
				continue
			}
			logger.Fatal().Err(err).Msg("emergency failed unexpectedly")
		}
		counts.EmergOK++
	}

	for _, ev := range svc.Events() {
		switch ev.EventType {
		case token.EventTokenBumped:
			counts.Bumped++
		case token.EventTokenRebalanced:
			counts.Rebalanced++
		}
	}

	printReport(svc, doctors, cfg, counts)
}

func loadConfig() SimConfig {
	return SimConfig{
		Date:        getEnv("SIM_DATE", time.Now().Format("2006-01-02")),
		Doctors:     getInt("SIM_DOCTORS", 3),
		Bookings:    getInt("SIM_BOOKINGS", 40),
		Emergencies: getInt("SIM_EMERGENCIES", 4),
		Seed:        int64(getInt("SIM_SEED", int(time.Now().UnixNano()))),
	}
}

func createDoctors(svc *token.Service, faker *gofakeit.Faker, n int) []token.Doctor {
	specialties := []string{
		"General Practice",
		"Cardiology",
		"Dermatology",
		"Pediatrics",
		"Orthopedics",
	}

	windows := []struct {
		start, end string
		duration   int
		capacity   int
	}{
		{"09:00", "13:00", 15, 2},
		{"10:00", "14:00", 20, 1},
		{"08:30", "12:30", 30, 3},
	}

	var out []token.Doctor
	for i := 0; i < n; i++ {
		w := windows[i%len(windows)]
		start, _ := token.ParseClock(w.start)
		end, _ := token.ParseClock(w.end)
		doc, err := svc.CreateDoctor(token.CreateDoctorParams{
			Name:                "Dr. " + faker.Name(),
			Specialty:           specialties[i%len(specialties)],
			StartTime:           start,
			EndTime:             end,
			SlotDurationMinutes: w.duration,
			MaxPatientsPerSlot:  w.capacity,
		})
		if err != nil {
			panic(err)
		}
		out = append(out, *doc)
	}
	return out
}

func printReport(svc *token.Service, doctors []token.Doctor, cfg SimConfig, counts SimCounts) {
	line := strings.Repeat("=", 80)

	fmt.Println("\n" + line)
	fmt.Println("DAY SIMULATION REPORT -", cfg.Date)
	fmt.Println(line)
	fmt.Printf("Bookings: %d placed, %d rejected (day full)\n", counts.Booked, counts.Rejected)
	fmt.Printf("Cancellations: %d, no-shows: %d, rebalanced: %d\n", counts.Cancelled, counts.NoShows, counts.Rebalanced)
	fmt.Printf("Emergencies: %d admitted (%d via bump), %d refused\n", counts.EmergOK, counts.Bumped, counts.EmergFail)

	fmt.Println("\nEVENT LOG")
	for _, ev := range svc.Events() {
		id := "-"
		if ev.TokenID != nil {
			id = shortID(*ev.TokenID)
		}
		fmt.Printf("  %4d %-18s token=%s %s\n", ev.ID, ev.EventType, id, string(ev.Payload))
	}

	fmt.Println("\nFINAL SCHEDULES")
	for _, doc := range doctors {
		views, err := svc.Schedule(doc.ID, cfg.Date)
		if err != nil {
			fmt.Printf("  %s: schedule error: %v\n", doc.Name, err)
			continue
		}
		fmt.Printf("  %s (%s)\n", doc.Name, doc.Specialty)
		for _, v := range views {
			fmt.Printf("    %s-%s [%d/%d]", v.StartTime, v.EndTime, v.ScheduledCount, v.Capacity)
			for _, t := range v.Tokens {
				fmt.Printf("  %s(%s:%d)", t.PatientName, t.Source, t.PriorityScore)
			}
			fmt.Println()
		}
	}
	fmt.Println(line)
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
