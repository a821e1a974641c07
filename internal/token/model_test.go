package token

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"09:00", 9 * 60, false},
		{"00:00", 0, false},
		{"23:59", 23*60 + 59, false},
		{"9:05", 9*60 + 5, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"morning", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClockString(t *testing.T) {
	c, err := ParseClock("09:05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.String() != "09:05" {
		t.Errorf("expected 09:05, got %s", c.String())
	}
	if c.Add(55).String() != "10:00" {
		t.Errorf("expected 10:00 after adding 55 minutes, got %s", c.Add(55).String())
	}
}

func TestClockJSONRoundTrip(t *testing.T) {
	c, _ := ParseClock("14:30")
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"14:30"` {
		t.Errorf("expected \"14:30\", got %s", data)
	}

	var back Clock
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != c {
		t.Errorf("round trip changed value: %d != %d", back, c)
	}
}

func TestSourceScores(t *testing.T) {
	cases := []struct {
		src   Source
		score int
	}{
		{SourceEmergency, 5},
		{SourcePaid, 4},
		{SourceFollowUp, 3},
		{SourceOnline, 2},
		{SourceWalkIn, 1},
	}
	for _, tc := range cases {
		if got := tc.src.Score(); got != tc.score {
			t.Errorf("%s.Score() = %d, want %d", tc.src, got, tc.score)
		}
	}
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("WALK_IN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src != SourceWalkIn {
		t.Errorf("expected WALK_IN, got %s", src)
	}

	for _, bad := range []string{"walk_in", "VIP", "", "EMERG"} {
		if _, err := ParseSource(bad); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("ParseSource(%q): expected ErrInvalidSource, got %v", bad, err)
		}
	}
}
