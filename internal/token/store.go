package token

import (
	"errors"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrInvalidSource       = errors.New("unknown booking source")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrNoCapacity          = errors.New("no slot capacity available")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenNotCancellable = errors.New("token is not in a cancellable state")
	ErrInvalidDoctor       = errors.New("invalid doctor definition")
)

type dayKey struct {
	DoctorID uuid.UUID
	Date     string
}

// Store holds the three entity collections plus the event log. It is plain
// data with no locking of its own; the Service serializes access.
type Store struct {
	doctors     map[uuid.UUID]*Doctor
	doctorOrder []uuid.UUID
	slots       map[uuid.UUID]*Slot
	slotsByDay  map[dayKey][]*Slot
	tokens      map[uuid.UUID]*Token
	tokenOrder  []uuid.UUID
	events      []Event
	seq         uint64
}

func NewStore() *Store {
	return &Store{
		doctors:    make(map[uuid.UUID]*Doctor),
		slots:      make(map[uuid.UUID]*Slot),
		slotsByDay: make(map[dayKey][]*Slot),
		tokens:     make(map[uuid.UUID]*Token),
	}
}

func (st *Store) nextSeq() uint64 {
	st.seq++
	return st.seq
}

func (st *Store) addDoctor(d *Doctor) {
	st.doctors[d.ID] = d
	st.doctorOrder = append(st.doctorOrder, d.ID)
}

func (st *Store) doctor(id uuid.UUID) (*Doctor, bool) {
	d, ok := st.doctors[id]
	return d, ok
}

func (st *Store) listDoctors() []Doctor {
	out := make([]Doctor, 0, len(st.doctorOrder))
	for _, id := range st.doctorOrder {
		out = append(out, *st.doctors[id])
	}
	return out
}

// slotsFor returns the day's slots sorted by start time. The returned slice
// is the stored one; callers must not mutate it.
func (st *Store) slotsFor(doctorID uuid.UUID, date string) []*Slot {
	return st.slotsByDay[dayKey{DoctorID: doctorID, Date: date}]
}

func (st *Store) insertSlots(doctorID uuid.UUID, date string, slots []*Slot) {
	key := dayKey{DoctorID: doctorID, Date: date}
	for _, s := range slots {
		st.slots[s.ID] = s
	}
	day := append(st.slotsByDay[key], slots...)
	sort.Slice(day, func(i, j int) bool { return day[i].StartTime < day[j].StartTime })
	st.slotsByDay[key] = day
}

func (st *Store) addToken(t *Token) {
	st.tokens[t.ID] = t
	st.tokenOrder = append(st.tokenOrder, t.ID)
}

func (st *Store) token(id uuid.UUID) (*Token, bool) {
	t, ok := st.tokens[id]
	return t, ok
}

// scheduledCount counts the tokens currently occupying a slot. Only
// SCHEDULED tokens hold capacity.
func (st *Store) scheduledCount(slotID uuid.UUID) int {
	n := 0
	for _, id := range st.tokenOrder {
		t := st.tokens[id]
		if t.SlotID == slotID && t.Status == StatusScheduled {
			n++
		}
	}
	return n
}

// scheduledBySlot returns a slot's SCHEDULED tokens ranked by priority
// descending, ties broken by arrival order. The last element is the least
// urgent occupant, the first the most urgent.
func (st *Store) scheduledBySlot(slotID uuid.UUID) []*Token {
	var out []*Token
	for _, id := range st.tokenOrder {
		t := st.tokens[id]
		if t.SlotID == slotID && t.Status == StatusScheduled {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (st *Store) appendEvent(ev Event) {
	ev.ID = int64(len(st.events) + 1)
	st.events = append(st.events, ev)
}

func (st *Store) snapshot() *Snapshot {
	snap := &Snapshot{Seq: st.seq}
	for _, id := range st.doctorOrder {
		snap.Doctors = append(snap.Doctors, *st.doctors[id])
	}
	var days []dayKey
	for key := range st.slotsByDay {
		days = append(days, key)
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].DoctorID != days[j].DoctorID {
			return days[i].DoctorID.String() < days[j].DoctorID.String()
		}
		return days[i].Date < days[j].Date
	})
	for _, key := range days {
		for _, s := range st.slotsByDay[key] {
			snap.Slots = append(snap.Slots, *s)
		}
	}
	for _, id := range st.tokenOrder {
		snap.Tokens = append(snap.Tokens, *st.tokens[id])
	}
	snap.Events = append(snap.Events, st.events...)
	return snap
}

func (st *Store) restore(snap *Snapshot) {
	st.doctors = make(map[uuid.UUID]*Doctor, len(snap.Doctors))
	st.doctorOrder = st.doctorOrder[:0]
	st.slots = make(map[uuid.UUID]*Slot, len(snap.Slots))
	st.slotsByDay = make(map[dayKey][]*Slot)
	st.tokens = make(map[uuid.UUID]*Token, len(snap.Tokens))
	st.tokenOrder = st.tokenOrder[:0]
	st.events = nil
	st.seq = snap.Seq

	for i := range snap.Doctors {
		d := snap.Doctors[i]
		st.addDoctor(&d)
	}
	for i := range snap.Slots {
		s := snap.Slots[i]
		st.slots[s.ID] = &s
		key := dayKey{DoctorID: s.DoctorID, Date: s.Date}
		st.slotsByDay[key] = append(st.slotsByDay[key], &s)
	}
	for key, day := range st.slotsByDay {
		sort.Slice(day, func(i, j int) bool { return day[i].StartTime < day[j].StartTime })
		st.slotsByDay[key] = day
	}
	for i := range snap.Tokens {
		t := snap.Tokens[i]
		st.addToken(&t)
		if t.Seq > st.seq {
			st.seq = t.Seq
		}
	}
	st.events = append(st.events, snap.Events...)
}
