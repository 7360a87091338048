package schedule

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSlotAvailable is returned when the scan horizon is exhausted without a
// legal slot. It is fatal to the whole schedule run: either the window cannot
// fit the batch or the channel is already saturated.
var ErrNoSlotAvailable = errors.New("no publish slot available within horizon")

// DefaultSlotBuffer keeps assignments clear of the platform's own
// "publishAt must be in the future" validation.
const DefaultSlotBuffer = 5 * time.Minute

// DefaultHorizonDays bounds how far ahead the calculator scans.
const DefaultHorizonDays = 30

// Window describes a channel's daily publishing window in its local timezone.
// EndHour is the hour of the last slot of the day: slots sit at
// StartHour + k*IntervalHours for every value up to and including EndHour.
type Window struct {
	Location      *time.Location
	StartHour     int
	EndHour       int
	IntervalHours int
	HorizonDays   int
	Buffer        time.Duration
}

// SlotsPerDay returns how many slots fit in one day of the window.
func (w Window) SlotsPerDay() int {
	return (w.EndHour-w.StartHour)/w.IntervalHours + 1
}

func (w Window) horizon() int {
	if w.HorizonDays > 0 {
		return w.HorizonDays
	}
	return DefaultHorizonDays
}

func (w Window) buffer() time.Duration {
	if w.Buffer > 0 {
		return w.Buffer
	}
	return DefaultSlotBuffer
}

// OccupiedSet holds slots already claimed on the platform, keyed by UTC
// instant at minute grain. Local wall-clock hours are never compared
// directly; DST shifts can map two local times to one UTC instant.
type OccupiedSet map[int64]struct{}

// NewOccupiedSet normalizes platform-reported timestamps into a set.
func NewOccupiedSet(times []time.Time) OccupiedSet {
	set := make(OccupiedSet, len(times))
	for _, t := range times {
		set.Add(t)
	}
	return set
}

// Add inserts a timestamp into the set.
func (s OccupiedSet) Add(t time.Time) {
	s[slotKey(t)] = struct{}{}
}

// Contains reports whether the slot is already claimed.
func (s OccupiedSet) Contains(t time.Time) bool {
	_, ok := s[slotKey(t)]
	return ok
}

func slotKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Minute).Unix()
}

// NextAvailableSlot returns the chronologically first legal, unoccupied slot
// at or after max(now, searchStart). Today's remaining slots are exhausted
// before the day counter advances, so near-term gaps are always filled ahead
// of far-future appends. Pure computation, no I/O.
func NextAvailableSlot(now time.Time, w Window, occupied OccupiedSet, searchStart time.Time) (time.Time, error) {
	if w.Location == nil {
		w.Location = time.UTC
	}
	if w.IntervalHours <= 0 {
		return time.Time{}, fmt.Errorf("window interval must be positive, got %d", w.IntervalHours)
	}
	if w.StartHour > w.EndHour {
		return time.Time{}, fmt.Errorf("window start hour %d past end hour %d", w.StartHour, w.EndHour)
	}

	// Slots must sit strictly past the safety buffer and at or past the
	// caller's search floor.
	earliest := now.Add(w.buffer())
	start := earliest
	if searchStart.After(start) {
		start = searchStart
	}

	day := start.In(w.Location)
	for d := 0; d <= w.horizon(); d++ {
		for hour := w.StartHour; hour <= w.EndHour; hour += w.IntervalHours {
			// time.Date normalizes wall-clock times skipped by a DST
			// spring-forward onto the next real instant.
			slot := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, w.Location)
			if !slot.After(earliest) {
				continue
			}
			if slot.Before(searchStart) {
				continue
			}
			if occupied.Contains(slot) {
				continue
			}
			return slot.UTC(), nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrNoSlotAvailable
}
