// Package calendar projects appointments onto a fixed weekly grid for
// availability display. The grid is re-derivable from the store at any
// time; it holds no state of its own.
package calendar

import (
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

const (
	// Business day: 30-minute slots at :00 and :30 for hours 8 through 20,
	// i.e. 08:00 up to and including the 20:30 slot.
	dayStartHour = 8
	dayEndHour   = 20
	slotStep     = 30 * time.Minute

	// Appointments are not aligned to the grid; a record belongs to the
	// slot whose start it is nearest, within strictly under 15 minutes.
	matchTolerance = 15 * time.Minute

	DaysPerWeek = 7
	SlotsPerDay = (dayEndHour - dayStartHour + 1) * 2
)

type Slot struct {
	Start        time.Time
	Appointments []model.Appointment
}

type Day struct {
	Date  time.Time // midnight at the start of the day
	Slots []Slot
}

type Grid struct {
	WeekStart time.Time
	Days      []Day
}

// WeekStart returns midnight of the Monday of the week containing ref,
// in ref's location. A Sunday reference maps six days back.
func WeekStart(ref time.Time) time.Time {
	offset := (int(ref.Weekday()) + 6) % 7
	day := ref.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, ref.Location())
}

// Build lays the appointments onto the 7-day grid anchored at the week
// containing ref. Every appointment matching a slot is attached; slots
// with multiple matches keep all of them so overlaps stay visible.
func Build(ref time.Time, appts []model.Appointment) Grid {
	start := WeekStart(ref)
	grid := Grid{WeekStart: start, Days: make([]Day, 0, DaysPerWeek)}

	for d := 0; d < DaysPerWeek; d++ {
		date := start.AddDate(0, 0, d)
		day := Day{Date: date, Slots: make([]Slot, 0, SlotsPerDay)}
		for h := dayStartHour; h <= dayEndHour; h++ {
			for _, m := range []int{0, 30} {
				slotStart := time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, date.Location())
				day.Slots = append(day.Slots, Slot{
					Start:        slotStart,
					Appointments: matchSlot(slotStart, appts),
				})
			}
		}
		grid.Days = append(grid.Days, day)
	}
	return grid
}

// matchSlot picks appointments on the same calendar date whose start is
// within the tolerance of the slot start.
func matchSlot(slotStart time.Time, appts []model.Appointment) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		at := a.ScheduledTime.In(slotStart.Location())
		ay, am, ad := at.Date()
		sy, sm, sd := slotStart.Date()
		if ay != sy || am != sm || ad != sd {
			continue
		}
		delta := at.Sub(slotStart)
		if delta < 0 {
			delta = -delta
		}
		if delta < matchTolerance {
			out = append(out, a)
		}
	}
	return out
}
