// Package conflict implements the interval math behind double-booking
// detection. It is read-only: callers load a host's appointments and ask
// which of them collide with a candidate window.
package conflict

import (
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: [a,b) overlaps [c,d) iff a < d && c < b.
// Back-to-back bookings sharing a boundary instant do not collide.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Window returns the appointment's occupied interval.
func Window(a model.Appointment) Interval {
	return Interval{Start: a.ScheduledTime, End: a.End()}
}

// Committed reports whether a status represents a real calendar
// commitment. Only committed records participate in the overlap
// invariant; pending requests may pile onto the same slot until one is
// accepted.
func Committed(s model.Status) bool {
	switch s {
	case model.StatusAccepted, model.StatusCheckedIn, model.StatusBlocked:
		return true
	}
	return false
}

// Overlapping returns the appointments whose windows intersect the
// candidate, restricted to committed statuses, preserving input order.
// excludeID skips the record being updated so it cannot conflict with
// itself.
func Overlapping(candidate Interval, appts []model.Appointment, excludeID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.ID == excludeID {
			continue
		}
		if !Committed(a.Status) {
			continue
		}
		if candidate.Overlaps(Window(a)) {
			out = append(out, a)
		}
	}
	return out
}

// Touching widens Overlapping to pending requests as well; it is used to
// surface soft conflicts (pending pile-ups on a popular slot) as warnings
// at booking time. Cancelled, rejected and completed records never count.
func Touching(candidate Interval, appts []model.Appointment, excludeID string) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.ID == excludeID {
			continue
		}
		if !Committed(a.Status) && a.Status != model.StatusPending {
			continue
		}
		if candidate.Overlaps(Window(a)) {
			out = append(out, a)
		}
	}
	return out
}
