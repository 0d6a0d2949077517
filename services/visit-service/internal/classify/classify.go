// Package classify decides whether a booking counts as a walk-in or a
// pre-planned visit. The result is stored on the appointment at creation
// and never re-evaluated, even if the booking is rescheduled later.
package classify

import (
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

// WalkInWindow is how far ahead a request still counts as a walk-in.
const WalkInWindow = 2 * time.Hour

// Kind classifies a requested time against the request instant. The
// boundary is inclusive: a booking exactly WalkInWindow out is a walk-in.
func Kind(now, scheduled time.Time) model.Type {
	if scheduled.After(now.Add(WalkInWindow)) {
		return model.TypePrePlanned
	}
	return model.TypeWalkIn
}
