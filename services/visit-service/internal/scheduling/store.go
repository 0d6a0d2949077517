package scheduling

import (
	"context"
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

// Event is the lifecycle event recorded atomically with a write. The
// store persists it to the transactional outbox (and audit trail) in the
// same unit of work, so a committed appointment change always has its
// event and vice versa.
type Event struct {
	Type    string
	ActorID string
	Payload []byte
}

// Store is the engine's persistence contract. The production
// implementation is the pgx-backed repository in internal/storage; tests
// use an in-memory store with the same compare-and-swap semantics.
//
// Every method is an atomic unit of work. Transition must be a
// compare-and-swap on status: of two concurrent calls with the same
// expected 'from', exactly one wins; the loser gets *StaleStateError.
// Transient infrastructure failures wrap ErrStoreUnavailable.
type Store interface {
	Create(ctx context.Context, appt model.Appointment, evt Event) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	Transition(ctx context.Context, id string, from, to model.Status, at time.Time, evt Event) (model.Appointment, error)
	// Reschedule applies only while the record is non-terminal; a
	// concurrent transition that finished it first surfaces as
	// *StaleStateError, same as losing the Transition swap.
	Reschedule(ctx context.Context, id string, scheduledTime time.Time, durationMinutes int, evt Event) (model.Appointment, error)

	// HostAppointments returns the host's records intersecting [from, to),
	// limited to the given statuses (nil means all), ordered by
	// scheduled time.
	HostAppointments(ctx context.Context, hostName string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error)
	VisitorAppointments(ctx context.Context, visitorID string) ([]model.Appointment, error)
	AllAppointments(ctx context.Context) ([]model.Appointment, error)
	// AppointmentsByStatus returns up to limit records in the given
	// statuses, newest first (the security console's activity feed).
	AppointmentsByStatus(ctx context.Context, statuses []model.Status, limit int) ([]model.Appointment, error)
}
