package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

// ErrStoreUnavailable marks transient store failures. Requests failing
// with it are safe to retry; implementations wrap it so errors.Is works.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError rejects a malformed request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is a hard overlap against committed records. It names
// every colliding record so the caller can render a precise message.
type ConflictError struct {
	RecordIDs []string
}

func (e *ConflictError) Error() string {
	if len(e.RecordIDs) == 0 {
		return "time window conflicts with a committed record"
	}
	return "time window conflicts with " + strings.Join(e.RecordIDs, ", ")
}

// StaleStateError means the transition precondition no longer holds:
// someone else changed the record first. Re-fetch and retry.
type StaleStateError struct {
	ID      string
	Current model.Status
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("appointment %s is now %s; transition precondition no longer holds", e.ID, e.Current)
}

// ForbiddenError rejects an actor that lacks permission for the
// requested operation or edge.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

// NotFoundError reports an unknown appointment, host or visitor id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictWarning is informational: the requested window overlaps an
// existing record but creation proceeds anyway (soft-conflict policy for
// pending pile-ups; committed overlaps are warned on creation too since a
// new request is born pending and breaks no invariant).
type ConflictWarning struct {
	RecordID        string       `json:"record_id"`
	Status          model.Status `json:"status"`
	ScheduledTime   string       `json:"scheduled_time"`
	DurationMinutes int          `json:"duration_minutes"`
}
