// Package scheduling is the appointment engine: creation with walk-in
// classification and soft-conflict warnings, the role-gated status state
// machine, duration/reschedule updates with hard conflict checks, and
// the read-side projections (host schedule, weekly availability grid,
// role-scoped listings).
//
// The engine is a stateless request handler; the Store is the only
// shared mutable resource, and concurrent writes to one appointment are
// serialized by the store's status compare-and-swap.
package scheduling

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/calendar"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/calendarsync"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/classify"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/conflict"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/lifecycle"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

// MinDurationMinutes is the smallest bookable appointment. The 15-minute
// step is recommended to callers but not enforced.
const (
	MinDurationMinutes     = 15
	DefaultDurationMinutes = 60
)

// Actor identifies who is asking, threaded explicitly through every
// call; the engine never reads identity from ambient state.
type Actor struct {
	ID   string
	Name string
	Role model.Role
}

type Service struct {
	store  Store
	busy   calendarsync.Provider
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the engine clock; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBusyProvider enables external calendar busy lookups.
func WithBusyProvider(p calendarsync.Provider) Option {
	return func(s *Service) { s.busy = p }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	VisitorID       string
	HostName        string
	Purpose         string
	ScheduledTime   time.Time
	DurationMinutes int
}

// CreateAppointment books a visit request. The appointment type is
// classified once against the engine clock and frozen. Overlaps with
// existing records come back as warnings, never as a rejection: pending
// requests may pile onto a slot and the first acceptance wins.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, req CreateRequest) (model.Appointment, []ConflictWarning, error) {
	switch actor.Role {
	case model.RoleVisitor:
		if req.VisitorID == "" {
			req.VisitorID = actor.ID
		}
		if req.VisitorID != actor.ID {
			return model.Appointment{}, nil, &ForbiddenError{Reason: "visitors may only book for themselves"}
		}
	case model.RoleEmployee, model.RoleAdmin:
		// Staff book on behalf of any visitor.
	default:
		return model.Appointment{}, nil, &ForbiddenError{Reason: "role " + string(actor.Role) + " cannot create appointments"}
	}

	now := s.now()
	if err := validateBooking(req.HostName, req.ScheduledTime, now); err != nil {
		return model.Appointment{}, nil, err
	}
	if req.VisitorID == "" {
		return model.Appointment{}, nil, &ValidationError{Field: "visitor_id", Reason: "visitor identification required"}
	}
	duration, err := normalizeDuration(req.DurationMinutes)
	if err != nil {
		return model.Appointment{}, nil, err
	}

	visitorID := req.VisitorID
	appt := model.Appointment{
		ID:              uuid.NewString(),
		VisitorID:       &visitorID,
		HostName:        req.HostName,
		Purpose:         req.Purpose,
		Type:            classify.Kind(now, req.ScheduledTime),
		Status:          model.StatusPending,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: duration,
		CreatedByRole:   actor.Role,
		CreatedAt:       now,
	}

	warnings, err := s.bookingWarnings(ctx, appt)
	if err != nil {
		return model.Appointment{}, nil, err
	}

	evt, err := lifecycleEvent("visitgate.appointment.requested.v1", actor, appt)
	if err != nil {
		return model.Appointment{}, nil, err
	}
	if err := s.store.Create(ctx, appt, evt); err != nil {
		return model.Appointment{}, nil, err
	}
	return appt, warnings, nil
}

type BlockRequest struct {
	HostName        string
	Purpose         string
	ScheduledTime   time.Time
	DurationMinutes int
}

// CreateBlock reserves a host's own time. Blocks skip approval (they are
// self-authorized) and commit immediately, so an overlap with any
// committed record is a hard conflict.
func (s *Service) CreateBlock(ctx context.Context, actor Actor, req BlockRequest) (model.Appointment, error) {
	switch actor.Role {
	case model.RoleEmployee:
		if req.HostName == "" {
			req.HostName = actor.Name
		}
		if req.HostName != actor.Name {
			return model.Appointment{}, &ForbiddenError{Reason: "employees may only block their own schedule"}
		}
	case model.RoleAdmin:
		// Admins block on behalf of any host.
	default:
		return model.Appointment{}, &ForbiddenError{Reason: "role " + string(actor.Role) + " cannot block schedules"}
	}

	now := s.now()
	if err := validateBooking(req.HostName, req.ScheduledTime, now); err != nil {
		return model.Appointment{}, err
	}
	duration, err := normalizeDuration(req.DurationMinutes)
	if err != nil {
		return model.Appointment{}, err
	}
	purpose := req.Purpose
	if purpose == "" {
		purpose = "Blocked Slot"
	}

	appt := model.Appointment{
		ID:              uuid.NewString(),
		HostName:        req.HostName,
		Purpose:         purpose,
		Type:            classify.Kind(now, req.ScheduledTime),
		Status:          model.StatusBlocked,
		ScheduledTime:   req.ScheduledTime,
		DurationMinutes: duration,
		CreatedByRole:   actor.Role,
		CreatedAt:       now,
	}

	if err := s.checkCommittedOverlap(ctx, appt.HostName, conflict.Window(appt), ""); err != nil {
		return model.Appointment{}, err
	}

	evt, err := lifecycleEvent("visitgate.schedule.blocked.v1", actor, appt)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.store.Create(ctx, appt, evt); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Transition moves an appointment along the lifecycle table. The store
// applies it as a compare-and-swap on the status read here; a concurrent
// winner leaves this call with *StaleStateError unless the record already
// reached the requested status, which is a no-op success.
func (s *Service) Transition(ctx context.Context, actor Actor, id string, to model.Status) (model.Appointment, error) {
	if !knownStatus(to) {
		return model.Appointment{}, &ValidationError{Field: "status", Reason: "unknown status " + string(to)}
	}

	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Status == to {
		return appt, nil
	}
	if !lifecycle.ValidEdge(appt.Status, to) {
		return model.Appointment{}, &ForbiddenError{Reason: "no transition from " + string(appt.Status) + " to " + string(to)}
	}
	if !lifecycle.RoleAllowed(appt.Status, to, actor.Role) {
		return model.Appointment{}, &ForbiddenError{Reason: "role " + string(actor.Role) + " may not move " + string(appt.Status) + " to " + string(to)}
	}
	if actor.Role == model.RoleEmployee && appt.HostName != actor.Name {
		return model.Appointment{}, &ForbiddenError{Reason: "employees may only manage their own hosted appointments"}
	}

	// Pending requests are filtered at accept-time: promotion to a
	// committed status must not break the overlap invariant.
	if to == model.StatusAccepted {
		if err := s.checkCommittedOverlap(ctx, appt.HostName, conflict.Window(appt), appt.ID); err != nil {
			return model.Appointment{}, err
		}
	}

	after := appt
	after.Status = to
	evt, err := lifecycleEvent("visitgate.appointment."+string(to)+".v1", actor, after)
	if err != nil {
		return model.Appointment{}, err
	}

	// The store applies the swap against the status read above. A
	// concurrent winner makes this fail with *StaleStateError; the caller
	// re-fetches and retries, which is the engine's sole concurrency
	// mechanism.
	updated, err := s.store.Transition(ctx, id, appt.Status, to, s.now(), evt)
	if err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

type ScheduleChange struct {
	DurationMinutes *int
	ScheduledTime   *time.Time
}

// UpdateSchedule changes duration and/or time on a non-terminal
// appointment. The new window is re-checked against committed records
// (excluding this one); on conflict nothing changes.
func (s *Service) UpdateSchedule(ctx context.Context, actor Actor, id string, change ScheduleChange) (model.Appointment, error) {
	if change.DurationMinutes == nil && change.ScheduledTime == nil {
		return model.Appointment{}, &ValidationError{Field: "update", Reason: "nothing to change"}
	}

	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleEmployee:
		if appt.HostName != actor.Name {
			return model.Appointment{}, &ForbiddenError{Reason: "employees may only manage their own hosted appointments"}
		}
	default:
		return model.Appointment{}, &ForbiddenError{Reason: "role " + string(actor.Role) + " cannot update schedules"}
	}
	if lifecycle.Terminal(appt.Status) {
		return model.Appointment{}, &ValidationError{Field: "status", Reason: "terminal appointment cannot be updated"}
	}

	newTime := appt.ScheduledTime
	if change.ScheduledTime != nil {
		newTime = *change.ScheduledTime
	}
	newDuration := appt.DurationMinutes
	if change.DurationMinutes != nil {
		newDuration = *change.DurationMinutes
	}
	if newDuration < MinDurationMinutes {
		return model.Appointment{}, &ValidationError{Field: "duration_minutes", Reason: "must be at least 15"}
	}

	window := conflict.Interval{Start: newTime, End: newTime.Add(time.Duration(newDuration) * time.Minute)}
	if err := s.checkCommittedOverlap(ctx, appt.HostName, window, appt.ID); err != nil {
		return model.Appointment{}, err
	}

	evt, err := lifecycleEvent("visitgate.appointment.rescheduled.v1", actor, appt)
	if err != nil {
		return model.Appointment{}, err
	}
	return s.store.Reschedule(ctx, id, newTime, newDuration, evt)
}

// activeStatuses are everything a host's calendar view should show:
// committed records plus pending requests and completed visits.
var activeStatuses = []model.Status{
	model.StatusPending, model.StatusAccepted, model.StatusBlocked,
	model.StatusCheckedIn, model.StatusCompleted,
}

// HostSchedule lists a host's calendar entries in a window, excluding
// cancelled and rejected records.
func (s *Service) HostSchedule(ctx context.Context, hostName string, from, to time.Time) ([]model.Appointment, error) {
	if hostName == "" {
		return nil, &ValidationError{Field: "host_name", Reason: "required"}
	}
	return s.store.HostAppointments(ctx, hostName, from, to, activeStatuses)
}

// GridSubject selects whose week to project: a host's calendar or a
// visitor's own bookings.
type GridSubject struct {
	HostName  string
	VisitorID string
}

// AvailabilityGrid projects the subject's appointments onto the weekly
// slot grid for the week containing weekOf.
func (s *Service) AvailabilityGrid(ctx context.Context, subject GridSubject, weekOf time.Time) (calendar.Grid, error) {
	start := calendar.WeekStart(weekOf)
	end := start.AddDate(0, 0, calendar.DaysPerWeek)

	var appts []model.Appointment
	var err error
	switch {
	case subject.HostName != "":
		appts, err = s.store.HostAppointments(ctx, subject.HostName, start, end, activeStatuses)
	case subject.VisitorID != "":
		appts, err = s.store.VisitorAppointments(ctx, subject.VisitorID)
	default:
		return calendar.Grid{}, &ValidationError{Field: "subject", Reason: "host_name or visitor_id required"}
	}
	if err != nil {
		return calendar.Grid{}, err
	}
	return calendar.Build(weekOf, appts), nil
}

// ListForActor returns the slice of appointments the actor is entitled
// to see: own bookings for a visitor, hosted-by for an employee, the
// commitment set for security, everything for an admin.
func (s *Service) ListForActor(ctx context.Context, actor Actor) ([]model.Appointment, error) {
	switch actor.Role {
	case model.RoleVisitor:
		return s.store.VisitorAppointments(ctx, actor.ID)
	case model.RoleEmployee:
		return s.store.HostAppointments(ctx, actor.Name, time.Time{}, time.Time{}, nil)
	case model.RoleAdmin:
		return s.store.AllAppointments(ctx)
	case model.RoleSecurity:
		return s.store.AppointmentsByStatus(ctx, []model.Status{
			model.StatusAccepted, model.StatusCheckedIn, model.StatusCompleted,
		}, 0)
	}
	return nil, &ForbiddenError{Reason: "unknown role " + string(actor.Role)}
}

// DailySchedule is the security console's working set.
func (s *Service) DailySchedule(ctx context.Context) ([]model.Appointment, error) {
	return s.store.AppointmentsByStatus(ctx, []model.Status{
		model.StatusAccepted, model.StatusCheckedIn, model.StatusCompleted,
	}, 0)
}

// RecentActivity is the security console's activity feed, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.AppointmentsByStatus(ctx, []model.Status{
		model.StatusCheckedIn, model.StatusCompleted, model.StatusRejected,
	}, limit)
}

// checkCommittedOverlap enforces the hard invariant: no two committed
// records on one host may overlap.
func (s *Service) checkCommittedOverlap(ctx context.Context, hostName string, window conflict.Interval, excludeID string) error {
	existing, err := s.store.HostAppointments(ctx, hostName, window.Start, window.End, nil)
	if err != nil {
		return err
	}
	colliding := conflict.Overlapping(window, existing, excludeID)
	if len(colliding) == 0 {
		return nil
	}
	ids := make([]string, 0, len(colliding))
	for _, c := range colliding {
		ids = append(ids, c.ID)
	}
	return &ConflictError{RecordIDs: ids}
}

// bookingWarnings reports soft conflicts for a new request: existing
// committed or pending records on the window, plus externally synced
// busy time when a calendar bridge is configured.
func (s *Service) bookingWarnings(ctx context.Context, appt model.Appointment) ([]ConflictWarning, error) {
	window := conflict.Window(appt)
	existing, err := s.store.HostAppointments(ctx, appt.HostName, window.Start, window.End, nil)
	if err != nil {
		return nil, err
	}

	var warnings []ConflictWarning
	for _, c := range conflict.Touching(window, existing, appt.ID) {
		warnings = append(warnings, ConflictWarning{
			RecordID:        c.ID,
			Status:          c.Status,
			ScheduledTime:   c.ScheduledTime.UTC().Format(time.RFC3339),
			DurationMinutes: c.DurationMinutes,
		})
	}

	if s.busy != nil {
		busy, err := s.busy.Busy(ctx, appt.HostName, window.Start, window.End)
		if err != nil {
			// External calendar is advisory; a failed lookup must not block booking.
			s.logger.Warn("external busy lookup failed", "host", appt.HostName, "err", err)
		}
		for _, b := range busy {
			if (conflict.Interval{Start: b.Start, End: b.End}).Overlaps(window) {
				warnings = append(warnings, ConflictWarning{
					RecordID:        "external-calendar",
					Status:          model.StatusBlocked,
					ScheduledTime:   b.Start.UTC().Format(time.RFC3339),
					DurationMinutes: int(b.End.Sub(b.Start) / time.Minute),
				})
			}
		}
	}
	return warnings, nil
}

func validateBooking(hostName string, scheduled time.Time, now time.Time) error {
	if hostName == "" {
		return &ValidationError{Field: "host_name", Reason: "required"}
	}
	if scheduled.IsZero() {
		return &ValidationError{Field: "scheduled_time", Reason: "required"}
	}
	if !scheduled.After(now) {
		return &ValidationError{Field: "scheduled_time", Reason: "must be in the future"}
	}
	return nil
}

func normalizeDuration(minutes int) (int, error) {
	if minutes == 0 {
		return DefaultDurationMinutes, nil
	}
	if minutes < MinDurationMinutes {
		return 0, &ValidationError{Field: "duration_minutes", Reason: "must be at least 15"}
	}
	return minutes, nil
}

func knownStatus(s model.Status) bool {
	switch s {
	case model.StatusPending, model.StatusAccepted, model.StatusRejected,
		model.StatusCancelled, model.StatusBlocked, model.StatusCheckedIn,
		model.StatusCompleted:
		return true
	}
	return false
}

func lifecycleEvent(eventType string, actor Actor, appt model.Appointment) (Event, error) {
	body := map[string]any{
		"appointment_id":   appt.ID,
		"host_name":        appt.HostName,
		"status":           string(appt.Status),
		"appointment_type": string(appt.Type),
		"scheduled_time":   appt.ScheduledTime.UTC().Format(time.RFC3339),
		"duration_minutes": appt.DurationMinutes,
		"actor_role":       string(actor.Role),
	}
	if appt.VisitorID != nil {
		body["visitor_id"] = *appt.VisitorID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, ActorID: actor.ID, Payload: payload}, nil
}
