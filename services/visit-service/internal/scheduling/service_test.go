package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/lifecycle"
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

// memStore mirrors the pgx repository's semantics: every method is
// atomic and Transition is a compare-and-swap on status.
type memStore struct {
	mu     sync.Mutex
	appts  map[string]model.Appointment
	events []Event
}

func newMemStore() *memStore {
	return &memStore{appts: map[string]model.Appointment{}}
}

func (m *memStore) Create(_ context.Context, appt model.Appointment, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts[appt.ID] = appt
	m.events = append(m.events, evt)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	return appt, nil
}

func (m *memStore) Transition(_ context.Context, id string, from, to model.Status, at time.Time, evt Event) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	if appt.Status != from {
		return model.Appointment{}, &StaleStateError{ID: id, Current: appt.Status}
	}
	appt.Status = to
	switch to {
	case model.StatusCheckedIn:
		stamp := at
		appt.CheckInTime = &stamp
	case model.StatusCompleted:
		stamp := at
		appt.CheckOutTime = &stamp
	}
	m.appts[id] = appt
	m.events = append(m.events, evt)
	return appt, nil
}

func (m *memStore) Reschedule(_ context.Context, id string, scheduledTime time.Time, durationMinutes int, evt Event) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	if lifecycle.Terminal(appt.Status) {
		return model.Appointment{}, &StaleStateError{ID: id, Current: appt.Status}
	}
	appt.ScheduledTime = scheduledTime
	appt.DurationMinutes = durationMinutes
	m.appts[id] = appt
	m.events = append(m.events, evt)
	return appt, nil
}

func (m *memStore) HostAppointments(_ context.Context, hostName string, from, to time.Time, statuses []model.Status) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.HostName != hostName {
			continue
		}
		if !from.IsZero() && !a.End().After(from) {
			continue
		}
		if !to.IsZero() && !a.ScheduledTime.Before(to) {
			continue
		}
		if statuses != nil && !containsStatus(statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (m *memStore) VisitorAppointments(_ context.Context, visitorID string) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.VisitorID != nil && *a.VisitorID == visitorID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (m *memStore) AllAppointments(_ context.Context) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (m *memStore) AppointmentsByStatus(_ context.Context, statuses []model.Status, limit int) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if containsStatus(statuses, a.Status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsStatus(set []model.Status, s model.Status) bool {
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}

var testClock = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger, WithClock(func() time.Time { return testClock }))
}

var (
	visitor  = Actor{ID: "v-1", Name: "Shofiq Islam", Role: model.RoleVisitor}
	host     = Actor{ID: "e-1", Name: "Karim Ahmed", Role: model.RoleEmployee}
	admin    = Actor{ID: "a-1", Name: "Admin", Role: model.RoleAdmin}
	security = Actor{ID: "s-1", Name: "Gate One", Role: model.RoleSecurity}
)

func mustCreate(t *testing.T, svc *Service, actor Actor, req CreateRequest) model.Appointment {
	t.Helper()
	appt, _, err := svc.CreateAppointment(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	return appt
}

func TestCreateRejectsPastTime(t *testing.T) {
	svc := newTestService(newMemStore())
	_, _, err := svc.CreateAppointment(context.Background(), visitor, CreateRequest{
		HostName:      host.Name,
		Purpose:       "delivery",
		ScheduledTime: testClock.Add(-time.Minute),
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "scheduled_time" {
		t.Fatalf("expected scheduled_time ValidationError, got %v", err)
	}

	_, _, err = svc.CreateAppointment(context.Background(), visitor, CreateRequest{
		HostName:      host.Name,
		ScheduledTime: testClock, // exactly now is not strictly future
	})
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for scheduled_time == now, got %v", err)
	}
}

func TestCreateDefaultsAndClassifies(t *testing.T) {
	svc := newTestService(newMemStore())
	appt := mustCreate(t, svc, visitor, CreateRequest{
		HostName:      host.Name,
		Purpose:       "interview",
		ScheduledTime: testClock.Add(2 * time.Hour),
	})
	if appt.DurationMinutes != 60 {
		t.Fatalf("expected default duration 60, got %d", appt.DurationMinutes)
	}
	if appt.Type != model.TypeWalkIn {
		t.Fatalf("booking exactly 2h out must be walk_in, got %s", appt.Type)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("new booking must be pending, got %s", appt.Status)
	}
	if appt.CreatedByRole != model.RoleVisitor {
		t.Fatalf("created_by_role = %s, want visitor", appt.CreatedByRole)
	}

	far := mustCreate(t, svc, visitor, CreateRequest{
		HostName:      host.Name,
		ScheduledTime: testClock.Add(121 * time.Minute),
	})
	if far.Type != model.TypePrePlanned {
		t.Fatalf("booking 121m out must be pre_planned, got %s", far.Type)
	}
}

func TestCreateRejectsShortDuration(t *testing.T) {
	svc := newTestService(newMemStore())
	_, _, err := svc.CreateAppointment(context.Background(), visitor, CreateRequest{
		HostName:        host.Name,
		ScheduledTime:   testClock.Add(3 * time.Hour),
		DurationMinutes: 10,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "duration_minutes" {
		t.Fatalf("expected duration_minutes ValidationError, got %v", err)
	}
}

func TestVisitorCannotBookForOthers(t *testing.T) {
	svc := newTestService(newMemStore())
	_, _, err := svc.CreateAppointment(context.Background(), visitor, CreateRequest{
		VisitorID:     "someone-else",
		HostName:      host.Name,
		ScheduledTime: testClock.Add(3 * time.Hour),
	})
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestSoftConflictWarnsButCreates(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	start := testClock.Add(4 * time.Hour)

	first := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start})
	if _, err := svc.Transition(context.Background(), host, first.ID, model.StatusAccepted); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	second, warnings, err := svc.CreateAppointment(context.Background(), visitor, CreateRequest{
		HostName:      host.Name,
		ScheduledTime: start.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("overlapping pending request must not be blocked: %v", err)
	}
	if second.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", second.Status)
	}
	if len(warnings) != 1 || warnings[0].RecordID != first.ID {
		t.Fatalf("expected one warning naming %s, got %+v", first.ID, warnings)
	}
	if warnings[0].Status != model.StatusAccepted {
		t.Fatalf("warning status = %s, want accepted", warnings[0].Status)
	}
}

func TestRoundTripCreateThenHostSchedule(t *testing.T) {
	svc := newTestService(newMemStore())
	start := testClock.Add(26 * time.Hour)
	appt := mustCreate(t, svc, visitor, CreateRequest{
		HostName:        host.Name,
		Purpose:         "vendor meeting",
		ScheduledTime:   start,
		DurationMinutes: 45,
	})

	listed, err := svc.HostSchedule(context.Background(), host.Name, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("HostSchedule failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 record, got %d", len(listed))
	}
	if !listed[0].ScheduledTime.Equal(appt.ScheduledTime) || listed[0].DurationMinutes != 45 {
		t.Fatalf("round-trip mismatch: %+v", listed[0])
	}
}

func TestBlockSkipsApprovalAndHardConflicts(t *testing.T) {
	svc := newTestService(newMemStore())
	start := testClock.Add(5 * time.Hour)

	block, err := svc.CreateBlock(context.Background(), host, BlockRequest{
		ScheduledTime:   start,
		DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("CreateBlock failed: %v", err)
	}
	if block.Status != model.StatusBlocked {
		t.Fatalf("block must be born blocked, got %s", block.Status)
	}
	if block.HostName != host.Name {
		t.Fatalf("block host = %s, want %s", block.HostName, host.Name)
	}
	if block.VisitorID != nil {
		t.Fatal("block must have no visitor")
	}
	if block.Purpose != "Blocked Slot" {
		t.Fatalf("default purpose = %q", block.Purpose)
	}

	_, err = svc.CreateBlock(context.Background(), host, BlockRequest{
		ScheduledTime:   start.Add(30 * time.Minute),
		DurationMinutes: 60,
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("overlapping block must hard-conflict, got %v", err)
	}
	if len(ce.RecordIDs) != 1 || ce.RecordIDs[0] != block.ID {
		t.Fatalf("conflict must name %s, got %v", block.ID, ce.RecordIDs)
	}
}

func TestEmployeeCannotBlockOthersSchedules(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.CreateBlock(context.Background(), host, BlockRequest{
		HostName:      "Someone Else",
		ScheduledTime: testClock.Add(time.Hour),
	})
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	svc := newTestService(newMemStore())
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})

	// pending -> checked_in is not an edge, for anyone.
	for _, actor := range []Actor{visitor, host, admin, security} {
		if _, err := svc.Transition(context.Background(), actor, appt.ID, model.StatusCheckedIn); err == nil {
			t.Fatalf("pending -> checked_in must be rejected for %s", actor.Role)
		}
	}

	accepted, err := svc.Transition(context.Background(), host, appt.ID, model.StatusAccepted)
	if err != nil {
		t.Fatalf("host accept failed: %v", err)
	}
	if accepted.Status != model.StatusAccepted {
		t.Fatalf("status = %s", accepted.Status)
	}

	// Security checks the visitor in, then out.
	checkedIn, err := svc.Transition(context.Background(), security, appt.ID, model.StatusCheckedIn)
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if checkedIn.CheckInTime == nil || !checkedIn.CheckInTime.Equal(testClock) {
		t.Fatalf("check-in must stamp CheckInTime, got %v", checkedIn.CheckInTime)
	}
	done, err := svc.Transition(context.Background(), security, appt.ID, model.StatusCompleted)
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	if done.CheckOutTime == nil {
		t.Fatal("completion must stamp CheckOutTime")
	}

	// Completed is terminal.
	if _, err := svc.Transition(context.Background(), admin, appt.ID, model.StatusCancelled); err == nil {
		t.Fatal("terminal record must reject further transitions")
	}
}

func TestTransitionNoOpWhenAlreadyThere(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})
	if _, err := svc.Transition(context.Background(), host, appt.ID, model.StatusAccepted); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	events := len(store.events)

	got, err := svc.Transition(context.Background(), host, appt.ID, model.StatusAccepted)
	if err != nil {
		t.Fatalf("repeat transition to current state must be a no-op success, got %v", err)
	}
	if got.Status != model.StatusAccepted {
		t.Fatalf("status = %s", got.Status)
	}
	if len(store.events) != events {
		t.Fatal("no-op transition must not emit an event")
	}
}

func TestTransitionRoleGates(t *testing.T) {
	svc := newTestService(newMemStore())
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})

	var fe *ForbiddenError
	if _, err := svc.Transition(context.Background(), security, appt.ID, model.StatusAccepted); !errors.As(err, &fe) {
		t.Fatalf("security must not accept, got %v", err)
	}
	if _, err := svc.Transition(context.Background(), visitor, appt.ID, model.StatusAccepted); !errors.As(err, &fe) {
		t.Fatalf("visitor must not accept, got %v", err)
	}

	// An employee who is not the host may not decide the request.
	otherHost := Actor{ID: "e-2", Name: "Nusrat Jahan", Role: model.RoleEmployee}
	if _, err := svc.Transition(context.Background(), otherHost, appt.ID, model.StatusAccepted); !errors.As(err, &fe) {
		t.Fatalf("non-host employee must not accept, got %v", err)
	}

	// Admin may.
	if _, err := svc.Transition(context.Background(), admin, appt.ID, model.StatusAccepted); err != nil {
		t.Fatalf("admin accept failed: %v", err)
	}
}

func TestAcceptFiltersPendingOverlapAtPromotion(t *testing.T) {
	svc := newTestService(newMemStore())
	start := testClock.Add(6 * time.Hour)

	a := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start})
	b := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start.Add(15 * time.Minute)})

	if _, err := svc.Transition(context.Background(), host, a.ID, model.StatusAccepted); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	_, err := svc.Transition(context.Background(), host, b.ID, model.StatusAccepted)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second accept over committed window must conflict, got %v", err)
	}
	cur, err := svc.store.Get(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cur.Status != model.StatusPending {
		t.Fatalf("losing request must stay pending (still decidable elsewhere), got %s", cur.Status)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	svc := newTestService(newMemStore())
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transition(context.Background(), admin, appt.ID, model.StatusAccepted)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	// The strict CAS allows at most one actual swap. The loser either
	// read pending before the winner swapped (StaleStateError) or read
	// accepted afterwards (no-op success); anything else is a bug.
	var wins, stales int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		var stale *StaleStateError
		if !errors.As(err, &stale) {
			t.Fatalf("unexpected error from racing accept: %v", err)
		}
		stales++
	}
	if wins < 1 || wins+stales != 2 {
		t.Fatalf("expected one winner among two racers, got wins=%d stales=%d", wins, stales)
	}
}

func TestUpdateScheduleConflictLeavesRecordUnchanged(t *testing.T) {
	svc := newTestService(newMemStore())
	start := testClock.Add(8 * time.Hour)

	a := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start, DurationMinutes: 30})
	b := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start.Add(time.Hour), DurationMinutes: 30})
	for _, id := range []string{a.ID, b.ID} {
		if _, err := svc.Transition(context.Background(), host, id, model.StatusAccepted); err != nil {
			t.Fatalf("accept failed: %v", err)
		}
	}

	// Stretching a to 90 minutes would run into b.
	ninety := 90
	_, err := svc.UpdateSchedule(context.Background(), host, a.ID, ScheduleChange{DurationMinutes: &ninety})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(ce.RecordIDs) != 1 || ce.RecordIDs[0] != b.ID {
		t.Fatalf("conflict must name %s, got %v", b.ID, ce.RecordIDs)
	}

	cur, _ := svc.store.Get(context.Background(), a.ID)
	if cur.DurationMinutes != 30 {
		t.Fatalf("failed update must leave duration unchanged, got %d", cur.DurationMinutes)
	}
}

func TestUpdateScheduleAppliesAndKeepsStatusAndType(t *testing.T) {
	svc := newTestService(newMemStore())
	start := testClock.Add(90 * time.Minute) // walk-in window
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start})
	if appt.Type != model.TypeWalkIn {
		t.Fatalf("precondition: expected walk_in, got %s", appt.Type)
	}
	if _, err := svc.Transition(context.Background(), host, appt.ID, model.StatusAccepted); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// Reschedule far beyond the walk-in window; classification stays frozen.
	newTime := testClock.Add(48 * time.Hour)
	updated, err := svc.UpdateSchedule(context.Background(), host, appt.ID, ScheduleChange{ScheduledTime: &newTime})
	if err != nil {
		t.Fatalf("UpdateSchedule failed: %v", err)
	}
	if !updated.ScheduledTime.Equal(newTime) {
		t.Fatalf("time not applied: %s", updated.ScheduledTime)
	}
	if updated.Status != model.StatusAccepted {
		t.Fatalf("status must be unchanged, got %s", updated.Status)
	}
	if updated.Type != model.TypeWalkIn {
		t.Fatalf("classification is frozen at creation, got %s", updated.Type)
	}

	var fe *ForbiddenError
	if _, err := svc.UpdateSchedule(context.Background(), visitor, appt.ID, ScheduleChange{DurationMinutes: &appt.DurationMinutes}); !errors.As(err, &fe) {
		t.Fatalf("visitors must not update schedules, got %v", err)
	}
}

// cancellingStore finishes the record right after the engine's
// non-terminal read, so the reschedule write races a terminal
// transition.
type cancellingStore struct {
	*memStore
	cancelOnce sync.Once
}

func (s *cancellingStore) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.memStore.Get(ctx, id)
	if err == nil {
		s.cancelOnce.Do(func() {
			s.mu.Lock()
			rec := s.appts[id]
			rec.Status = model.StatusCancelled
			s.appts[id] = rec
			s.mu.Unlock()
		})
	}
	return appt, err
}

func TestRescheduleLosesRaceToTerminalTransition(t *testing.T) {
	store := &cancellingStore{memStore: newMemStore()}
	svc := newTestService(store)
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})

	thirty := 30
	_, err := svc.UpdateSchedule(context.Background(), admin, appt.ID, ScheduleChange{DurationMinutes: &thirty})
	var stale *StaleStateError
	if !errors.As(err, &stale) {
		t.Fatalf("reschedule racing a terminal transition must be stale, got %v", err)
	}
	if stale.Current != model.StatusCancelled {
		t.Fatalf("stale current = %s, want cancelled", stale.Current)
	}

	cur, err := store.memStore.Get(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cur.DurationMinutes != 60 {
		t.Fatalf("losing reschedule must leave duration unchanged, got %d", cur.DurationMinutes)
	}
}

func TestListForActorScopes(t *testing.T) {
	svc := newTestService(newMemStore())
	mine := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})

	otherVisitor := Actor{ID: "v-2", Name: "Tareq Aziz", Role: model.RoleVisitor}
	theirs := mustCreate(t, svc, otherVisitor, CreateRequest{HostName: "Nusrat Jahan", ScheduledTime: testClock.Add(4 * time.Hour)})

	own, err := svc.ListForActor(context.Background(), visitor)
	if err != nil {
		t.Fatalf("visitor list failed: %v", err)
	}
	if len(own) != 1 || own[0].ID != mine.ID {
		t.Fatalf("visitor must only see own bookings, got %d", len(own))
	}

	hosted, err := svc.ListForActor(context.Background(), host)
	if err != nil {
		t.Fatalf("employee list failed: %v", err)
	}
	if len(hosted) != 1 || hosted[0].ID != mine.ID {
		t.Fatalf("employee must see hosted-by records, got %d", len(hosted))
	}

	all, err := svc.ListForActor(context.Background(), admin)
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin must see everything, got %d", len(all))
	}

	// Security sees only the commitment set; both records are pending.
	gate, err := svc.ListForActor(context.Background(), security)
	if err != nil {
		t.Fatalf("security list failed: %v", err)
	}
	if len(gate) != 0 {
		t.Fatalf("security must not see pending requests, got %d", len(gate))
	}
	if _, err := svc.Transition(context.Background(), admin, theirs.ID, model.StatusAccepted); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	gate, _ = svc.ListForActor(context.Background(), security)
	if len(gate) != 1 || gate[0].ID != theirs.ID {
		t.Fatalf("security must see accepted records, got %d", len(gate))
	}
}

func TestAvailabilityGridForHost(t *testing.T) {
	svc := newTestService(newMemStore())
	start := time.Date(2026, 3, 4, 9, 7, 0, 0, time.UTC)
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: start})

	grid, err := svc.AvailabilityGrid(context.Background(), GridSubject{HostName: host.Name}, start)
	if err != nil {
		t.Fatalf("AvailabilityGrid failed: %v", err)
	}
	var found bool
	for _, s := range grid.Days[2].Slots {
		if s.Start.Hour() == 9 && s.Start.Minute() == 0 {
			if len(s.Appointments) != 1 || s.Appointments[0].ID != appt.ID {
				t.Fatalf("expected booking on the 09:00 slot, got %d", len(s.Appointments))
			}
			found = true
		}
	}
	if !found {
		t.Fatal("09:00 slot missing from grid")
	}
}

func TestEventsAccompanyEveryWrite(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	appt := mustCreate(t, svc, visitor, CreateRequest{HostName: host.Name, ScheduledTime: testClock.Add(3 * time.Hour)})
	if _, err := svc.Transition(context.Background(), host, appt.ID, model.StatusRejected); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if len(store.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(store.events))
	}
	if store.events[0].Type != "visitgate.appointment.requested.v1" {
		t.Fatalf("first event = %s", store.events[0].Type)
	}
	if store.events[1].Type != "visitgate.appointment.rejected.v1" {
		t.Fatalf("second event = %s", store.events[1].Type)
	}
	if store.events[1].ActorID != host.ID {
		t.Fatalf("event actor = %s, want %s", store.events[1].ActorID, host.ID)
	}
}

func TestTransitionUnknownAppointment(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.Transition(context.Background(), admin, "nope", model.StatusAccepted)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
