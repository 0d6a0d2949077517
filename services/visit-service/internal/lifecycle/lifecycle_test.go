package lifecycle

import (
	"testing"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

var allStatuses = []model.Status{
	model.StatusPending, model.StatusAccepted, model.StatusRejected,
	model.StatusCancelled, model.StatusBlocked, model.StatusCheckedIn,
	model.StatusCompleted,
}

var allRoles = []model.Role{
	model.RoleVisitor, model.RoleEmployee, model.RoleAdmin, model.RoleSecurity,
}

func TestAllowedEdges(t *testing.T) {
	cases := []struct {
		from, to model.Status
		role     model.Role
		want     bool
	}{
		{model.StatusPending, model.StatusAccepted, model.RoleEmployee, true},
		{model.StatusPending, model.StatusAccepted, model.RoleAdmin, true},
		{model.StatusPending, model.StatusAccepted, model.RoleVisitor, false},
		{model.StatusPending, model.StatusAccepted, model.RoleSecurity, false},
		{model.StatusPending, model.StatusRejected, model.RoleEmployee, true},
		{model.StatusAccepted, model.StatusCancelled, model.RoleAdmin, true},
		{model.StatusAccepted, model.StatusCancelled, model.RoleSecurity, false},
		{model.StatusAccepted, model.StatusCheckedIn, model.RoleSecurity, true},
		{model.StatusAccepted, model.StatusCheckedIn, model.RoleEmployee, false},
		{model.StatusCheckedIn, model.StatusCompleted, model.RoleSecurity, true},
	}
	for _, tc := range cases {
		if got := RoleAllowed(tc.from, tc.to, tc.role); got != tc.want {
			t.Errorf("RoleAllowed(%s -> %s, %s) = %v, want %v", tc.from, tc.to, tc.role, got, tc.want)
		}
	}
}

func TestPendingToCheckedInNeverValid(t *testing.T) {
	if ValidEdge(model.StatusPending, model.StatusCheckedIn) {
		t.Fatal("pending -> checked_in must be an invalid edge")
	}
	for _, role := range allRoles {
		if RoleAllowed(model.StatusPending, model.StatusCheckedIn, role) {
			t.Fatalf("pending -> checked_in must be rejected for role %s", role)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingEdges(t *testing.T) {
	for _, from := range allStatuses {
		if !Terminal(from) {
			continue
		}
		for _, to := range allStatuses {
			if ValidEdge(from, to) {
				t.Errorf("terminal status %s has outgoing edge to %s", from, to)
			}
		}
	}
}

func TestTerminalSet(t *testing.T) {
	want := map[model.Status]bool{
		model.StatusRejected:  true,
		model.StatusCancelled: true,
		model.StatusCompleted: true,
		model.StatusBlocked:   true,
	}
	for _, s := range allStatuses {
		if Terminal(s) != want[s] {
			t.Errorf("Terminal(%s) = %v, want %v", s, Terminal(s), want[s])
		}
	}
}
