// Package lifecycle holds the appointment status state machine: which
// transitions exist and which actor roles may request each one. Call
// sites never check roles ad hoc; this table is the single source of
// permission truth.
package lifecycle

import (
	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

type Edge struct {
	From model.Status
	To   model.Status
}

// transitions maps every legal edge to the roles allowed to request it.
// Edges absent from the map do not exist, for any role.
var transitions = map[Edge][]model.Role{
	{model.StatusPending, model.StatusAccepted}:    {model.RoleEmployee, model.RoleAdmin},
	{model.StatusPending, model.StatusRejected}:    {model.RoleEmployee, model.RoleAdmin},
	{model.StatusAccepted, model.StatusCancelled}:  {model.RoleEmployee, model.RoleAdmin},
	{model.StatusAccepted, model.StatusCheckedIn}:  {model.RoleSecurity},
	{model.StatusCheckedIn, model.StatusCompleted}: {model.RoleSecurity},
}

// ValidEdge reports whether any role may move an appointment from one
// status to another.
func ValidEdge(from, to model.Status) bool {
	_, ok := transitions[Edge{From: from, To: to}]
	return ok
}

// RoleAllowed reports whether the role may request the given edge.
func RoleAllowed(from, to model.Status, role model.Role) bool {
	for _, r := range transitions[Edge{From: from, To: to}] {
		if r == role {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
// Blocked slots are self-authorized and final from birth.
func Terminal(s model.Status) bool {
	switch s {
	case model.StatusRejected, model.StatusCancelled, model.StatusCompleted, model.StatusBlocked:
		return true
	}
	return false
}
