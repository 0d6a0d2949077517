package model

import "time"

// Status is the lifecycle state of an appointment. The string values are
// the wire vocabulary; they are stored as-is and never renamed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusBlocked   Status = "blocked"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
)

// Type classifies how far in advance an appointment was requested.
// It is derived once at creation and never recomputed.
type Type string

const (
	TypeWalkIn     Type = "walk_in"
	TypePrePlanned Type = "pre_planned"
)

// Role is the actor role attached to requests and stamped on records.
type Role string

const (
	RoleVisitor  Role = "visitor"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
	RoleSecurity Role = "security"
)

type Appointment struct {
	ID              string
	VisitorID       *string // nil for a host's personal blocked slot
	HostName        string
	Purpose         string
	Type            Type
	Status          Status
	ScheduledTime   time.Time
	DurationMinutes int
	CreatedByRole   Role
	CreatedAt       time.Time
	CheckInTime     *time.Time
	CheckOutTime    *time.Time

	// Joined from the visitor profile on reads; empty for blocks.
	VisitorName  string
	VisitorPhone string
}

// End is the exclusive end of the appointment's time window.
func (a Appointment) End() time.Time {
	return a.ScheduledTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
