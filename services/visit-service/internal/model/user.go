package model

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	FullName              string
	PhoneNumber           string
	Email                 string
	Role                  Role
	IsVerified            bool
	PasswordResetRequired bool
	Address               json.RawMessage
	CalendarSynced        bool
	CalendarURL           string
	CreatedAt             time.Time
}
