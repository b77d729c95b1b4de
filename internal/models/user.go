package models

import (
	"strings"
	"time"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleNurse   = "nurse"
	RoleAdmin   = "admin"
	RoleSystem  = "system"
)

// StaffRole reports whether the role belongs to clinic staff who may work the
// triage queue.
func StaffRole(role string) bool {
	return role == RoleAdmin || role == RoleNurse || role == RoleDoctor
}

func ValidRole(role string) bool {
	return role == RolePatient || StaffRole(role)
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Profile struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p *Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return "Unknown User"
	}
	return name
}
