package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePublisher Role = "publisher"
	RoleCommenter Role = "commenter"
	RoleAdmin     Role = "admin"
)

type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"`
	InviteCode   string     `json:"invite_code"`
	InvitedBy    *uuid.UUID `json:"invited_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
