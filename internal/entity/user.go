package entity

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

type User struct {
	ID         string    `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Phone      string    `json:"phone" db:"phone"`
	Role       Role      `json:"role" db:"role"`
	TelegramID string    `json:"telegram_id,omitempty" db:"telegram_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Actor is whoever asks for a state change.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is used by background jobs such as the expiry reaper.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }
