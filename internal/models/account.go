package models

import "time"

// Role is the capability class of an account holder.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RolePlatform Role = "platform"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RolePlatform:
		return true
	}
	return false
}

// Account holds a wallet balance in minor currency units.
type Account struct {
	ID            string    `json:"id" db:"id"`
	AccountNumber string    `json:"account_number" db:"account_number"`
	Email         string    `json:"email" db:"email"`
	PhoneNumber   string    `json:"phone_number" db:"phone_number"`
	Role          Role      `json:"role" db:"role"`
	Balance       int64     `json:"balance" db:"balance"`
	Version       int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
