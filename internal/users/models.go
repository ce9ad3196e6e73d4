package users

import "time"

// User is a registered account.
//
// Invariants:
// - Username and Email are unique (enforced by the store's constraints).
// - Rows are immutable after creation except the active flag.
// - PasswordHash must never leave this package in API responses.
type User struct {
	ID           string `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`

	// PhoneNumber is optional (E.164 when present). It is only used for
	// best-effort SMS notifications.
	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`

	Role      string    `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
