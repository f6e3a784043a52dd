package entity

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
)

// Account represents a row in the `accounts` table.
// PasswordHash never leaves the service layer.
type Account struct {
	ID                int64       `db:"id"`
	Name              string      `db:"name"`
	Email             string      `db:"email"`
	PasswordHash      string      `db:"password_hash"`
	Role              access.Role `db:"role"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
	PasswordUpdatedAt *time.Time  `db:"password_updated_at"`
}

// Summary is the public projection of an account.
type Summary struct {
	ID        int64       `db:"id" json:"id,string"`
	Name      string      `db:"name" json:"name"`
	Email     string      `db:"email" json:"email"`
	Role      access.Role `db:"role" json:"role"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

func (a *Account) Summary() Summary {
	return Summary{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role, CreatedAt: a.CreatedAt}
}
