package entity

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
)

// Session represents a persisted login in the `sessions` table.
type Session struct {
	ID        string      `db:"id"`
	AccountID int64       `db:"account_id"`
	Role      access.Role `db:"role"`
	CreatedAt time.Time   `db:"created_at"`
	ExpiresAt time.Time   `db:"expires_at"`
}
