package entity

import (
	"encoding/json"
	"time"
)

// CategoryRoleCode groups the privileged signup code rows.
const CategoryRoleCode = "role_code"

// Setting represents a configuration or reserved data record.
type Setting struct {
	ID         string          `db:"id" json:"id"`
	ParentID   string          `db:"parent_id" json:"parent_id,omitempty"`
	RootID     string          `db:"root_id" json:"root_id,omitempty"`
	RecordMeta json.RawMessage `db:"record_meta" json:"record_meta,omitempty"`
	Category   string          `db:"category" json:"category,omitempty"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// NewSetting creates a new Setting; parentID/rootID describe multi-level hierarchies.
func NewSetting(id string, parentID string, rootID string, category string, recordMeta json.RawMessage, metadata json.RawMessage) *Setting {
	return &Setting{ID: id, ParentID: parentID, RootID: rootID, Category: category, RecordMeta: recordMeta, Metadata: metadata}
}

// RecordMeta is the bookkeeping stored in record_meta.
type RecordMeta struct {
	UpdatedAt time.Time `json:"updated_at"`
	// UpdatedBy is 0 for rows seeded from the environment.
	UpdatedBy int64 `json:"updated_by,string"`
}

// RoleCode is the metadata of a role_code row.
type RoleCode struct {
	Hash string `json:"hash"`
}

// RoleCodeStatus is what superadmins see about a role code; never the hash.
type RoleCodeStatus struct {
	Role       string     `json:"role"`
	Configured bool       `json:"configured"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy  int64      `json:"updatedBy,string,omitempty"`
}
