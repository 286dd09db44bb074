package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("unsupported JSONB source type")
	}
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Alert lifecycle status values
const (
	AlertStatusOpen   = "OPEN"
	AlertStatusClosed = "CLOSED"
)

// DefaultStateTTL is how long a lifecycle row lives before the store-level
// TTL reaps it: 3 years from creation.
const DefaultStateTTL = 3 * 365 * 24 * time.Hour

// AlertState is the persisted lifecycle record, one row per fingerprint.
// Many alert events over time map onto one row, which tracks whether the
// underlying condition is currently open. Rows are never deleted by the
// pipeline: they expire via ExpiresAt or are manually closed out-of-band.
type AlertState struct {
	Fingerprint string `gorm:"primaryKey;size:64" json:"fingerprint"`
	Status      string `gorm:"type:varchar(10);not null" json:"status"`
	Team        string `gorm:"type:varchar(255);not null;index" json:"team"`
	Priority    string `gorm:"type:varchar(4);not null" json:"priority"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`

	IssueRepo   string `gorm:"type:varchar(255)" json:"issue_repo"`
	IssueNumber *int   `json:"issue_number,omitempty"`

	LastProviderStateAt time.Time `gorm:"not null" json:"last_provider_state_at"`
	FirstSeenAt         time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt          time.Time `gorm:"not null" json:"last_seen_at"`

	ManuallyClosed   bool       `gorm:"default:false" json:"manually_closed"`
	ManuallyClosedAt *time.Time `json:"manually_closed_at,omitempty"`

	SchemaVersion   int    `json:"schema_version"`
	ProviderVersion string `gorm:"type:varchar(64)" json:"provider_version"`

	Identity       JSONB  `gorm:"type:jsonb" json:"identity"`
	EnvelopeDigest string `gorm:"type:varchar(16)" json:"envelope_digest"`

	// ExpiresAt is the TTL expiry as epoch seconds
	ExpiresAt int64 `gorm:"not null" json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AlertState) TableName() string {
	return "alert_states"
}
