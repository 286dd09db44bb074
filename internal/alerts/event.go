package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SchemaVersion is the version of the canonical AlertEvent schema.
const SchemaVersion = 1

// Source identifies the upstream monitoring provider an alert came from.
type Source string

const (
	SourceGrafana    Source = "grafana"
	SourceCloudWatch Source = "cloudwatch"
)

// State is the normalized alert state
type State string

const (
	StateFiring   State = "FIRING"
	StateResolved State = "RESOLVED"
)

// Priority is the single canonical severity concept
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// ResourceType enumerates the kinds of resources an alert can point at
type ResourceType string

const (
	ResourceRunner   ResourceType = "runner"
	ResourceInstance ResourceType = "instance"
	ResourceJob      ResourceType = "job"
	ResourceService  ResourceType = "service"
	ResourceGeneric  ResourceType = "generic"
)

// KnownResourceType reports whether t is one of the enumerated resource types.
func KnownResourceType(t string) bool {
	switch ResourceType(t) {
	case ResourceRunner, ResourceInstance, ResourceJob, ResourceService, ResourceGeneric:
		return true
	}
	return false
}

// Resource describes the thing an alert is about
type Resource struct {
	Type   ResourceType      `json:"type"`
	ID     string            `json:"id,omitempty"`
	Region string            `json:"region,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Identity carries the provider-specific discriminators that feed the
/// fingerprint: account/region/alarm reference for CloudWatch, org/rule
// reference for Grafana.
type Identity struct {
	AccountID string `json:"account_id,omitempty"`
	Region    string `json:"region,omitempty"`
	AlarmRef  string `json:"alarm_ref,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
}

// Links holds the validated URLs attached to an alert
type Links struct {
	RunbookURL   string `json:"runbook_url,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
}

// Envelope is the ingest metadata captured at receipt time, independent of
// the payload content. It is created once per inbound message, never
// persisted standalone, and only embedded in logs.
type Envelope struct {
	ReceivedAt   time.Time `json:"received_at"`
	Topic        string    `json:"topic"`
	Region       string    `json:"region"`
	ReceiveCount int       `json:"receive_count"`
	EventID      string    `json:"event_id"`
}

// Digest returns a short audit digest of the envelope for persistence
// alongside the alert state.
func (e Envelope) Digest() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d",
		e.EventID, e.Topic, e.ReceivedAt.UTC().Format(time.RFC3339Nano), e.ReceiveCount)))
	return hex.EncodeToString(sum[:])[:16]
}

// AlertEvent is the canonical, provider-agnostic alert. It is a pure
// function of the raw payload and envelope and carries no references to
// persisted state.
type AlertEvent struct {
	SchemaVersion   int                    `json:"schema_version"`
	ProviderVersion string                 `json:"provider_version"`
	Source          Source                 `json:"source"`
	State           State                  `json:"state"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	Priority        Priority               `json:"priority"`
	OccurredAt      time.Time              `json:"occurred_at"`
	Team            string                 `json:"team"`
	Resource        Resource               `json:"resource"`
	Identity        Identity               `json:"identity"`
	Links           Links                  `json:"links"`
	RawProvider     map[string]interface{} `json:"raw_provider,omitempty"`
}
