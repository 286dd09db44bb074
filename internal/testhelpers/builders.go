// Package testhelpers provides reusable data builders for tests.
package testhelpers

import (
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
)

// EventBuilder builds canonical AlertEvent values for testing
type EventBuilder struct {
	event alerts.AlertEvent
}

// NewEventBuilder creates a builder with a valid CloudWatch firing event
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: alerts.AlertEvent{
			SchemaVersion:   alerts.SchemaVersion,
			ProviderVersion: "cloudwatch:test",
			Source:          alerts.SourceCloudWatch,
			State:           alerts.StateFiring,
			Title:           "High CPU on runner fleet",
			Priority:        alerts.PriorityP2,
			OccurredAt:      time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
			Team:            "platform",
			Resource: alerts.Resource{
				Type:   alerts.ResourceInstance,
				ID:     "i-0abc123",
				Region: "us-east-1",
			},
			Identity: alerts.Identity{
				AccountID: "123456789012",
				Region:    "us-east-1",
				AlarmRef:  "arn:aws:cloudwatch:us-east-1:123456789012:alarm:HighCPU",
			},
		},
	}
}

// WithSource sets the source and swaps in matching identity discriminators
func (b *EventBuilder) WithSource(src alerts.Source) *EventBuilder {
	b.event.Source = src
	if src == alerts.SourceGrafana {
		b.event.Identity = alerts.Identity{OrgID: "1", RuleID: "rule-uid-42"}
	}
	return b
}

// WithState sets the normalized state
func (b *EventBuilder) WithState(state alerts.State) *EventBuilder {
	b.event.State = state
	return b
}

// WithTitle sets the title
func (b *EventBuilder) WithTitle(title string) *EventBuilder {
	b.event.Title = title
	return b
}

// WithTeam sets the owning team
func (b *EventBuilder) WithTeam(team string) *EventBuilder {
	b.event.Team = team
	return b
}

// WithPriority sets the priority
func (b *EventBuilder) WithPriority(p alerts.Priority) *EventBuilder {
	b.event.Priority = p
	return b
}

// WithResourceID sets the resource id
func (b *EventBuilder) WithResourceID(id string) *EventBuilder {
	b.event.Resource.ID = id
	return b
}

// WithOccurredAt sets the provider state-change time
func (b *EventBuilder) WithOccurredAt(t time.Time) *EventBuilder {
	b.event.OccurredAt = t
	return b
}

// WithDescription sets the description
func (b *EventBuilder) WithDescription(desc string) *EventBuilder {
	b.event.Description = desc
	return b
}

// WithRawProvider sets the retained raw payload
func (b *EventBuilder) WithRawProvider(raw map[string]interface{}) *EventBuilder {
	b.event.RawProvider = raw
	return b
}

// Build returns the event
func (b *EventBuilder) Build() *alerts.AlertEvent {
	event := b.event
	return &event
}

// NewEnvelope returns a fixed envelope for tests
func NewEnvelope() alerts.Envelope {
	return alerts.Envelope{
		ReceivedAt:   time.Date(2025, 6, 10, 12, 0, 5, 0, time.UTC),
		Topic:        "alert-ingest",
		Region:       "us-east-1",
		ReceiveCount: 1,
		EventID:      "msg-0001",
	}
}
