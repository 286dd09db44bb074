package processor

import (
	"strings"
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/google/uuid"
)

// Message is one inbound queue message: the raw provider JSON (possibly
// double-encoded) plus the queue metadata the envelope is built from.
type Message struct {
	ID           string
	Body         string
	ReceiveCount int
	SourceARN    string
}

// BuildEnvelope captures the ingest metadata for one message. The topic
// and region come from the structured source identifier, the delivery
// attempt from the receipt counter, and the event id from the queue message
// id with a generated fallback.
func BuildEnvelope(msg Message, receivedAt time.Time) alerts.Envelope {
	topic, region := parseSourceARN(msg.SourceARN)
	eventID := msg.ID
	if eventID == "" {
		eventID = uuid.New().String()
	}
	return alerts.Envelope{
		ReceivedAt:   receivedAt.UTC(),
		Topic:        topic,
		Region:       region,
		ReceiveCount: msg.ReceiveCount,
		EventID:      eventID,
	}
}

// parseSourceARN splits an ARN-style source identifier
// (arn:aws:sqs:us-east-1:123456789012:queue-name) into queue name and
// region. A non-ARN identifier is used verbatim as the topic.
func parseSourceARN(arn string) (topic, region string) {
	parts := strings.Split(arn, ":")
	if len(parts) >= 6 && parts[0] == "arn" {
		return parts[5], parts[3]
	}
	return arn, ""
}
