package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
)

// Result is the outcome of processing one message: the dedup identity, the
// lifecycle action, and the full canonical event for the caller to persist
// and forward.
type Result struct {
	Fingerprint string
	Action      alerts.Action
	Event       *alerts.AlertEvent
	Envelope    alerts.Envelope
}

// Processor orchestrates the per-message pipeline: envelope construction,
// source detection, transform, fingerprint, action decision.
type Processor struct {
	transformers map[alerts.Source]alerts.Transformer
}

// NewProcessor creates a processor over the given transformer set.
func NewProcessor(transformers map[alerts.Source]alerts.Transformer) *Processor {
	return &Processor{transformers: transformers}
}

// Process runs one message through the pipeline. It is pure apart from
// reading the clock: all persistence is the caller's concern.
func (p *Processor) Process(msg Message) (*Result, error) {
	env := BuildEnvelope(msg, time.Now())
	raw := decodeBody(msg.Body)

	src, err := alerts.DetectSource(raw, env)
	if err != nil {
		return nil, err
	}
	transformer, ok := p.transformers[src]
	if !ok {
		return nil, fmt.Errorf("no transformer registered for source %q", src)
	}

	event, err := transformer.Transform(raw, env)
	if err != nil {
		return nil, err
	}

	fingerprint, err := alerts.Fingerprint(event)
	if err != nil {
		return nil, err
	}

	return &Result{
		Fingerprint: fingerprint,
		Action:      alerts.ActionForState(event.State),
		Event:       event,
		Envelope:    env,
	}, nil
}

// decodeBody parses a message body as JSON, unwrapping one level of
// double-encoding (a JSON string containing JSON, as SNS-forwarded alarm
// bodies sometimes are). A parse failure does not itself fail the record:
// the raw string is carried forward so detection and transform-time
// validation surface the real error with better context.
func decodeBody(body string) map[string]interface{} {
	current := body
	for i := 0; i < 2; i++ {
		var decoded interface{}
		if err := json.Unmarshal([]byte(current), &decoded); err != nil {
			break
		}
		switch v := decoded.(type) {
		case map[string]interface{}:
			return v
		case string:
			current = v
		default:
			return map[string]interface{}{"raw": body}
		}
	}
	return map[string]interface{}{"raw": body}
}
