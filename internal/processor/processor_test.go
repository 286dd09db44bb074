package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/alertfunnel/alertfunnel/internal/alerts/transformers"
)

func alarmBody(t *testing.T, newState string) string {
	t.Helper()
	stateChange := time.Now().UTC().Add(-10 * time.Minute).Format("2006-01-02T15:04:05.000-0700")
	return fmt.Sprintf(`{
		"AlarmName": "HighCPU",
		"AlarmArn": "arn:aws:cloudwatch:us-east-1:123456789012:alarm:HighCPU",
		"AlarmDescription": "TEAM=platform | PRIORITY=P2",
		"AWSAccountId": "123456789012",
		"NewStateValue": %q,
		"NewStateReason": "Threshold Crossed",
		"Region": "US East (N. Virginia)",
		"StateChangeTime": %q,
		"Trigger": {"MetricName": "CPUUtilization", "Namespace": "AWS/EC2",
			"Dimensions": [{"name": "InstanceId", "value": "i-0abc123"}]}
	}`, newState, stateChange)
}

func newTestProcessor() *Processor {
	return NewProcessor(transformers.Default(nil))
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Now()
	msg := Message{
		ID:           "msg-1",
		ReceiveCount: 3,
		SourceARN:    "arn:aws:sqs:us-east-1:123456789012:alert-ingest",
	}

	env := BuildEnvelope(msg, now)
	if env.Topic != "alert-ingest" {
		t.Errorf("Expected topic 'alert-ingest', got %q", env.Topic)
	}
	if env.Region != "us-east-1" {
		t.Errorf("Expected region 'us-east-1', got %q", env.Region)
	}
	if env.ReceiveCount != 3 {
		t.Errorf("Expected receive count 3, got %d", env.ReceiveCount)
	}
	if env.EventID != "msg-1" {
		t.Errorf("Expected event id 'msg-1', got %q", env.EventID)
	}
	if !env.ReceivedAt.Equal(now.UTC()) {
		t.Errorf("Expected received at %v, got %v", now.UTC(), env.ReceivedAt)
	}
}

func TestBuildEnvelope_NonARNSourceAndGeneratedID(t *testing.T) {
	env := BuildEnvelope(Message{SourceARN: "local-queue"}, time.Now())
	if env.Topic != "local-queue" {
		t.Errorf("Expected verbatim topic 'local-queue', got %q", env.Topic)
	}
	if env.Region != "" {
		t.Errorf("Expected empty region, got %q", env.Region)
	}
	if env.EventID == "" {
		t.Error("Expected a generated event id for a message without one")
	}
}

func TestDecodeBody(t *testing.T) {
	payload := map[string]interface{}{"AlarmName": "HighCPU"}
	plain, _ := json.Marshal(payload)
	wrapped, _ := json.Marshal(string(plain))

	tests := []struct {
		name string
		body string
		key  string
	}{
		{"plain object", string(plain), "AlarmName"},
		{"double-encoded object", string(wrapped), "AlarmName"},
		{"not json", "hello world", "raw"},
		{"json array", `[1, 2, 3]`, "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := decodeBody(tt.body)
			if _, ok := decoded[tt.key]; !ok {
				t.Errorf("Expected key %q in decoded body, got %v", tt.key, decoded)
			}
		})
	}
}

func TestProcess_FiringAlarm(t *testing.T) {
	proc := newTestProcessor()
	msg := Message{ID: "msg-1", Body: alarmBody(t, "ALARM"), ReceiveCount: 1,
		SourceARN: "arn:aws:sqs:us-east-1:123456789012:alert-ingest"}

	result, err := proc.Process(msg)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Action != alerts.ActionCreate {
		t.Errorf("Expected action CREATE, got %s", result.Action)
	}
	if !regexp.MustCompile(`^[a-f0-9]{64}$`).MatchString(result.Fingerprint) {
		t.Errorf("Fingerprint is not 64 hex characters: %q", result.Fingerprint)
	}
	if result.Event.Source != alerts.SourceCloudWatch {
		t.Errorf("Expected cloudwatch source, got %s", result.Event.Source)
	}
	if result.Event.Team != "platform" {
		t.Errorf("Expected team 'platform', got %q", result.Event.Team)
	}
	if result.Envelope.EventID != "msg-1" {
		t.Errorf("Expected envelope event id 'msg-1', got %q", result.Envelope.EventID)
	}
}

func TestProcess_ResolveMatchesFiringFingerprint(t *testing.T) {
	proc := newTestProcessor()

	firing, err := proc.Process(Message{ID: "a", Body: alarmBody(t, "ALARM")})
	if err != nil {
		t.Fatalf("Process(ALARM) returned error: %v", err)
	}
	resolved, err := proc.Process(Message{ID: "b", Body: alarmBody(t, "OK")})
	if err != nil {
		t.Fatalf("Process(OK) returned error: %v", err)
	}

	if resolved.Action != alerts.ActionClose {
		t.Errorf("Expected action CLOSE, got %s", resolved.Action)
	}
	if firing.Fingerprint != resolved.Fingerprint {
		t.Error("Firing and resolve of the same alarm produced different fingerprints")
	}
}

func TestProcess_UnknownSource(t *testing.T) {
	proc := newTestProcessor()

	_, err := proc.Process(Message{ID: "x", Body: `{"hello": "world"}`})
	if err == nil {
		t.Fatal("Expected error for unrecognized payload, got nil")
	}
	var unknown *alerts.UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("Expected UnknownSourceError, got %T: %v", err, err)
	}
}

func TestProcess_TransformFailureSurfaces(t *testing.T) {
	proc := newTestProcessor()
	// Detected as cloudwatch but missing the required description metadata
	body := `{"AlarmName": "HighCPU", "NewStateValue": "ALARM"}`

	_, err := proc.Process(Message{ID: "x", Body: body})
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	var validationErr *alerts.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %T: %v", err, err)
	}
}
