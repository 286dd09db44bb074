package alerts_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/alertfunnel/alertfunnel/internal/testhelpers"
)

var hexDigestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

func TestFingerprint_DeterministicFormat(t *testing.T) {
	event := testhelpers.NewEventBuilder().Build()

	first, err := alerts.Fingerprint(event)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if !hexDigestPattern.MatchString(first) {
		t.Errorf("Fingerprint %q does not match ^[a-f0-9]{64}$", first)
	}

	second, err := alerts.Fingerprint(event)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if first != second {
		t.Errorf("Fingerprinting the same event twice diverged: %s vs %s", first, second)
	}
}

func TestFingerprint_InsensitiveToExcludedFields(t *testing.T) {
	base := testhelpers.NewEventBuilder().Build()
	baseFP, err := alerts.Fingerprint(base)
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}

	variants := map[string]*alerts.AlertEvent{
		"occurred_at": testhelpers.NewEventBuilder().
			WithOccurredAt(time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)).Build(),
		"raw_provider": testhelpers.NewEventBuilder().
			WithRawProvider(map[string]interface{}{"entirely": "different"}).Build(),
		"state": testhelpers.NewEventBuilder().
			WithState(alerts.StateResolved).Build(),
		"description": testhelpers.NewEventBuilder().
			WithDescription("a completely different description").Build(),
	}
	for field, variant := range variants {
		fp, err := alerts.Fingerprint(variant)
		if err != nil {
			t.Fatalf("Fingerprint(%s variant) returned error: %v", field, err)
		}
		if fp != baseFP {
			t.Errorf("Changing %s changed the fingerprint", field)
		}
	}
}

func TestFingerprint_SensitiveToIdentityFields(t *testing.T) {
	baseFP, err := alerts.Fingerprint(testhelpers.NewEventBuilder().Build())
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}

	variants := map[string]*alerts.AlertEvent{
		"title":       testhelpers.NewEventBuilder().WithTitle("Different title").Build(),
		"resource_id": testhelpers.NewEventBuilder().WithResourceID("i-0other").Build(),
		"source":      testhelpers.NewEventBuilder().WithSource(alerts.SourceGrafana).Build(),
	}
	for field, variant := range variants {
		fp, err := alerts.Fingerprint(variant)
		if err != nil {
			t.Fatalf("Fingerprint(%s variant) returned error: %v", field, err)
		}
		if fp == baseFP {
			t.Errorf("Changing %s did not change the fingerprint", field)
		}
	}
}

func TestFingerprint_TitleNormalization(t *testing.T) {
	a, err := alerts.Fingerprint(testhelpers.NewEventBuilder().WithTitle("High CPU").Build())
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	b, err := alerts.Fingerprint(testhelpers.NewEventBuilder().WithTitle("  HIGH cpu  ").Build())
	if err != nil {
		t.Fatalf("Fingerprint returned error: %v", err)
	}
	if a != b {
		t.Error("Title normalization (trim + lower-case) not applied before hashing")
	}
}

func TestFingerprint_UnknownSource(t *testing.T) {
	event := testhelpers.NewEventBuilder().Build()
	event.Source = "pagerduty"
	if _, err := alerts.Fingerprint(event); err == nil {
		t.Error("Expected error for unrecognized source, got none")
	}
}
