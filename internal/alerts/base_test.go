package alerts

import (
	"testing"
	"time"
)

func TestParsePriority_Strict(t *testing.T) {
	valid := map[string]Priority{
		"P0": PriorityP0, "P1": PriorityP1, "P2": PriorityP2, "P3": PriorityP3,
		"p0": PriorityP0, "p1": PriorityP1, "p2": PriorityP2, "p3": PriorityP3,
		"0": PriorityP0, "1": PriorityP1, "2": PriorityP2, "3": PriorityP3,
		"  P2  ": PriorityP2, "\tp3\n": PriorityP3,
	}
	for input, want := range valid {
		got, err := ParsePriority(input)
		if err != nil {
			t.Errorf("ParsePriority(%q) returned error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePriority(%q) = %s, want %s", input, got, want)
		}
	}

	invalid := []string{"", "P4", "4", "HIGH", "critical", "p-1", "P22"}
	for _, input := range invalid {
		if _, err := ParsePriority(input); err == nil {
			t.Errorf("ParsePriority(%q) expected error, got none", input)
		}
	}
}

func TestPriorityOrDefault_Lenient(t *testing.T) {
	cases := map[string]Priority{
		"P0":       PriorityP0,
		"p2":       PriorityP2,
		"CRITICAL": PriorityP1,
		"high":     PriorityP1,
		"Medium":   PriorityP2,
		"WARNING":  PriorityP2,
		"low":      PriorityP3,
		"info":     PriorityP3,
		"":         PriorityP3,
		"garbage":  PriorityP3,
		"P4":       PriorityP3,
	}
	for input, want := range cases {
		if got := PriorityOrDefault(input); got != want {
			t.Errorf("PriorityOrDefault(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestParseTimestamp_Strict(t *testing.T) {
	recent := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	got, err := ParseTimestamp(recent)
	if err != nil {
		t.Fatalf("ParseTimestamp(%q) returned error: %v", recent, err)
	}
	if got.Location() != time.UTC {
		t.Errorf("Expected UTC result, got %v", got.Location())
	}

	// CloudWatch StateChangeTime format
	cw := time.Now().UTC().Add(-time.Minute).Format("2006-01-02T15:04:05.000-0700")
	if _, err := ParseTimestamp(cw); err != nil {
		t.Errorf("ParseTimestamp(%q) returned error: %v", cw, err)
	}

	if _, err := ParseTimestamp(time.Now().Add(-30 * time.Minute)); err != nil {
		t.Errorf("ParseTimestamp(time.Time) returned error: %v", err)
	}

	invalid := []interface{}{
		nil,
		"",
		"not-a-date",
		"0001-01-01T00:00:00Z",
		"2010-01-01T00:00:00Z", // far past
		time.Now().Add(2 * 366 * 24 * time.Hour).Format(time.RFC3339), // far future
		"2025-01-01T00:00:00Z-with-a-very-long-suffix-over-fifty-chars",
		42,
	}
	for _, input := range invalid {
		if _, err := ParseTimestamp(input); err == nil {
			t.Errorf("ParseTimestamp(%v) expected error, got none", input)
		}
	}
}

func TestTimestampOrNow_SubstitutesCurrentTime(t *testing.T) {
	before := time.Now().UTC()
	got := TimestampOrNow("garbage")
	after := time.Now().UTC()

	if got.Before(before) || got.After(after) {
		t.Errorf("TimestampOrNow substituted %v, expected a current timestamp", got)
	}
}

func TestExtractTeam(t *testing.T) {
	got, err := ExtractTeam("  Platform  ")
	if err != nil {
		t.Fatalf("ExtractTeam returned error: %v", err)
	}
	if got != "platform" {
		t.Errorf("Expected 'platform', got %q", got)
	}

	for _, input := range []string{"", "   ", "\t\n"} {
		if _, err := ExtractTeam(input); err == nil {
			t.Errorf("ExtractTeam(%q) expected error, got none", input)
		}
	}
}

func TestIsZeroDate(t *testing.T) {
	if !IsZeroDate("0001-01-01T00:00:00Z") {
		t.Error("Expected zero date to be detected")
	}
	if IsZeroDate("2025-06-10T12:00:00Z") {
		t.Error("Real date incorrectly flagged as zero date")
	}
}
