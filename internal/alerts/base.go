package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Shared validation primitives used by all provider transformers.

const (
	// MaxTimestampLen bounds the accepted length of timestamp strings
	MaxTimestampLen = 50

	// TimestampSanityBound rejects required timestamps more than roughly a
	// year away from now in either direction
	TimestampSanityBound = 366 * 24 * time.Hour

	// MaxTitleLen is the sanitized title cap
	MaxTitleLen = 255
	// MaxDescriptionLen is the sanitized description cap
	MaxDescriptionLen = 2048
	// MaxReasonLen is the sanitized reason cap
	MaxReasonLen = 512
)

// priorityTokens maps explicit priority tokens to canonical priorities.
// Only these are accepted in the strict path.
var priorityTokens = map[string]Priority{
	"p0": PriorityP0, "0": PriorityP0,
	"p1": PriorityP1, "1": PriorityP1,
	"p2": PriorityP2, "2": PriorityP2,
	"p3": PriorityP3, "3": PriorityP3,
}

// severityWords is the secondary fallback used only in the lenient path.
var severityWords = map[string]Priority{
	"critical": PriorityP1,
	"high":     PriorityP1,
	"medium":   PriorityP2,
	"warning":  PriorityP2,
	"low":      PriorityP3,
	"info":     PriorityP3,
}

// ParsePriority is the strict priority parse: case-insensitive P0..P3
// tokens (or bare digits) only. Empty or unmapped input is an error.
// CloudWatch alarms require an explicit operator-declared priority, so
// their transformer uses this path.
func ParsePriority(raw string) (Priority, error) {
	token := strings.ToLower(strings.TrimSpace(raw))
	if token == "" {
		return "", fmt.Errorf("priority is required")
	}
	if p, ok := priorityTokens[token]; ok {
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q", raw)
}

// PriorityOrDefault is the lenient priority parse: explicit tokens first,
// then severity words (CRITICAL/HIGH, MEDIUM/WARNING, LOW/INFO), then P3.
// Grafana rules may rely on rule-level defaults, so their transformer uses
// this path once at least one priority source exists.
func PriorityOrDefault(raw string) Priority {
	token := strings.ToLower(strings.TrimSpace(raw))
	if p, ok := priorityTokens[token]; ok {
		return p
	}
	if p, ok := severityWords[token]; ok {
		return p
	}
	return PriorityP3
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700", // CloudWatch StateChangeTime
	"2006-01-02 15:04:05",
}

// ParseTimestamp is the strict timestamp parse for required fields. It
// accepts a time.Time or an ISO-8601 string of at most MaxTimestampLen
// characters, and rejects values outside the sanity bound.
func ParseTimestamp(v interface{}) (time.Time, error) {
	t, err := parseTimestampValue(v)
	if err != nil {
		return time.Time{}, err
	}
	if d := time.Since(t); d > TimestampSanityBound || d < -TimestampSanityBound {
		return time.Time{}, fmt.Errorf("timestamp %s is out of bounds", t.Format(time.RFC3339))
	}
	return t.UTC(), nil
}

// TimestampOrNow is the lenient timestamp parse for optional fields: an
// invalid, missing, or out-of-bounds value logs a warning and substitutes
// the current time.
func TimestampOrNow(v interface{}) time.Time {
	t, err := ParseTimestamp(v)
	if err != nil {
		log.Warn().Err(err).Msg("substituting current time for unusable timestamp")
		return time.Now().UTC()
	}
	return t
}

func parseTimestampValue(v interface{}) (time.Time, error) {
	switch tv := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("timestamp is missing")
	case time.Time:
		if tv.IsZero() {
			return time.Time{}, fmt.Errorf("timestamp is zero")
		}
		return tv, nil
	case string:
		s := strings.TrimSpace(tv)
		if s == "" {
			return time.Time{}, fmt.Errorf("timestamp is empty")
		}
		if len(s) > MaxTimestampLen {
			return time.Time{}, fmt.Errorf("timestamp string exceeds %d characters", MaxTimestampLen)
		}
		if IsZeroDate(s) {
			return time.Time{}, fmt.Errorf("timestamp is the zero date")
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	default:
		return time.Time{}, fmt.Errorf("timestamp has unsupported type %T", v)
	}
}

// IsZeroDate reports whether s is the "0001-01-01..." placeholder some
// providers send for unset timestamps.
func IsZeroDate(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "0001-01-01")
}

// ExtractTeam normalizes an owning-team slug: trim and lower-case. Empty
// input is always a hard error.
func ExtractTeam(raw string) (string, error) {
	team := strings.ToLower(strings.TrimSpace(raw))
	if team == "" {
		return "", fmt.Errorf("team is required")
	}
	return team, nil
}
