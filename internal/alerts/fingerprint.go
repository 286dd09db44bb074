package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives the stable deduplication identity of an alert: a
// SHA-256 hex digest over a source-specific subset of fields. The subset
// always includes the source and a normalized title, the resource type/id
// when present, and the provider identity discriminators. Timestamps, raw
// payload, state, description, and links are deliberately excluded so that
// firing/resolved transitions and redeliveries of the same condition
// collapse to one identity.
func Fingerprint(event *AlertEvent) (string, error) {
	fields := map[string]string{
		"source": string(event.Source),
		"title":  strings.ToLower(strings.TrimSpace(event.Title)),
	}
	if event.Resource.Type != "" {
		fields["resource_type"] = string(event.Resource.Type)
	}
	if event.Resource.ID != "" {
		fields["resource_id"] = event.Resource.ID
	}

	switch event.Source {
	case SourceCloudWatch:
		if event.Identity.AccountID != "" {
			fields["account_id"] = event.Identity.AccountID
		}
		if event.Identity.Region != "" {
			fields["region"] = event.Identity.Region
		}
		if event.Identity.AlarmRef != "" {
			fields["alarm_ref"] = event.Identity.AlarmRef
		}
	case SourceGrafana:
		if event.Identity.OrgID != "" {
			fields["org_id"] = event.Identity.OrgID
		}
		if event.Identity.RuleID != "" {
			fields["rule_id"] = event.Identity.RuleID
		}
	default:
		// Unreachable given upstream validation, but never hash an
		// identity we do not understand.
		return "", fmt.Errorf("cannot fingerprint unknown source %q", event.Source)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	sum := sha256.Sum256([]byte(strings.Join(pairs, "|")))
	return hex.EncodeToString(sum[:]), nil
}
