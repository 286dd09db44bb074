package transformers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/alertfunnel/alertfunnel/internal/utils"
)

// GrafanaProviderVersion identifies this transformer revision in
// AlertEvent.provider_version.
const GrafanaProviderVersion = "grafana:2025-06"

// GrafanaTransformer handles Grafana alerting payloads, both the unified
// alerting shape (alerts list) and the legacy top-level fields.
type GrafanaTransformer struct{}

// NewGrafana creates a new Grafana transformer
func NewGrafana() *GrafanaTransformer {
	return &GrafanaTransformer{}
}

// GrafanaPayload represents a Grafana alerting payload
type GrafanaPayload struct {
	// Unified alerting
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"`
	Alerts            []GrafanaAlert    `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	OrgID             json.Number       `json:"orgId"`

	// Legacy alerting
	Title   string      `json:"title"`
	State   string      `json:"state"`
	Message string      `json:"message"`
	RuleID  json.Number `json:"ruleId"`
	RuleURL string      `json:"ruleUrl"`
	Team    string      `json:"team"`
}

// GrafanaAlert represents a single alert in the unified alerting list
type GrafanaAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	DashboardURL string            `json:"dashboardURL"`
	GeneratorURL string            `json:"generatorURL"`
}

// Source returns the provider handled by this transformer
func (t *GrafanaTransformer) Source() alerts.Source {
	return alerts.SourceGrafana
}

// Transform converts a Grafana payload into the canonical AlertEvent. It
// operates on the first element of the alerts list, falling back to the
// legacy top-level fields when the list is empty.
func (t *GrafanaTransformer) Transform(raw map[string]interface{}, env alerts.Envelope) (*alerts.AlertEvent, error) {
	body, err := json.Marshal(raw)
	if err != nil {
		return nil, alerts.NewValidationError(alerts.SourceGrafana, env, "payload is not serializable", nil)
	}
	var payload GrafanaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, alerts.NewValidationError(alerts.SourceGrafana, env,
			fmt.Sprintf("malformed grafana payload: %v", err), nil)
	}

	var alert GrafanaAlert
	if len(payload.Alerts) > 0 {
		alert = payload.Alerts[0]
	}

	title := t.resolveTitle(payload, alert)
	state := t.resolveState(payload, alert)

	priority, err := t.resolvePriority(payload, alert)
	if err != nil {
		return nil, alerts.NewValidationError(alerts.SourceGrafana, env, err.Error(), map[string]string{
			"title":  title,
			"org_id": payload.OrgID.String(),
		})
	}
	team, err := t.resolveTeam(payload, alert)
	if err != nil {
		return nil, alerts.NewValidationError(alerts.SourceGrafana, env, "missing required team", map[string]string{
			"title":  title,
			"org_id": payload.OrgID.String(),
		})
	}

	event := &alerts.AlertEvent{
		SchemaVersion:   alerts.SchemaVersion,
		ProviderVersion: GrafanaProviderVersion,
		Source:          alerts.SourceGrafana,
		State:           state,
		Title:           title,
		Description:     utils.SanitizeText(t.firstNonEmpty(alert.Annotations["description"], payload.Message), alerts.MaxDescriptionLen),
		Reason:          utils.SanitizeText(alert.Annotations["summary"], alerts.MaxReasonLen),
		Priority:        priority,
		OccurredAt:      t.resolveOccurredAt(alert, state),
		Team:            team,
		Resource:        t.resolveResource(alert),
		Identity:        t.resolveIdentity(payload, alert),
		Links:           t.resolveLinks(payload, alert),
		RawProvider:     raw,
	}
	return event, nil
}

// resolveTitle walks the ordered candidate list: alert-level alertname
// label, top-level title, grouping label, fixed placeholder.
func (t *GrafanaTransformer) resolveTitle(payload GrafanaPayload, alert GrafanaAlert) string {
	candidates := []string{
		alert.Labels["alertname"],
		payload.Title,
		payload.GroupLabels["alertname"],
	}
	for _, c := range candidates {
		if title := utils.SanitizeText(c, alerts.MaxTitleLen); title != "" {
			return title
		}
	}
	return "Grafana alert"
}

func (t *GrafanaTransformer) resolveState(payload GrafanaPayload, alert GrafanaAlert) alerts.State {
	status := alert.Status
	if status == "" {
		status = payload.Status
	}
	if status == "" {
		status = payload.State
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "resolved", "ok":
		return alerts.StateResolved
	case "firing", "alerting":
		return alerts.StateFiring
	default:
		// Ambiguous status is treated as firing: a spurious open is
		// recoverable, a missed open is not.
		return alerts.StateFiring
	}
}

// resolveOccurredAt picks the first usable timestamp among the start/end
// candidates, preferring the end time for resolved alerts since that is the
// provider's state-change time. Zero dates ("0001-01-01...") are skipped.
func (t *GrafanaTransformer) resolveOccurredAt(alert GrafanaAlert, state alerts.State) time.Time {
	candidates := []string{alert.StartsAt, alert.EndsAt}
	if state == alerts.StateResolved {
		candidates = []string{alert.EndsAt, alert.StartsAt}
	}
	for _, c := range candidates {
		if c == "" || alerts.IsZeroDate(c) {
			continue
		}
		return alerts.TimestampOrNow(c)
	}
	return alerts.TimestampOrNow(nil)
}

// resolvePriority favors the dedicated annotation over alert labels over
// the top-level fallback, in that order. Grafana rules may carry
// rule-level severity defaults, so the lenient parse applies, but a
// payload with no priority source at all is a hard error.
func (t *GrafanaTransformer) resolvePriority(payload GrafanaPayload, alert GrafanaAlert) (alerts.Priority, error) {
	candidates := []string{
		alert.Annotations["priority"],
		alert.Labels["priority"],
		alert.Labels["severity"],
		payload.CommonLabels["severity"],
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return alerts.PriorityOrDefault(c), nil
		}
	}
	return "", fmt.Errorf("missing required priority")
}

func (t *GrafanaTransformer) resolveTeam(payload GrafanaPayload, alert GrafanaAlert) (string, error) {
	candidates := []string{
		alert.Annotations["team"],
		alert.Labels["team"],
		payload.CommonLabels["team"],
		payload.Team,
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return alerts.ExtractTeam(c)
		}
	}
	return "", fmt.Errorf("team is required")
}

func (t *GrafanaTransformer) resolveResource(alert GrafanaAlert) alerts.Resource {
	res := alerts.Resource{Type: alerts.ResourceGeneric}
	if rt := strings.ToLower(strings.TrimSpace(alert.Labels["resource_type"])); alerts.KnownResourceType(rt) {
		res.Type = alerts.ResourceType(rt)
	}
	switch {
	case alert.Labels["resource_id"] != "":
		res.ID = utils.SanitizeText(alert.Labels["resource_id"], alerts.MaxTitleLen)
	case alert.Labels["instance"] != "":
		res.ID = utils.SanitizeText(alert.Labels["instance"], alerts.MaxTitleLen)
		if res.Type == alerts.ResourceGeneric {
			res.Type = alerts.ResourceInstance
		}
	case alert.Labels["job"] != "":
		res.ID = utils.SanitizeText(alert.Labels["job"], alerts.MaxTitleLen)
		if res.Type == alerts.ResourceGeneric {
			res.Type = alerts.ResourceJob
		}
	}
	if region := strings.TrimSpace(alert.Labels["region"]); region != "" {
		res.Region = strings.ToLower(region)
	}
	return res
}

func (t *GrafanaTransformer) resolveIdentity(payload GrafanaPayload, alert GrafanaAlert) alerts.Identity {
	id := alerts.Identity{}
	if org := payload.OrgID.String(); org != "" && org != "0" {
		id.OrgID = org
	}
	if rule := alert.Labels["__alert_rule_uid__"]; rule != "" {
		id.RuleID = rule
	} else if rule := payload.RuleID.String(); rule != "" && rule != "0" {
		id.RuleID = rule
	}
	return id
}

func (t *GrafanaTransformer) resolveLinks(payload GrafanaPayload, alert GrafanaAlert) alerts.Links {
	dashboard := alert.DashboardURL
	if dashboard == "" {
		dashboard = payload.ExternalURL
	}
	source := alert.GeneratorURL
	if source == "" {
		source = payload.RuleURL
	}
	return alerts.Links{
		RunbookURL:   utils.ValidateURL(alert.Annotations["runbook_url"]),
		DashboardURL: utils.ValidateURL(dashboard),
		SourceURL:    utils.ValidateURL(source),
	}
}

func (t *GrafanaTransformer) firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
