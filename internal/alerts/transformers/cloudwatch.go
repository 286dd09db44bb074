package transformers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alertfunnel/alertfunnel/internal/alerts"
	"github.com/alertfunnel/alertfunnel/internal/utils"
	"github.com/rs/zerolog/log"
)

// CloudWatchProviderVersion identifies this transformer revision in
// AlertEvent.provider_version.
const CloudWatchProviderVersion = "cloudwatch:2025-06"

const (
	// MaxAlarmDescriptionLen is the hard input cap on AlarmDescription
	// before metadata parsing
	MaxAlarmDescriptionLen = 4096
	// MaxNewlineSegments bounds the newline-delimited metadata form
	MaxNewlineSegments = 20
	// MaxPipeSegments bounds the legacy pipe-delimited metadata form
	MaxPipeSegments = 10
	// MaxMetadataValueLen truncates each parsed metadata value
	MaxMetadataValueLen = 255
)

// metadataKeys is the fixed whitelist of KEY=VALUE keys interpreted as
// metadata. Any other KEY=VALUE-shaped line stays literal description text.
var metadataKeys = map[string]bool{
	"TEAM":     true,
	"PRIORITY": true,
	"RUNBOOK":  true,
	"SUMMARY":  true,
}

var keyValuePattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\s*=\s*(.*)$`)

// defaultRegionAliases maps CloudWatch's human region display names to
// region codes. Unknown display names fall back to a slugified form.
var defaultRegionAliases = map[string]string{
	"us east (n. virginia)":      "us-east-1",
	"us east (ohio)":             "us-east-2",
	"us west (n. california)":    "us-west-1",
	"us west (oregon)":           "us-west-2",
	"eu (ireland)":               "eu-west-1",
	"europe (ireland)":           "eu-west-1",
	"eu (london)":                "eu-west-2",
	"europe (london)":            "eu-west-2",
	"eu (frankfurt)":             "eu-central-1",
	"europe (frankfurt)":         "eu-central-1",
	"asia pacific (tokyo)":       "ap-northeast-1",
	"asia pacific (singapore)":   "ap-southeast-1",
	"asia pacific (sydney)":      "ap-southeast-2",
	"asia pacific (mumbai)":      "ap-south-1",
	"canada (central)":           "ca-central-1",
	"south america (sao paulo)":  "sa-east-1",
}

// dimensionPreference is the ordered lookup list for the alarm dimension
// that names the resource. The list order wins, not the dimension order.
var dimensionPreference = []string{
	"InstanceId",
	"RunnerName",
	"JobName",
	"ServiceName",
	"QueueName",
	"AutoScalingGroupName",
}

// namespaceResourceTypes maps metric-namespace keywords to resource types.
var namespaceResourceTypes = []struct {
	keyword string
	rtype   alerts.ResourceType
}{
	{"runner", alerts.ResourceRunner},
	{"ec2", alerts.ResourceInstance},
	{"batch", alerts.ResourceJob},
	{"ecs", alerts.ResourceService},
	{"elb", alerts.ResourceService},
	{"applicationelb", alerts.ResourceService},
}

// CloudWatchTransformer handles CloudWatch alarm notifications in all three
// wire shapes: an SNS notification envelope whose Message is a JSON string,
// a raw JSON string (unwrapped upstream), or a direct alarm object.
type CloudWatchTransformer struct {
	regionAliases map[string]string
}

// NewCloudWatch creates a CloudWatch transformer. extraAliases entries are
// merged over the built-in region display-name table.
func NewCloudWatch(extraAliases map[string]string) *CloudWatchTransformer {
	aliases := make(map[string]string, len(defaultRegionAliases)+len(extraAliases))
	for k, v := range defaultRegionAliases {
		aliases[k] = v
	}
	for k, v := range extraAliases {
		aliases[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &CloudWatchTransformer{regionAliases: aliases}
}

// CloudWatchAlarm is the alarm state-change record
type CloudWatchAlarm struct {
	AlarmName        string `json:"AlarmName"`
	AlarmArn         string `json:"AlarmArn"`
	AlarmDescription string `json:"AlarmDescription"`
	AWSAccountID     string `json:"AWSAccountId"`
	NewStateValue    string `json:"NewStateValue"`
	NewStateReason   string `json:"NewStateReason"`
	OldStateValue    string `json:"OldStateValue"`
	Region           string `json:"Region"`
	StateChangeTime  string `json:"StateChangeTime"`
	Trigger          struct {
		MetricName string `json:"MetricName"`
		Namespace  string `json:"Namespace"`
		Dimensions []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"Dimensions"`
	} `json:"Trigger"`
}

// alarmMetadata is the structured metadata parsed from AlarmDescription
type alarmMetadata struct {
	values   map[string]string
	leftover []string
}

// Source returns the provider handled by this transformer
func (t *CloudWatchTransformer) Source() alerts.Source {
	return alerts.SourceCloudWatch
}

// Transform converts a CloudWatch alarm notification into the canonical
// AlertEvent.
func (t *CloudWatchTransformer) Transform(raw map[string]interface{}, env alerts.Envelope) (*alerts.AlertEvent, error) {
	alarm, err := t.unwrapAlarm(raw, env)
	if err != nil {
		return nil, err
	}

	debugFields := func() map[string]string {
		return map[string]string{
			"alarm_name": alarm.AlarmName,
			"new_state":  alarm.NewStateValue,
		}
	}

	title := utils.SanitizeText(alarm.AlarmName, alerts.MaxTitleLen)
	if title == "" {
		return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env,
			"missing required field AlarmName", map[string]string{"new_state": alarm.NewStateValue})
	}

	var state alerts.State
	switch strings.ToUpper(strings.TrimSpace(alarm.NewStateValue)) {
	case "ALARM":
		state = alerts.StateFiring
	case "OK":
		state = alerts.StateResolved
	default:
		// INSUFFICIENT_DATA and anything else is a hard error: guessing a
		// state here would corrupt the dedup lifecycle downstream.
		return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env,
			fmt.Sprintf("invalid NewStateValue %q", alarm.NewStateValue), debugFields())
	}

	meta, err := t.parseAlarmDescription(alarm.AlarmDescription)
	if err != nil {
		return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env, err.Error(), debugFields())
	}

	team, err := alerts.ExtractTeam(meta.values["TEAM"])
	if err != nil {
		return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env,
			"missing required field TEAM in alarm description", debugFields())
	}
	priority, err := alerts.ParsePriority(meta.values["PRIORITY"])
	if err != nil {
		return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env,
			fmt.Sprintf("missing or invalid required field PRIORITY in alarm description: %v", err), debugFields())
	}

	region := t.resolveRegion(alarm)

	description := meta.values["SUMMARY"]
	if description == "" {
		description = strings.Join(meta.leftover, " ")
	}

	resource := t.resolveResource(alarm)
	resource.Region = region

	event := &alerts.AlertEvent{
		SchemaVersion:   alerts.SchemaVersion,
		ProviderVersion: CloudWatchProviderVersion,
		Source:          alerts.SourceCloudWatch,
		State:           state,
		Title:           title,
		Description:     utils.SanitizeText(description, alerts.MaxDescriptionLen),
		Reason:          utils.SanitizeText(alarm.NewStateReason, alerts.MaxReasonLen),
		Priority:        priority,
		OccurredAt:      alerts.TimestampOrNow(alarm.StateChangeTime),
		Team:            team,
		Resource:        resource,
		Identity: alerts.Identity{
			AccountID: alarm.AWSAccountID,
			Region:    region,
			AlarmRef:  t.alarmRef(alarm),
		},
		Links: alerts.Links{
			RunbookURL: utils.ValidateURL(meta.values["RUNBOOK"]),
		},
		RawProvider: raw,
	}
	return event, nil
}

// unwrapAlarm normalizes the wire shapes to one alarm record. An SNS
// notification envelope carries the alarm as a JSON string in Message;
// otherwise the payload is the alarm object itself.
func (t *CloudWatchTransformer) unwrapAlarm(raw map[string]interface{}, env alerts.Envelope) (*CloudWatchAlarm, error) {
	var body []byte
	if msg, ok := raw["Message"].(string); ok {
		body = []byte(msg)
	} else {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env, "payload is not serializable", nil)
		}
		body = encoded
	}

	var alarm CloudWatchAlarm
	if err := json.Unmarshal(body, &alarm); err != nil {
		return nil, alerts.NewValidationError(alerts.SourceCloudWatch, env,
			fmt.Sprintf("alarm body is not valid JSON: %v", err), nil)
	}
	return &alarm, nil
}

// parseAlarmDescription extracts the whitelisted KEY=VALUE metadata from an
// alarm description. Both the newline-delimited and the legacy
// pipe-delimited syntax are supported; the newline form wins when both are
// present. Non-whitelisted KEY=VALUE lines are kept as literal description
// text with a logged warning rather than silently dropped or trusted.
func (t *CloudWatchTransformer) parseAlarmDescription(desc string) (*alarmMetadata, error) {
	if len(desc) > MaxAlarmDescriptionLen {
		return nil, fmt.Errorf("alarm description exceeds %d characters", MaxAlarmDescriptionLen)
	}

	var segments []string
	if strings.Contains(desc, "\n") {
		segments = strings.Split(desc, "\n")
		if len(segments) > MaxNewlineSegments {
			segments = segments[:MaxNewlineSegments]
		}
	} else {
		segments = strings.Split(desc, "|")
		if len(segments) > MaxPipeSegments {
			segments = segments[:MaxPipeSegments]
		}
	}

	meta := &alarmMetadata{values: make(map[string]string)}
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		m := keyValuePattern.FindStringSubmatch(segment)
		if m == nil {
			meta.leftover = append(meta.leftover, segment)
			continue
		}
		key := strings.ToUpper(m[1])
		if !metadataKeys[key] {
			log.Warn().Str("key", key).Msg("unrecognized alarm description key kept as literal text")
			meta.leftover = append(meta.leftover, segment)
			continue
		}
		value := strings.TrimSpace(m[2])
		if len(value) > MaxMetadataValueLen {
			value = value[:MaxMetadataValueLen]
		}
		meta.values[key] = value
	}
	return meta, nil
}

// resolveResource infers the resource type from a metric-namespace keyword
// and the resource id from the prioritized dimension lookup.
func (t *CloudWatchTransformer) resolveResource(alarm *CloudWatchAlarm) alerts.Resource {
	res := alerts.Resource{Type: alerts.ResourceGeneric}

	namespace := strings.ToLower(alarm.Trigger.Namespace)
	for _, entry := range namespaceResourceTypes {
		if strings.Contains(namespace, entry.keyword) {
			res.Type = entry.rtype
			break
		}
	}

	dims := make(map[string]string, len(alarm.Trigger.Dimensions))
	for _, d := range alarm.Trigger.Dimensions {
		dims[d.Name] = d.Value
	}
	for _, name := range dimensionPreference {
		if v := dims[name]; v != "" {
			res.ID = utils.SanitizeText(v, alerts.MaxTitleLen)
			delete(dims, name)
			break
		}
	}
	if len(dims) > 0 && res.ID != "" {
		res.Extra = dims
	}
	return res
}

// resolveRegion prefers the region embedded in the alarm ARN over the
// free-text region display name, which is mapped through the alias table
// before falling back to a slugified form.
func (t *CloudWatchTransformer) resolveRegion(alarm *CloudWatchAlarm) string {
	// arn:aws:cloudwatch:us-east-1:123456789012:alarm:name
	if parts := strings.Split(alarm.AlarmArn, ":"); len(parts) > 3 && parts[3] != "" {
		return parts[3]
	}
	display := strings.ToLower(strings.TrimSpace(alarm.Region))
	if display == "" {
		return ""
	}
	if code, ok := t.regionAliases[display]; ok {
		return code
	}
	return slugify(display)
}

func (t *CloudWatchTransformer) alarmRef(alarm *CloudWatchAlarm) string {
	if alarm.AlarmArn != "" {
		return alarm.AlarmArn
	}
	return alarm.AlarmName
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
