package alerts

// DetectSource inspects the structural shape of a decoded payload to decide
// which provider transformer applies. There is no declared type tag on the
// wire: Grafana payloads carry an alerts list or the legacy status/org
// fields, CloudWatch payloads are either an SNS notification envelope with
// an embedded JSON alarm body or the alarm body directly. A payload
// matching neither shape fails with UnknownSourceError.
func DetectSource(raw map[string]interface{}, env Envelope) (Source, error) {
	if raw == nil {
		return "", &UnknownSourceError{EventID: env.EventID}
	}

	// Direct alarm body
	if _, ok := raw["AlarmName"]; ok {
		return SourceCloudWatch, nil
	}
	// SNS notification envelope wrapping an alarm body
	if _, ok := raw["Message"]; ok {
		if typ, _ := raw["Type"].(string); typ == "Notification" {
			return SourceCloudWatch, nil
		}
		if _, ok := raw["TopicArn"]; ok {
			return SourceCloudWatch, nil
		}
	}

	// Grafana unified alerting carries an alerts list
	if _, ok := raw["alerts"].([]interface{}); ok {
		return SourceGrafana, nil
	}
	// Grafana legacy alerting carries status/state plus org or rule fields
	_, hasStatus := raw["status"]
	_, hasState := raw["state"]
	if hasStatus || hasState {
		if _, ok := raw["orgId"]; ok {
			return SourceGrafana, nil
		}
		if _, ok := raw["ruleId"]; ok {
			return SourceGrafana, nil
		}
		if _, ok := raw["ruleName"]; ok {
			return SourceGrafana, nil
		}
	}

	return "", &UnknownSourceError{EventID: env.EventID}
}
