package transformers

import "github.com/alertfunnel/alertfunnel/internal/alerts"

// Default returns the transformer for every supported provider, keyed by
// source. regionAliases extends the CloudWatch region display-name table
// and may be nil.
func Default(regionAliases map[string]string) map[alerts.Source]alerts.Transformer {
	return map[alerts.Source]alerts.Transformer{
		alerts.SourceGrafana:    NewGrafana(),
		alerts.SourceCloudWatch: NewCloudWatch(regionAliases),
	}
}
