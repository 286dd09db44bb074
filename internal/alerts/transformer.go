package alerts

// Transformer converts a provider-specific raw payload into the canonical
// AlertEvent. Implementations are stateless and pure: the same payload and
// envelope always produce the same event, and a required field that is
// missing or malformed fails with a ValidationError rather than a silent
// default.
type Transformer interface {
	// Source returns the provider this transformer handles
	Source() Source

	// Transform converts one decoded payload into a canonical AlertEvent
	Transform(raw map[string]interface{}, env Envelope) (*AlertEvent, error)
}
