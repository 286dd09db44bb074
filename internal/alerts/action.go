package alerts

// Action is the lifecycle decision the processor makes for one event.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionClose  Action = "CLOSE"
)

// ActionForState maps the normalized alert state onto the lifecycle
// action: a firing alert creates (or reopens), a resolved alert closes.
func ActionForState(state State) Action {
	if state == StateResolved {
		return ActionClose
	}
	return ActionCreate
}
