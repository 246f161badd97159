package models

type stateStyle struct {
	label string
	color string
}

var stateStyles = map[string]stateStyle{
	string(StateActive):          {"Active", "success"},
	string(StatePendingApproval): {"Pending approval", "warning"},
	// REJECTED is shared by subject and event lifecycles.
	string(StateRejected):        {"Rejected", "danger"},
	string(StateBlocked):         {"Blocked", "dark"},
	string(StateDeleted):         {"Deleted", "secondary"},
	string(EventPendingApproval): {"Waiting for merchant", "warning"},
	string(EventApproved):        {"Approved", "success"},
}

// StateLabel returns the display label for a subject or event state.
// Unknown states are shown as-is.
func StateLabel(state string) string {
	if style, ok := stateStyles[state]; ok {
		return style.label
	}
	return state
}

// StateColor returns the badge colour token for a subject or event state.
func StateColor(state string) string {
	if style, ok := stateStyles[state]; ok {
		return style.color
	}
	return "secondary"
}
