package moderation

import (
	"strings"

	"crowdstage/internal/models"
	"crowdstage/internal/validation"
)

// Filter keeps the subjects whose state is in states. An empty states list
// keeps everything. The input is never modified.
func Filter(subjects []models.Subject, states []models.SubjectState) []models.Subject {
	if len(states) == 0 {
		out := make([]models.Subject, len(subjects))
		copy(out, subjects)
		return out
	}

	wanted := make(map[models.SubjectState]struct{}, len(states))
	for _, s := range states {
		wanted[s] = struct{}{}
	}

	out := make([]models.Subject, 0, len(subjects))
	for _, subject := range subjects {
		if _, ok := wanted[subject.State]; ok {
			out = append(out, subject)
		}
	}
	return out
}

// Counts tallies subjects per state. Every known state is present, even at zero.
func Counts(subjects []models.Subject) map[models.SubjectState]int {
	counts := make(map[models.SubjectState]int, len(models.SubjectStates))
	for _, s := range models.SubjectStates {
		counts[s] = 0
	}
	for _, subject := range subjects {
		counts[subject.State]++
	}
	return counts
}

// ParseStates reads a comma separated state filter such as "ACTIVE,blocked".
func ParseStates(raw string) ([]models.SubjectState, error) {
	var states []models.SubjectState
	seen := make(map[models.SubjectState]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		state := models.SubjectState(part)
		if !state.Known() {
			return nil, &validation.Error{Field: "state", Message: "unknown state " + part}
		}
		if !seen[state] {
			seen[state] = true
			states = append(states, state)
		}
	}
	return states, nil
}
