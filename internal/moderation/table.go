// Package moderation holds the account and event lifecycles and the
// operations admins and merchants use to move them.
package moderation

import (
	"errors"
	"fmt"

	"crowdstage/internal/models"
)

// ErrIllegalTransition is returned for an action the current state does not offer.
var ErrIllegalTransition = errors.New("illegal transition")

// Action names a moderation step.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionBlock   Action = "block"
	ActionUnblock Action = "unblock"
	ActionAccept  Action = "accept"

	ActionUpdateOffer Action = "update_offer"
)

// Option is one action offered in a given state.
type Option struct {
	Action Action              `json:"action"`
	Label  string              `json:"label"`
	Target models.SubjectState `json:"target"`
}

// Table is the account lifecycle. A state missing from the table, or mapped
// to no options, is terminal. Nothing moves an account to DELETED.
var Table = map[models.SubjectState][]Option{
	models.StatePendingApproval: {
		{Action: ActionApprove, Label: "approve", Target: models.StateActive},
		{Action: ActionReject, Label: "reject", Target: models.StateRejected},
	},
	models.StateActive: {
		{Action: ActionBlock, Label: "block", Target: models.StateBlocked},
	},
	models.StateBlocked: {
		{Action: ActionUnblock, Label: "unblock", Target: models.StateActive},
	},
	models.StateRejected: {
		{Action: ActionApprove, Label: "approve", Target: models.StateActive},
	},
	models.StateDeleted: nil,
}

// Actions returns the legal actions for state in display order.
func Actions(state models.SubjectState) []Option {
	options := Table[state]
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// Transition returns the state action leads to from state.
func Transition(state models.SubjectState, action Action) (models.SubjectState, error) {
	for _, opt := range Table[state] {
		if opt.Action == action {
			return opt.Target, nil
		}
	}
	return "", fmt.Errorf("%w: %s from %s", ErrIllegalTransition, action, state)
}

// EventOption is one merchant decision offered for an event.
type EventOption struct {
	Action Action            `json:"action"`
	Label  string            `json:"label"`
	Target models.EventState `json:"target"`
}

// EventTable is the event approval lifecycle. Approved and rejected events
// are final.
var EventTable = map[models.EventState][]EventOption{
	models.EventPendingApproval: {
		{Action: ActionAccept, Label: "accept", Target: models.EventApproved},
		{Action: ActionReject, Label: "reject", Target: models.EventRejected},
	},
	models.EventApproved: nil,
	models.EventRejected: nil,
}

// EventActions returns the merchant decisions available for state.
func EventActions(state models.EventState) []EventOption {
	options := EventTable[state]
	out := make([]EventOption, len(options))
	copy(out, options)
	return out
}

// EventTransition returns the state a merchant decision leads to.
func EventTransition(state models.EventState, action Action) (models.EventState, error) {
	for _, opt := range EventTable[state] {
		if opt.Action == action {
			return opt.Target, nil
		}
	}
	return "", fmt.Errorf("%w: %s from %s", ErrIllegalTransition, action, state)
}

// OfferEditable reports whether the offer text of an event in state may change.
func OfferEditable(state models.EventState) bool {
	return state == models.EventApproved
}
