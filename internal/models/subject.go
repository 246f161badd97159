package models

import "time"

// SubjectKind distinguishes what a moderation decision applies to. Admins
// moderate artists and merchants; merchants decide on events.
type SubjectKind string

const (
	KindArtist   SubjectKind = "artist"
	KindMerchant SubjectKind = "merchant"
	KindEvent    SubjectKind = "event"
)

// SubjectState is the moderation state of an artist or merchant account.
type SubjectState string

const (
	StateActive          SubjectState = "ACTIVE"
	StatePendingApproval SubjectState = "PENDING_APPROVAL"
	StateRejected        SubjectState = "REJECTED"
	StateBlocked         SubjectState = "BLOCKED"
	StateDeleted         SubjectState = "DELETED"
)

// SubjectStates lists every known subject state in display order.
var SubjectStates = []SubjectState{
	StateActive,
	StatePendingApproval,
	StateRejected,
	StateBlocked,
	StateDeleted,
}

// Known reports whether s is one of the defined subject states.
func (s SubjectState) Known() bool {
	for _, known := range SubjectStates {
		if s == known {
			return true
		}
	}
	return false
}

// Subject is an artist or merchant account under admin moderation.
type Subject struct {
	ID       string       `json:"id"`
	Username string       `json:"username"`
	Email    string       `json:"email,omitempty"`
	Kind     SubjectKind  `json:"kind"`
	State    SubjectState `json:"state"`
}

// ModerationDecision records one applied moderation action.
type ModerationDecision struct {
	Kind      SubjectKind `json:"kind"`
	SubjectID string      `json:"subject_id"`
	Action    string      `json:"action"`
	FromState string      `json:"from_state"`
	ToState   string      `json:"to_state"`
	Actor     string      `json:"actor"`
	Note      string      `json:"note,omitempty"`
	DecidedAt time.Time   `json:"decided_at"`
}
