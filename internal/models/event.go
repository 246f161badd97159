package models

import "time"

// EventState is the merchant approval state of an event.
type EventState string

const (
	EventPendingApproval EventState = "PENDING_APPROVAL_BY_MERCHANT"
	EventApproved        EventState = "APPROVED"
	EventRejected        EventState = "REJECTED"
)

// Comment is a fan comment attached to an event.
type Comment struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a crowdfunded musical event proposed by an artist to a merchant's venue.
type Event struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Genres             []string   `json:"genres"`
	TargetAmount       Money      `json:"target_amount"` // minor units
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	EventDate          time.Time  `json:"event_date"`
	EndFundraisingDate time.Time  `json:"end_fundraising_date"`
	ArtistUsername     string     `json:"artist_username"`
	MerchantUsername   string     `json:"merchant_username"`
	Pictures           []string   `json:"pictures,omitempty"`
	AudioSamples       []string   `json:"audio_samples,omitempty"`
	Comments           []Comment  `json:"comments,omitempty"`
	Offer              string     `json:"offer,omitempty"`
	State              EventState `json:"state"`
}

// VisibleComments returns the comments that may be shown at now. Comments are
// hidden until the event date has passed.
func (e Event) VisibleComments(now time.Time) []Comment {
	if !now.After(e.EventDate) {
		return nil
	}
	return e.Comments
}

// NewEvent carries what an artist submits when proposing an event.
type NewEvent struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Genres           []string  `json:"genres"`
	TargetAmount     Money     `json:"target_amount"`
	EventDate        time.Time `json:"event_date"`
	MerchantUsername string    `json:"merchant_username"`
	Pictures         []string  `json:"pictures,omitempty"`
	AudioSamples     []string  `json:"audio_samples,omitempty"`
}
