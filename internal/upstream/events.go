package upstream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"crowdstage/internal/models"
)

type wireComment struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Text     string   `json:"text"`
	Date     wireDate `json:"date"`
}

// wireEvent mirrors the event service representation. targetAmount is an
// integer in minor units.
type wireEvent struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	Genres             []string      `json:"genres"`
	TargetAmount       int64         `json:"targetAmount"`
	CreationDate       wireDate      `json:"creationDate"`
	EventDate          wireDate      `json:"eventDate"`
	EndFundraisingDate wireDate      `json:"endFundraisingDate"`
	Artist             string        `json:"artistUsername"`
	Merchant           string        `json:"merchantUsername"`
	Pictures           []string      `json:"pictures"`
	AudioSamples       []string      `json:"audioSamples"`
	Comments           []wireComment `json:"comments"`
	Offer              string        `json:"offer"`
	EventState         string        `json:"eventState"`
}

func (w wireEvent) model() models.Event {
	event := models.Event{
		ID:                 w.ID,
		Name:               w.Name,
		Description:        w.Description,
		Genres:             w.Genres,
		TargetAmount:       models.Money(w.TargetAmount),
		CreatedAt:          w.CreationDate.ptr(),
		EventDate:          w.EventDate.Time,
		EndFundraisingDate: w.EndFundraisingDate.Time,
		ArtistUsername:     w.Artist,
		MerchantUsername:   w.Merchant,
		Pictures:           w.Pictures,
		AudioSamples:       w.AudioSamples,
		Offer:              w.Offer,
		State:              models.EventState(strings.ToUpper(strings.TrimSpace(w.EventState))),
	}
	for _, c := range w.Comments {
		event.Comments = append(event.Comments, models.Comment{
			ID:        c.ID,
			Username:  c.Username,
			Text:      c.Text,
			CreatedAt: c.Date.Time,
		})
	}
	return event
}

func eventModels(wire []wireEvent) []models.Event {
	events := make([]models.Event, 0, len(wire))
	for _, w := range wire {
		events = append(events, w.model())
	}
	return events
}

// Catalog returns the public event catalog.
func (c *Client) Catalog(ctx context.Context, token string) ([]models.Event, error) {
	var wire []wireEvent
	if err := c.do(ctx, http.MethodGet, c.endpoints.Event, "/api/event/get-catalog", token, nil, &wire); err != nil {
		return nil, err
	}
	return eventModels(wire), nil
}

// Event fetches a single event by id.
func (c *Client) Event(ctx context.Context, token, eventID string) (models.Event, error) {
	var wire wireEvent
	if err := c.do(ctx, http.MethodPost, c.endpoints.Event, "/api/event/get-event", token,
		map[string]string{"id": eventID}, &wire); err != nil {
		return models.Event{}, err
	}
	return wire.model(), nil
}

// CreateEvent submits an artist's event proposal. The caller is responsible
// for the schedule policy; endFundraising is sent as computed.
func (c *Client) CreateEvent(ctx context.Context, token string, event models.NewEvent, endFundraising time.Time) (models.Event, error) {
	body := wireEvent{
		Name:               event.Name,
		Description:        event.Description,
		Genres:             event.Genres,
		TargetAmount:       int64(event.TargetAmount),
		EventDate:          wireDate{event.EventDate},
		EndFundraisingDate: wireDate{endFundraising},
		Merchant:           event.MerchantUsername,
		Pictures:           event.Pictures,
		AudioSamples:       event.AudioSamples,
	}

	var created wireEvent
	if err := c.do(ctx, http.MethodPost, c.endpoints.Event, "/api/event/create", token, body, &created); err != nil {
		return models.Event{}, err
	}
	return created.model(), nil
}

// MerchantEvents lists every event proposed against the calling merchant's venue.
func (c *Client) MerchantEvents(ctx context.Context, token string) ([]models.Event, error) {
	var wire []wireEvent
	if err := c.do(ctx, http.MethodGet, c.endpoints.Event, "/event/merchant/get-events", token, nil, &wire); err != nil {
		return nil, err
	}
	return eventModels(wire), nil
}

// DecideEvent records a merchant's accept or reject decision. offer is only
// meaningful when accepting and may be empty.
func (c *Client) DecideEvent(ctx context.Context, token, eventID string, accepted bool, offer string) error {
	body := struct {
		EventID  string `json:"eventId"`
		Accepted bool   `json:"accepted"`
		Offer    string `json:"offer,omitempty"`
	}{EventID: eventID, Accepted: accepted, Offer: offer}

	return c.do(ctx, http.MethodPost, c.endpoints.Event, "/event/merchant/acceptance", token, body, nil)
}

// UpdateOffer revises the offer text of an approved event.
func (c *Client) UpdateOffer(ctx context.Context, token, eventID, offer string) error {
	body := struct {
		EventID string `json:"eventId"`
		Offer   string `json:"offer"`
	}{EventID: eventID, Offer: offer}

	return c.do(ctx, http.MethodPost, c.endpoints.Event, "/event/merchant/update-offert", token, body, nil)
}
