package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crowdstage/internal/models"
	"crowdstage/internal/notify"
)

// EventGateway is the event service as the merchant queue needs it.
type EventGateway interface {
	MerchantEvents(ctx context.Context, token string) ([]models.Event, error)
	DecideEvent(ctx context.Context, token, eventID string, accepted bool, offer string) error
	UpdateOffer(ctx context.Context, token, eventID, offer string) error
}

// EventQueue holds each merchant's view of the events proposed to them.
type EventQueue struct {
	gateway   EventGateway
	auditor   Auditor
	publisher notify.Publisher
	now       func() time.Time

	mu         sync.Mutex
	events     map[string][]models.Event // by merchant
	processing map[string]struct{}
}

// NewEventQueue creates a queue. auditor and publisher may be nil.
func NewEventQueue(gateway EventGateway, auditor Auditor, publisher notify.Publisher) *EventQueue {
	return &EventQueue{
		gateway:    gateway,
		auditor:    auditor,
		publisher:  publisher,
		now:        time.Now,
		events:     make(map[string][]models.Event),
		processing: make(map[string]struct{}),
	}
}

// Pending returns the merchant's events still waiting for a decision.
func (q *EventQueue) Pending(ctx context.Context, token, merchant string) ([]models.Event, error) {
	events, err := q.refresh(ctx, token, merchant)
	if err != nil {
		return nil, err
	}

	pending := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.State == models.EventPendingApproval {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// Accept approves a pending event. offer may be empty.
func (q *EventQueue) Accept(ctx context.Context, token, merchant, eventID, offer string) (models.Event, error) {
	return q.decide(ctx, token, merchant, eventID, ActionAccept, offer)
}

// Reject declines a pending event.
func (q *EventQueue) Reject(ctx context.Context, token, merchant, eventID string) (models.Event, error) {
	return q.decide(ctx, token, merchant, eventID, ActionReject, "")
}

func (q *EventQueue) decide(ctx context.Context, token, merchant, eventID string, action Action, offer string) (models.Event, error) {
	event, err := q.lookup(ctx, token, merchant, eventID)
	if err != nil {
		return models.Event{}, err
	}

	target, err := EventTransition(event.State, action)
	if err != nil {
		return models.Event{}, err
	}

	if !q.begin(eventID) {
		return models.Event{}, ErrInProgress
	}
	defer q.end(eventID)

	if err := q.gateway.DecideEvent(ctx, token, eventID, action == ActionAccept, offer); err != nil {
		return models.Event{}, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}

	updated := event
	updated.State = target
	if action == ActionAccept {
		updated.Offer = offer
	}
	updated = q.settle(ctx, token, merchant, updated)

	q.record(ctx, merchant, eventID, action, string(event.State), string(updated.State))
	return updated, nil
}

// UpdateOffer revises the offer of an approved event.
func (q *EventQueue) UpdateOffer(ctx context.Context, token, merchant, eventID, offer string) (models.Event, error) {
	event, err := q.lookup(ctx, token, merchant, eventID)
	if err != nil {
		return models.Event{}, err
	}
	if !OfferEditable(event.State) {
		return models.Event{}, fmt.Errorf("%w: offer update from %s", ErrIllegalTransition, event.State)
	}

	if !q.begin(eventID) {
		return models.Event{}, ErrInProgress
	}
	defer q.end(eventID)

	if err := q.gateway.UpdateOffer(ctx, token, eventID, offer); err != nil {
		return models.Event{}, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}

	updated := event
	updated.Offer = offer
	updated = q.settle(ctx, token, merchant, updated)

	q.record(ctx, merchant, eventID, ActionUpdateOffer, string(event.State), string(updated.State))
	return updated, nil
}

// settle stores the locally applied change and then tries to replace it
// with the backend's copy.
func (q *EventQueue) settle(ctx context.Context, token, merchant string, applied models.Event) models.Event {
	q.patch(merchant, applied)

	events, err := q.refresh(ctx, token, merchant)
	if err != nil {
		log.Warn().Err(err).
			Str("merchant", merchant).
			Str("event_id", applied.ID).
			Msg("Refresh after event decision failed, keeping local state")
		return applied
	}
	for _, e := range events {
		if e.ID == applied.ID {
			return e
		}
	}
	return applied
}

func (q *EventQueue) lookup(ctx context.Context, token, merchant, eventID string) (models.Event, error) {
	q.mu.Lock()
	for _, e := range q.events[merchant] {
		if e.ID == eventID {
			q.mu.Unlock()
			return e, nil
		}
	}
	q.mu.Unlock()

	events, err := q.refresh(ctx, token, merchant)
	if err != nil {
		return models.Event{}, err
	}
	for _, e := range events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return models.Event{}, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
}

func (q *EventQueue) refresh(ctx context.Context, token, merchant string) ([]models.Event, error) {
	events, err := q.gateway.MerchantEvents(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list merchant events: %w", err)
	}

	q.mu.Lock()
	q.events[merchant] = events
	q.mu.Unlock()
	return events, nil
}

func (q *EventQueue) patch(merchant string, event models.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events[merchant]
	for i := range events {
		if events[i].ID == event.ID {
			events[i] = event
			return
		}
	}
	q.events[merchant] = append(events, event)
}

func (q *EventQueue) begin(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.processing[id]; busy {
		return false
	}
	q.processing[id] = struct{}{}
	return true
}

func (q *EventQueue) end(id string) {
	q.mu.Lock()
	delete(q.processing, id)
	q.mu.Unlock()
}

func (q *EventQueue) record(ctx context.Context, merchant, eventID string, action Action, from, to string) {
	recordDecision(ctx, q.auditor, q.publisher, models.ModerationDecision{
		Kind:      models.KindEvent,
		SubjectID: eventID,
		Action:    string(action),
		FromState: from,
		ToState:   to,
		Actor:     merchant,
		DecidedAt: q.now().UTC(),
	})

	log.Info().
		Str("merchant", merchant).
		Str("event_id", eventID).
		Str("action", string(action)).
		Str("state", to).
		Msg("Event decision applied")
}
