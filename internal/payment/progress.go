package payment

import (
	"context"
	"fmt"
	"sync"

	"crowdstage/internal/models"
)

// TotalReader fetches the amount raised for an event.
type TotalReader interface {
	EventTotal(ctx context.Context, token, eventID string) (models.Money, error)
}

// Progress caches raised totals per event. A cached total is reused until
// the event's refresh trigger moves, so each terminal donation outcome costs
// exactly one re-fetch.
type Progress struct {
	reader TotalReader

	mu     sync.Mutex
	totals map[string]*eventTotal
}

type eventTotal struct {
	raised  models.Money
	trigger uint64
	fetched uint64
	valid   bool
}

// EventProgress is how far an event is towards its target.
type EventProgress struct {
	EventID        string       `json:"event_id"`
	Raised         models.Money `json:"raised"`
	Target         models.Money `json:"target"`
	Percent        int          `json:"percent"`
	RefreshTrigger uint64       `json:"refresh_trigger"`
}

// NewProgress creates an empty cache.
func NewProgress(reader TotalReader) *Progress {
	return &Progress{
		reader: reader,
		totals: make(map[string]*eventTotal),
	}
}

func (p *Progress) entry(eventID string) *eventTotal {
	e, ok := p.totals[eventID]
	if !ok {
		e = &eventTotal{}
		p.totals[eventID] = e
	}
	return e
}

// Bump moves the refresh trigger of an event and returns its new value.
func (p *Progress) Bump(eventID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entry(eventID)
	e.trigger++
	return e.trigger
}

// Trigger returns the current refresh trigger of an event.
func (p *Progress) Trigger(eventID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.totals[eventID]; ok {
		return e.trigger
	}
	return 0
}

// Raised returns the amount raised for eventID, fetching it when the cache
// is empty or stale.
func (p *Progress) Raised(ctx context.Context, token, eventID string) (models.Money, uint64, error) {
	p.mu.Lock()
	e := p.entry(eventID)
	if e.valid && e.fetched == e.trigger {
		raised, trigger := e.raised, e.trigger
		p.mu.Unlock()
		return raised, trigger, nil
	}
	trigger := e.trigger
	p.mu.Unlock()

	raised, err := p.reader.EventTotal(ctx, token, eventID)
	if err != nil {
		return 0, trigger, fmt.Errorf("fetch total for event %s: %w", eventID, err)
	}

	p.mu.Lock()
	e = p.entry(eventID)
	// A bump that arrived during the fetch keeps the entry stale.
	if e.trigger == trigger {
		e.raised = raised
		e.fetched = trigger
		e.valid = true
	}
	p.mu.Unlock()
	return raised, trigger, nil
}

// For reports the progress of event towards its target.
func (p *Progress) For(ctx context.Context, token string, event models.Event) (EventProgress, error) {
	raised, trigger, err := p.Raised(ctx, token, event.ID)
	if err != nil {
		return EventProgress{}, err
	}
	return EventProgress{
		EventID:        event.ID,
		Raised:         raised,
		Target:         event.TargetAmount,
		Percent:        models.Percent(raised, event.TargetAmount),
		RefreshTrigger: trigger,
	}, nil
}
