package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crowdstage/internal/models"
	"crowdstage/internal/notify"
)

var (
	// ErrInProgress is returned while another request is already moving the same record.
	ErrInProgress = errors.New("operation already in progress")
	// ErrOperationFailed wraps an upstream failure to apply a decision.
	ErrOperationFailed = errors.New("moderation operation failed")
	// ErrNotFound is returned for an unknown subject or event.
	ErrNotFound = errors.New("not found")
)

// AdminGateway is the admin service as the board needs it.
type AdminGateway interface {
	Subjects(ctx context.Context, token string, kind models.SubjectKind) ([]models.Subject, error)
	SetSubjectState(ctx context.Context, token string, kind models.SubjectKind, id string, state models.SubjectState) error
}

// Auditor records applied decisions.
type Auditor interface {
	RecordModeration(ctx context.Context, decision models.ModerationDecision) error
}

// Board lists and moderates one kind of account.
type Board struct {
	kind      models.SubjectKind
	gateway   AdminGateway
	auditor   Auditor
	publisher notify.Publisher
	now       func() time.Time

	mu         sync.Mutex
	subjects   []models.Subject
	processing map[string]struct{}
}

// NewBoard creates a board for kind. auditor and publisher may be nil.
func NewBoard(kind models.SubjectKind, gateway AdminGateway, auditor Auditor, publisher notify.Publisher) *Board {
	return &Board{
		kind:       kind,
		gateway:    gateway,
		auditor:    auditor,
		publisher:  publisher,
		now:        time.Now,
		processing: make(map[string]struct{}),
	}
}

// Kind returns the account kind the board moderates.
func (b *Board) Kind() models.SubjectKind { return b.kind }

// List fetches every account of the board's kind and keeps those in states.
func (b *Board) List(ctx context.Context, token string, states []models.SubjectState) ([]models.Subject, error) {
	subjects, err := b.refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return Filter(subjects, states), nil
}

func (b *Board) refresh(ctx context.Context, token string) ([]models.Subject, error) {
	subjects, err := b.gateway.Subjects(ctx, token, b.kind)
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", b.kind, err)
	}

	b.mu.Lock()
	b.subjects = subjects
	b.mu.Unlock()
	return subjects, nil
}

func (b *Board) cached(id string) (models.Subject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return find(b.subjects, id)
}

// Apply performs action on the account and returns it as the backend now
// reports it. Legality is checked against the table before any call.
func (b *Board) Apply(ctx context.Context, token, actor, subjectID string, action Action) (models.Subject, error) {
	subject, ok := b.cached(subjectID)
	if !ok {
		subjects, err := b.refresh(ctx, token)
		if err != nil {
			return models.Subject{}, err
		}
		if subject, ok = find(subjects, subjectID); !ok {
			return models.Subject{}, fmt.Errorf("%s %s: %w", b.kind, subjectID, ErrNotFound)
		}
	}

	target, err := Transition(subject.State, action)
	if err != nil {
		return models.Subject{}, err
	}

	if !b.begin(subjectID) {
		return models.Subject{}, ErrInProgress
	}
	defer b.end(subjectID)

	if err := b.gateway.SetSubjectState(ctx, token, b.kind, subjectID, target); err != nil {
		return models.Subject{}, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}

	updated := subject
	updated.State = target
	if subjects, err := b.refresh(ctx, token); err != nil {
		log.Warn().Err(err).
			Str("kind", string(b.kind)).
			Str("subject_id", subjectID).
			Msg("Re-fetch after moderation failed, using requested state")
		b.patch(updated)
	} else if fresh, ok := find(subjects, subjectID); ok {
		updated = fresh
	}

	decision := models.ModerationDecision{
		Kind:      b.kind,
		SubjectID: subjectID,
		Action:    string(action),
		FromState: string(subject.State),
		ToState:   string(updated.State),
		Actor:     actor,
		DecidedAt: b.now().UTC(),
	}
	b.record(ctx, decision)

	log.Info().
		Str("kind", string(b.kind)).
		Str("subject_id", subjectID).
		Str("action", string(action)).
		Str("state", string(updated.State)).
		Msg("Moderation applied")

	return updated, nil
}

// Processing lists the ids with a request in flight.
func (b *Board) Processing() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.processing))
	for id := range b.processing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Board) begin(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.processing[id]; busy {
		return false
	}
	b.processing[id] = struct{}{}
	return true
}

func (b *Board) end(id string) {
	b.mu.Lock()
	delete(b.processing, id)
	b.mu.Unlock()
}

func (b *Board) patch(subject models.Subject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subjects {
		if b.subjects[i].ID == subject.ID {
			b.subjects[i] = subject
			return
		}
	}
}

func (b *Board) record(ctx context.Context, decision models.ModerationDecision) {
	recordDecision(ctx, b.auditor, b.publisher, decision)
}

func recordDecision(ctx context.Context, auditor Auditor, publisher notify.Publisher, decision models.ModerationDecision) {
	if auditor != nil {
		if err := auditor.RecordModeration(ctx, decision); err != nil {
			log.Warn().Err(err).
				Str("kind", string(decision.Kind)).
				Str("subject_id", decision.SubjectID).
				Msg("Failed to record moderation decision")
		}
	}
	notify.Best(ctx, publisher, notify.TopicModerationDecided, decision)
}

func find(subjects []models.Subject, id string) (models.Subject, bool) {
	for _, s := range subjects {
		if s.ID == id {
			return s, true
		}
	}
	return models.Subject{}, false
}
