package store

import (
	"context"
	"fmt"

	"crowdstage/internal/models"
)

// RecordModeration appends a decision to the audit trail.
func (s *Store) RecordModeration(ctx context.Context, d models.ModerationDecision) error {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO moderation_decisions (kind, subject_id, action, from_state, to_state, actor, note, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, string(d.Kind), d.SubjectID, d.Action, d.FromState, d.ToState, d.Actor, nullString(d.Note), d.DecidedAt).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert moderation decision: %w", err)
	}
	return nil
}

// ModerationHistory lists the decisions taken on one subject, newest first.
func (s *Store) ModerationHistory(ctx context.Context, kind models.SubjectKind, subjectID string) ([]models.ModerationDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, subject_id, action, from_state, to_state, actor, COALESCE(note, ''), decided_at
		FROM moderation_decisions
		WHERE kind = $1 AND subject_id = $2
		ORDER BY decided_at DESC, id DESC
	`, string(kind), subjectID)
	if err != nil {
		return nil, fmt.Errorf("select moderation history: %w", err)
	}
	defer rows.Close()

	var history []models.ModerationDecision
	for rows.Next() {
		var (
			d        models.ModerationDecision
			kindName string
		)
		if err := rows.Scan(&kindName, &d.SubjectID, &d.Action, &d.FromState, &d.ToState, &d.Actor, &d.Note, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan moderation decision: %w", err)
		}
		d.Kind = models.SubjectKind(kindName)
		history = append(history, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation history: %w", err)
	}
	return history, nil
}
