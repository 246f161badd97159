package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crowdstage/internal/models"
)

func TestRecordModeration(t *testing.T) {
	s, mock := newMockStore(t)
	decided := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO moderation_decisions`)).
		WithArgs("artist", "a-1", "approve", "PENDING_APPROVAL", "ACTIVE", "root", nil, decided).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	err := s.RecordModeration(context.Background(), models.ModerationDecision{
		Kind:      models.KindArtist,
		SubjectID: "a-1",
		Action:    "approve",
		FromState: "PENDING_APPROVAL",
		ToState:   "ACTIVE",
		Actor:     "root",
		DecidedAt: decided,
	})
	if err != nil {
		t.Fatalf("RecordModeration: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordModerationError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO moderation_decisions`)).
		WillReturnError(errors.New("connection reset"))

	err := s.RecordModeration(context.Background(), models.ModerationDecision{Kind: models.KindMerchant, SubjectID: "m-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestModerationHistory(t *testing.T) {
	s, mock := newMockStore(t)
	first := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM moderation_decisions`)).
		WithArgs("merchant", "m-1").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "subject_id", "action", "from_state", "to_state", "actor", "note", "decided_at"}).
			AddRow("merchant", "m-1", "block", "ACTIVE", "BLOCKED", "root", "", second).
			AddRow("merchant", "m-1", "approve", "PENDING_APPROVAL", "ACTIVE", "root", "", first))

	history, err := s.ModerationHistory(context.Background(), models.KindMerchant, "m-1")
	if err != nil {
		t.Fatalf("ModerationHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(history))
	}
	if history[0].ToState != "BLOCKED" || history[0].Kind != models.KindMerchant {
		t.Fatalf("unexpected newest decision: %+v", history[0])
	}
}
