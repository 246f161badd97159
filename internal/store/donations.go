package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crowdstage/internal/models"
)

// RecordDonationStart inserts the ledger row of a donation that just left
// the payment service with an approval URL.
func (s *Store) RecordDonationStart(ctx context.Context, d models.Donation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donations (id, payment_id, event_id, username, amount_minor, currency, public, state, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.PaymentID, d.EventID, d.Username, int64(d.Amount), d.Currency, d.Public, d.State, d.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDonation
		}
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

// RecordDonationOutcome stores the terminal state of a donation. A donation
// whose start was never recorded is inserted whole.
func (s *Store) RecordDonationOutcome(ctx context.Context, d models.Donation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO donations (id, payment_id, event_id, username, amount_minor, currency, public, state, reason,
		                       provider_payment_id, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    reason = EXCLUDED.reason,
		    provider_payment_id = EXCLUDED.provider_payment_id,
		    finished_at = EXCLUDED.finished_at
	`, d.ID, d.PaymentID, d.EventID, d.Username, int64(d.Amount), d.Currency, d.Public, d.State,
		nullString(d.Reason), nullString(d.ProviderPaymentID), d.StartedAt, d.FinishedAt)
	if err != nil {
		return fmt.Errorf("record donation outcome: %w", err)
	}
	return nil
}

const donationColumns = `
	id, payment_id, event_id, username, amount_minor, currency, public, state,
	reason, provider_payment_id, started_at, finished_at
`

// Donation returns one ledger row.
func (s *Store) Donation(ctx context.Context, id string) (models.Donation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)
	d, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Donation{}, ErrDonationNotFound
		}
		return models.Donation{}, fmt.Errorf("select donation: %w", err)
	}
	return d, nil
}

// DonationsByEvent lists the ledger rows of an event, newest first.
func (s *Store) DonationsByEvent(ctx context.Context, eventID string) ([]models.Donation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+donationColumns+`
		FROM donations
		WHERE event_id = $1
		ORDER BY started_at DESC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("select donations: %w", err)
	}
	defer rows.Close()

	var donations []models.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return donations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonation(row scanner) (models.Donation, error) {
	var (
		d          models.Donation
		amount     int64
		reason     sql.NullString
		providerID sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.PaymentID, &d.EventID, &d.Username, &amount, &d.Currency, &d.Public,
		&d.State, &reason, &providerID, &d.StartedAt, &finishedAt); err != nil {
		return models.Donation{}, err
	}
	d.Amount = models.Money(amount)
	d.Reason = reason.String
	d.ProviderPaymentID = providerID.String
	if finishedAt.Valid {
		t := finishedAt.Time
		d.FinishedAt = &t
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
