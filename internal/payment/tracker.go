// Package payment drives donations from creation through the provider
// approval window to a terminal outcome.
package payment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crowdstage/internal/models"
)

// State is the tracker lifecycle: Idle, then AwaitingProvider, then exactly
// one terminal state.
type State string

const (
	StateIdle             State = "IDLE"
	StateAwaitingProvider State = "AWAITING_PROVIDER"
	StateSuccess          State = "SUCCESS"
	StateCanceled         State = "CANCELED"
	StateFailed           State = "FAILED"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateCanceled || s == StateFailed
}

// Reasons attached to terminal states.
const (
	ReasonConfirmed      = "payment confirmed by provider"
	ReasonProviderCancel = "payment canceled at provider"
	ReasonProviderFailed = "payment failed at provider"
	ReasonWindowClosed   = "user closed window without completing payment"
	ReasonTimedOut       = "timed out waiting for payment confirmation"
	ReasonHostCanceled   = "canceled by host"
	ReasonShutdown       = "service shutting down"
)

// Options bound the polling loop. A zero MaxDuration or MaxAttempts means
// no bound of that kind.
type Options struct {
	Interval    time.Duration
	MaxDuration time.Duration
	MaxAttempts int
}

// DefaultOptions polls every second for up to fifteen minutes.
func DefaultOptions() Options {
	return Options{
		Interval:    time.Second,
		MaxDuration: 15 * time.Minute,
	}
}

func (o Options) normalized() Options {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.MaxDuration < 0 {
		o.MaxDuration = 0
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	return o
}

// PaymentReader fetches a payment by id.
type PaymentReader interface {
	Payment(ctx context.Context, token, paymentID string) (models.Payment, error)
}

// Snapshot is a point-in-time copy of a tracker.
type Snapshot struct {
	ID                string       `json:"id"`
	PaymentID         string       `json:"payment_id"`
	EventID           string       `json:"event_id"`
	Username          string       `json:"username,omitempty"`
	Amount            models.Money `json:"amount"`
	Currency          string       `json:"currency"`
	Public            bool         `json:"public"`
	ApprovalURL       string       `json:"approval_url"`
	State             State        `json:"state"`
	Reason            string       `json:"reason,omitempty"`
	ProviderPaymentID string       `json:"provider_payment_id,omitempty"`
	PopupBlocked      bool         `json:"popup_blocked"`
	Attempts          int          `json:"attempts"`
	RefreshTrigger    uint64       `json:"refresh_trigger"`
	StartedAt         time.Time    `json:"started_at"`
	FinishedAt        *time.Time   `json:"finished_at,omitempty"`
}

// Tracker polls one payment until it reaches a terminal state. All state
// transitions happen on the tracker's own goroutine.
type Tracker struct {
	id          string
	paymentID   string
	approvalURL string
	request     DonationRequest
	currency    string
	token       string
	reader      PaymentReader
	window      Window
	opts        Options
	now         func() time.Time
	onTerminal  func(Snapshot)

	mu                sync.Mutex
	state             State
	reason            string
	providerPaymentID string
	popupBlocked      bool
	attempts          int
	startedAt         time.Time
	finishedAt        *time.Time

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

type trackerConfig struct {
	id          string
	paymentID   string
	approvalURL string
	request     DonationRequest
	currency    string
	token       string
	reader      PaymentReader
	window      Window
	opts        Options
	now         func() time.Time
	onTerminal  func(Snapshot)
}

func newTracker(cfg trackerConfig) *Tracker {
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		id:          cfg.id,
		paymentID:   cfg.paymentID,
		approvalURL: cfg.approvalURL,
		request:     cfg.request,
		currency:    cfg.currency,
		token:       cfg.token,
		reader:      cfg.reader,
		window:      cfg.window,
		opts:        cfg.opts.normalized(),
		now:         now,
		onTerminal:  cfg.onTerminal,
		state:       StateIdle,
		startedAt:   now(),
		cancelCh:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the tracker id.
func (t *Tracker) ID() string { return t.id }

// Done is closed once the tracker reached a terminal state and stopped polling.
func (t *Tracker) Done() <-chan struct{} { return t.done }

// Cancel stops polling and ends the tracker as canceled. It has no effect
// once the tracker is terminal.
func (t *Tracker) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancelCh) })
}

// Snapshot returns the tracker's current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		ID:                t.id,
		PaymentID:         t.paymentID,
		EventID:           t.request.EventID,
		Username:          t.request.Username,
		Amount:            t.request.Amount,
		Currency:          t.currency,
		Public:            t.request.Public,
		ApprovalURL:       t.approvalURL,
		State:             t.state,
		Reason:            t.reason,
		ProviderPaymentID: t.providerPaymentID,
		PopupBlocked:      t.popupBlocked,
		Attempts:          t.attempts,
		StartedAt:         t.startedAt,
		FinishedAt:        t.finishedAt,
	}
}

func (t *Tracker) markPopupBlocked() {
	t.mu.Lock()
	t.popupBlocked = true
	t.mu.Unlock()
}

// open shows the approval window. A blocked window is recorded and polling
// goes ahead; the donor can still follow the approval URL by hand.
func (t *Tracker) open() {
	if err := t.window.Open(t.approvalURL, WindowWidth, WindowHeight); err != nil {
		log.Warn().Err(err).
			Str("tracker_id", t.id).
			Str("payment_id", t.paymentID).
			Msg("Approval window did not open")
		t.markPopupBlocked()
	}

	t.mu.Lock()
	t.state = StateAwaitingProvider
	t.mu.Unlock()
}

// run polls until a terminal state is reached. ctx ending is treated as a
// shutdown.
func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if t.opts.MaxDuration > 0 {
		timer := time.NewTimer(t.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			t.finish(StateCanceled, ReasonShutdown, "")
			return
		case <-t.cancelCh:
			t.finish(StateCanceled, ReasonHostCanceled, "")
			return
		case <-deadline:
			t.finish(StateFailed, ReasonTimedOut, "")
			return
		case <-ticker.C:
			if t.tick(ctx) {
				return
			}
		}
	}
}

// tick runs one poll in fixed priority order: provider confirmation, then
// provider-side abort, then a closed window. It reports whether the tracker
// became terminal.
func (t *Tracker) tick(ctx context.Context) bool {
	t.mu.Lock()
	t.attempts++
	attempts := t.attempts
	t.mu.Unlock()

	payment, err := t.reader.Payment(ctx, t.token, t.paymentID)
	if err != nil {
		log.Warn().Err(err).
			Str("tracker_id", t.id).
			Str("payment_id", t.paymentID).
			Int("attempt", attempts).
			Msg("Payment status poll failed")
	} else {
		if payment.Confirmed() {
			t.finish(StateSuccess, ReasonConfirmed, payment.ProviderPaymentID)
			return true
		}
		if payment.Status.Aborted() {
			if upper(payment.Status) == models.PaymentFailed {
				t.finish(StateFailed, ReasonProviderFailed, "")
			} else {
				t.finish(StateCanceled, ReasonProviderCancel, "")
			}
			return true
		}
	}

	if t.window.Closed() {
		final, err := t.reader.Payment(ctx, t.token, t.paymentID)
		if err == nil && final.Confirmed() {
			t.finish(StateSuccess, ReasonConfirmed, final.ProviderPaymentID)
			return true
		}
		if err != nil {
			log.Warn().Err(err).
				Str("tracker_id", t.id).
				Str("payment_id", t.paymentID).
				Msg("Final payment check after window close failed")
		}
		t.finish(StateCanceled, ReasonWindowClosed, "")
		return true
	}

	if t.opts.MaxAttempts > 0 && attempts >= t.opts.MaxAttempts {
		t.finish(StateFailed, ReasonTimedOut, "")
		return true
	}
	return false
}

func (t *Tracker) finish(state State, reason, providerPaymentID string) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	finished := t.now()
	t.state = state
	t.reason = reason
	t.providerPaymentID = providerPaymentID
	t.finishedAt = &finished
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if !t.window.Closed() {
		t.window.Close()
	}

	event := log.Info()
	if state != StateSuccess {
		event = log.Warn()
	}
	event.
		Str("tracker_id", t.id).
		Str("payment_id", t.paymentID).
		Str("event_id", t.request.EventID).
		Str("state", string(state)).
		Str("reason", reason).
		Int("attempts", snap.Attempts).
		Msg("Donation finished")

	if t.onTerminal != nil {
		t.onTerminal(snap)
	}
}

func upper(s models.PaymentStatus) models.PaymentStatus {
	return models.PaymentStatus(strings.ToUpper(string(s)))
}
