package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"crowdstage/internal/models"
	"crowdstage/internal/notify"
	"crowdstage/internal/upstream"
	"crowdstage/internal/validation"
)

var (
	// ErrCreation means the payment could not be created; no window was opened.
	ErrCreation = errors.New("payment creation failed")
	// ErrNotFound is returned for an unknown tracker id.
	ErrNotFound = errors.New("donation not found")
	// ErrStillRunning is returned when dismissing a tracker that is not terminal.
	ErrStillRunning = errors.New("donation still in progress")
)

// Gateway is the payment service as the tracker needs it.
type Gateway interface {
	PaymentReader
	CreatePayment(ctx context.Context, token string, req upstream.CreatePaymentRequest) (upstream.CreatedPayment, error)
}

// Ledger keeps a local record of every donation attempt.
type Ledger interface {
	RecordDonationStart(ctx context.Context, donation models.Donation) error
	RecordDonationOutcome(ctx context.Context, donation models.Donation) error
}

// DonationRequest is a validated donation to start.
type DonationRequest struct {
	Amount   models.Money
	Public   bool
	EventID  string
	Username string
}

// Config configures a Service.
type Config struct {
	Currency string
	Options  Options
	// Retain is how long a finished tracker stays readable before it is
	// dropped. Zero keeps it until dismissed.
	Retain time.Duration
}

// Service starts donations and keeps the registry of their trackers.
type Service struct {
	gateway   Gateway
	progress  *Progress
	ledger    Ledger
	publisher notify.Publisher
	cfg       Config
	now       func() time.Time

	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	trackers map[string]*Tracker
	wg       sync.WaitGroup
}

// NewService creates a Service. ledger and publisher may be nil.
func NewService(gateway Gateway, progress *Progress, ledger Ledger, publisher notify.Publisher, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		gateway:   gateway,
		progress:  progress,
		ledger:    ledger,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		stop:      stop,
		trackers:  make(map[string]*Tracker),
	}
}

// Start creates the payment, opens window on its approval URL and starts
// polling. The returned tracker outlives ctx; use Cancel or Shutdown to stop it.
func (s *Service) Start(ctx context.Context, token string, req DonationRequest, window Window) (*Tracker, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: service stopped", ErrCreation)
	}
	if req.Amount <= 0 {
		return nil, &validation.Error{Field: "amount", Message: "amount must be greater than zero"}
	}
	if strings.TrimSpace(req.EventID) == "" {
		return nil, &validation.Error{Field: "eventId", Message: "event is required"}
	}

	created, err := s.gateway.CreatePayment(ctx, token, upstream.CreatePaymentRequest{
		Amount:   req.Amount,
		Currency: s.cfg.Currency,
		Public:   req.Public,
		EventID:  req.EventID,
		Username: req.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreation, err)
	}

	tracker := newTracker(trackerConfig{
		id:          uuid.NewString(),
		paymentID:   created.ID,
		approvalURL: created.ApprovalURL,
		request:     req,
		currency:    s.cfg.Currency,
		token:       token,
		reader:      s.gateway,
		window:      window,
		opts:        s.cfg.Options,
		now:         s.now,
		onTerminal:  s.finished,
	})

	s.prune()
	s.mu.Lock()
	s.trackers[tracker.id] = tracker
	s.mu.Unlock()

	tracker.open()
	s.recordStart(tracker.Snapshot())

	log.Info().
		Str("tracker_id", tracker.id).
		Str("payment_id", created.ID).
		Str("event_id", req.EventID).
		Str("amount", req.Amount.String()).
		Msg("Donation started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tracker.run(s.ctx)
	}()
	return tracker, nil
}

// Get returns the snapshot of a tracker.
func (s *Service) Get(id string) (Snapshot, error) {
	tracker, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(tracker), nil
}

// WindowClosed records that the client closed the approval window. The
// next poll reconciles it against the payment.
func (s *Service) WindowClosed(id string) (Snapshot, error) {
	tracker, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	tracker.window.Close()
	return s.snapshot(tracker), nil
}

// PopupBlocked records that the client could not open the approval window.
func (s *Service) PopupBlocked(id string) (Snapshot, error) {
	tracker, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	if remote, ok := tracker.window.(*RemoteWindow); ok {
		remote.MarkBlocked()
	}
	tracker.markPopupBlocked()
	return s.snapshot(tracker), nil
}

// Cancel stops a tracker and waits for it to settle.
func (s *Service) Cancel(ctx context.Context, id string) (Snapshot, error) {
	tracker, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	tracker.Cancel()

	select {
	case <-tracker.Done():
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return s.snapshot(tracker), nil
}

// Dismiss forgets a finished tracker and asks for one more progress refresh
// of its event.
func (s *Service) Dismiss(id string) error {
	tracker, err := s.lookup(id)
	if err != nil {
		return err
	}

	snap := tracker.Snapshot()
	if !snap.State.Terminal() {
		return ErrStillRunning
	}

	s.mu.Lock()
	delete(s.trackers, id)
	s.mu.Unlock()

	if s.progress != nil {
		s.progress.Bump(snap.EventID)
	}
	return nil
}

// Active returns how many trackers are still polling.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.trackers {
		if !t.Snapshot().State.Terminal() {
			n++
		}
	}
	return n
}

// Shutdown cancels every live tracker and waits for them to stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) lookup(id string) (*Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracker, ok := s.trackers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return tracker, nil
}

func (s *Service) snapshot(t *Tracker) Snapshot {
	snap := t.Snapshot()
	if s.progress != nil {
		snap.RefreshTrigger = s.progress.Trigger(snap.EventID)
	}
	return snap
}

// finished runs on the tracker goroutine after its terminal transition.
func (s *Service) finished(snap Snapshot) {
	if s.progress != nil {
		snap.RefreshTrigger = s.progress.Bump(snap.EventID)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
	defer cancel()

	if s.ledger != nil {
		if err := s.ledger.RecordDonationOutcome(ctx, donationFromSnapshot(snap)); err != nil {
			log.Warn().Err(err).Str("tracker_id", snap.ID).Msg("Failed to record donation outcome")
		}
	}
	notify.Best(ctx, s.publisher, notify.TopicDonationOutcome, snap)
}

func (s *Service) recordStart(snap Snapshot) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
	defer cancel()
	if err := s.ledger.RecordDonationStart(ctx, donationFromSnapshot(snap)); err != nil {
		log.Warn().Err(err).Str("tracker_id", snap.ID).Msg("Failed to record donation start")
	}
}

// prune drops finished trackers older than the retention window.
func (s *Service) prune() {
	if s.cfg.Retain <= 0 {
		return
	}
	cutoff := s.now().Add(-s.cfg.Retain)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.trackers {
		snap := t.Snapshot()
		if snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			delete(s.trackers, id)
		}
	}
}

func donationFromSnapshot(snap Snapshot) models.Donation {
	return models.Donation{
		ID:                snap.ID,
		PaymentID:         snap.PaymentID,
		EventID:           snap.EventID,
		Username:          snap.Username,
		Amount:            snap.Amount,
		Currency:          snap.Currency,
		Public:            snap.Public,
		State:             string(snap.State),
		Reason:            snap.Reason,
		ProviderPaymentID: snap.ProviderPaymentID,
		StartedAt:         snap.StartedAt,
		FinishedAt:        snap.FinishedAt,
	}
}

// SnapshotFromDonation rebuilds a read-only snapshot from a ledger row, for
// donations whose tracker has already been released.
func SnapshotFromDonation(d models.Donation) Snapshot {
	return Snapshot{
		ID:                d.ID,
		PaymentID:         d.PaymentID,
		EventID:           d.EventID,
		Username:          d.Username,
		Amount:            d.Amount,
		Currency:          d.Currency,
		Public:            d.Public,
		State:             State(d.State),
		Reason:            d.Reason,
		ProviderPaymentID: d.ProviderPaymentID,
		StartedAt:         d.StartedAt,
		FinishedAt:        d.FinishedAt,
	}
}
