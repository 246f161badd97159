package payment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdstage/internal/models"
	"crowdstage/internal/upstream"
	"crowdstage/internal/validation"
)

// scriptedGateway answers payment polls from a function of the fetch count.
type scriptedGateway struct {
	fetches   atomic.Int32
	creates   atomic.Int32
	createErr error
	respond   func(n int) (models.Payment, error)
}

func (g *scriptedGateway) CreatePayment(ctx context.Context, token string, req upstream.CreatePaymentRequest) (upstream.CreatedPayment, error) {
	g.creates.Add(1)
	if g.createErr != nil {
		return upstream.CreatedPayment{}, g.createErr
	}
	return upstream.CreatedPayment{ID: "pay-1", ApprovalURL: "https://provider.example/approve?token=x"}, nil
}

func (g *scriptedGateway) Payment(ctx context.Context, token, paymentID string) (models.Payment, error) {
	n := int(g.fetches.Add(1))
	return g.respond(n)
}

type fakeWindow struct {
	mu       sync.Mutex
	openErr  error
	opened   string
	closed   bool
	closures int
}

func (w *fakeWindow) Open(url string, width, height int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.openErr != nil {
		return w.openErr
	}
	w.opened = url
	return nil
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.closures++
}

func pending() (models.Payment, error) {
	return models.Payment{ID: "pay-1", Status: models.PaymentPending}, nil
}

func confirmed() (models.Payment, error) {
	return models.Payment{ID: "pay-1", Status: models.PaymentCompleted, ProviderPaymentID: "PAYID-1"}, nil
}

func fastOptions() Options {
	return Options{Interval: time.Millisecond, MaxDuration: 5 * time.Second}
}

func startTracker(t *testing.T, gateway *scriptedGateway, window Window, opts Options) *Tracker {
	t.Helper()
	tracker := newTracker(trackerConfig{
		id:          "t-1",
		paymentID:   "pay-1",
		approvalURL: "https://provider.example/approve",
		request:     DonationRequest{Amount: 2500, EventID: "ev-1"},
		currency:    "EUR",
		reader:      gateway,
		window:      window,
		opts:        opts,
	})
	tracker.open()
	go tracker.run(context.Background())
	return tracker
}

func waitDone(t *testing.T, tracker *Tracker) Snapshot {
	t.Helper()
	select {
	case <-tracker.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("tracker did not finish")
	}
	return tracker.Snapshot()
}

func TestTrackerSuccessBeatsClosedWindow(t *testing.T) {
	window := &fakeWindow{closed: true}
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return confirmed() }}

	snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, "PAYID-1", snap.ProviderPaymentID)
	assert.Equal(t, int32(1), gateway.fetches.Load())
}

func TestTrackerStopsPollingAfterTerminal(t *testing.T) {
	window := &fakeWindow{}
	gateway := &scriptedGateway{respond: func(n int) (models.Payment, error) {
		if n < 3 {
			return pending()
		}
		return confirmed()
	}}

	snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
	assert.Equal(t, StateSuccess, snap.State)
	assert.Equal(t, 3, snap.Attempts)
	assert.True(t, window.Closed())

	fetches := gateway.fetches.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, fetches, gateway.fetches.Load())
	assert.Equal(t, int32(3), fetches)
}

func TestTrackerProviderAbort(t *testing.T) {
	tests := []struct {
		status models.PaymentStatus
		want   State
	}{
		{status: models.PaymentCanceled, want: StateCanceled},
		{status: "failed", want: StateFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			window := &fakeWindow{}
			gateway := &scriptedGateway{respond: func(int) (models.Payment, error) {
				return models.Payment{ID: "pay-1", Status: tt.status}, nil
			}}

			snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
			assert.Equal(t, tt.want, snap.State)
			assert.True(t, window.Closed())
		})
	}
}

func TestTrackerWindowClosedFinalCheck(t *testing.T) {
	t.Run("confirmed on final fetch", func(t *testing.T) {
		window := &fakeWindow{closed: true}
		gateway := &scriptedGateway{respond: func(n int) (models.Payment, error) {
			if n == 1 {
				return pending()
			}
			return confirmed()
		}}

		snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
		assert.Equal(t, StateSuccess, snap.State)
		assert.Equal(t, int32(2), gateway.fetches.Load())
	})

	t.Run("not confirmed", func(t *testing.T) {
		window := &fakeWindow{closed: true}
		gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}

		snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
		assert.Equal(t, StateCanceled, snap.State)
		assert.Equal(t, ReasonWindowClosed, snap.Reason)
		assert.Equal(t, int32(2), gateway.fetches.Load())
	})

	t.Run("fetch errors never report success", func(t *testing.T) {
		window := &fakeWindow{closed: true}
		gateway := &scriptedGateway{respond: func(int) (models.Payment, error) {
			return models.Payment{}, errors.New("network down")
		}}

		snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
		assert.Equal(t, StateCanceled, snap.State)
	})
}

func TestTrackerSwallowsPollErrors(t *testing.T) {
	window := &fakeWindow{}
	gateway := &scriptedGateway{respond: func(n int) (models.Payment, error) {
		if n < 3 {
			return models.Payment{}, errors.New("temporary")
		}
		return confirmed()
	}}

	snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
	assert.Equal(t, StateSuccess, snap.State)
}

func TestTrackerMaxAttempts(t *testing.T) {
	window := &fakeWindow{}
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}

	opts := fastOptions()
	opts.MaxAttempts = 4
	snap := waitDone(t, startTracker(t, gateway, window, opts))
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ReasonTimedOut, snap.Reason)
	assert.Equal(t, int32(4), gateway.fetches.Load())
	assert.True(t, window.Closed())
}

func TestTrackerMaxDuration(t *testing.T) {
	window := &fakeWindow{}
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}

	opts := Options{Interval: time.Hour, MaxDuration: 10 * time.Millisecond}
	snap := waitDone(t, startTracker(t, gateway, window, opts))
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, ReasonTimedOut, snap.Reason)
	assert.Zero(t, gateway.fetches.Load())
}

func TestTrackerCancel(t *testing.T) {
	window := &fakeWindow{}
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}

	tracker := startTracker(t, gateway, window, Options{Interval: time.Hour})
	tracker.Cancel()
	tracker.Cancel()

	snap := waitDone(t, tracker)
	assert.Equal(t, StateCanceled, snap.State)
	assert.Equal(t, ReasonHostCanceled, snap.Reason)
	assert.Equal(t, 1, window.closures)
	assert.NotNil(t, snap.FinishedAt)
}

func TestTrackerPopupBlocked(t *testing.T) {
	window := &fakeWindow{openErr: ErrPopupBlocked}
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return confirmed() }}

	snap := waitDone(t, startTracker(t, gateway, window, fastOptions()))
	assert.True(t, snap.PopupBlocked)
	assert.Equal(t, StateSuccess, snap.State)
}

type recordingLedger struct {
	mu       sync.Mutex
	starts   []models.Donation
	outcomes []models.Donation
}

func (l *recordingLedger) RecordDonationStart(ctx context.Context, d models.Donation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, d)
	return nil
}

func (l *recordingLedger) RecordDonationOutcome(ctx context.Context, d models.Donation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, d)
	return nil
}

type countingTotals struct {
	calls atomic.Int32
	total models.Money
}

func (c *countingTotals) EventTotal(ctx context.Context, token, eventID string) (models.Money, error) {
	c.calls.Add(1)
	return c.total, nil
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	gateway := &scriptedGateway{respond: func(n int) (models.Payment, error) {
		if n < 2 {
			return pending()
		}
		return confirmed()
	}}
	totals := &countingTotals{total: 5000}
	progress := NewProgress(totals)
	ledger := &recordingLedger{}
	svc := NewService(gateway, progress, ledger, nil, Config{Currency: "EUR", Options: fastOptions()})
	defer func() { _ = svc.Shutdown(ctx) }()

	_, _, err := progress.Raised(ctx, "tok", "ev-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), totals.calls.Load())

	window := NewRemoteWindow()
	tracker, err := svc.Start(ctx, "tok", DonationRequest{Amount: 2500, EventID: "ev-1", Username: "fan"}, window)
	require.NoError(t, err)
	assert.Equal(t, "https://provider.example/approve?token=x", window.URL())

	snap := waitDone(t, tracker)
	assert.Equal(t, StateSuccess, snap.State)

	got, err := svc.Get(tracker.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.RefreshTrigger)

	// One terminal outcome costs exactly one re-fetch.
	_, _, err = progress.Raised(ctx, "tok", "ev-1")
	require.NoError(t, err)
	_, _, err = progress.Raised(ctx, "tok", "ev-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), totals.calls.Load())

	require.NoError(t, svc.Dismiss(tracker.ID()))
	assert.Equal(t, uint64(2), progress.Trigger("ev-1"))
	_, err = svc.Get(tracker.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	require.Len(t, ledger.starts, 1)
	require.Len(t, ledger.outcomes, 1)
	assert.Equal(t, string(StateSuccess), ledger.outcomes[0].State)
	assert.Equal(t, models.Money(2500), ledger.outcomes[0].Amount)
}

func TestServiceStartCreationFailure(t *testing.T) {
	gateway := &scriptedGateway{
		createErr: upstream.ErrMissingApprovalURL,
		respond:   func(int) (models.Payment, error) { return pending() },
	}
	svc := NewService(gateway, nil, nil, nil, Config{Options: fastOptions()})
	window := &fakeWindow{}

	_, err := svc.Start(context.Background(), "tok", DonationRequest{Amount: 100, EventID: "ev-1"}, window)
	assert.ErrorIs(t, err, ErrCreation)
	assert.ErrorIs(t, err, upstream.ErrMissingApprovalURL)
	assert.Empty(t, window.opened)
	assert.Zero(t, svc.Active())
}

func TestServiceStartRejectsInvalidRequest(t *testing.T) {
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}
	svc := NewService(gateway, nil, nil, nil, Config{Options: fastOptions()})

	_, err := svc.Start(context.Background(), "tok", DonationRequest{Amount: 0, EventID: "ev-1"}, &fakeWindow{})
	assert.True(t, validation.IsValidation(err))
	assert.Zero(t, gateway.creates.Load())
}

func TestServiceWindowClosedAndDismiss(t *testing.T) {
	ctx := context.Background()
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}
	svc := NewService(gateway, NewProgress(&countingTotals{}), nil, nil, Config{Options: Options{Interval: 5 * time.Millisecond}})
	defer func() { _ = svc.Shutdown(ctx) }()

	tracker, err := svc.Start(ctx, "tok", DonationRequest{Amount: 100, EventID: "ev-1"}, NewRemoteWindow())
	require.NoError(t, err)

	err = svc.Dismiss(tracker.ID())
	if err != nil {
		assert.ErrorIs(t, err, ErrStillRunning)
	}

	_, err = svc.WindowClosed(tracker.ID())
	require.NoError(t, err)

	snap := waitDone(t, tracker)
	assert.Equal(t, StateCanceled, snap.State)
	assert.Equal(t, ReasonWindowClosed, snap.Reason)
	require.NoError(t, svc.Dismiss(tracker.ID()))
}

func TestServiceCancelAndShutdown(t *testing.T) {
	ctx := context.Background()
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}
	svc := NewService(gateway, nil, nil, nil, Config{Options: Options{Interval: time.Hour}})

	first, err := svc.Start(ctx, "tok", DonationRequest{Amount: 100, EventID: "ev-1"}, NewRemoteWindow())
	require.NoError(t, err)
	second, err := svc.Start(ctx, "tok", DonationRequest{Amount: 100, EventID: "ev-2"}, NewRemoteWindow())
	require.NoError(t, err)

	snap, err := svc.Cancel(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, snap.State)
	assert.Equal(t, ReasonHostCanceled, snap.Reason)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(shutdownCtx))

	assert.Equal(t, ReasonShutdown, second.Snapshot().Reason)
	assert.Zero(t, svc.Active())

	_, err = svc.Start(ctx, "tok", DonationRequest{Amount: 100, EventID: "ev-3"}, NewRemoteWindow())
	assert.ErrorIs(t, err, ErrCreation)
}

func TestServicePopupBlocked(t *testing.T) {
	ctx := context.Background()
	gateway := &scriptedGateway{respond: func(int) (models.Payment, error) { return pending() }}
	svc := NewService(gateway, nil, nil, nil, Config{Options: Options{Interval: time.Hour}})
	defer func() { _ = svc.Shutdown(ctx) }()

	tracker, err := svc.Start(ctx, "tok", DonationRequest{Amount: 100, EventID: "ev-1"}, NewRemoteWindow())
	require.NoError(t, err)

	snap, err := svc.PopupBlocked(tracker.ID())
	require.NoError(t, err)
	assert.True(t, snap.PopupBlocked)
	assert.Equal(t, StateAwaitingProvider, snap.State)

	_, err = svc.Get("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
