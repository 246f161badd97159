package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMoneyString(t *testing.T) {
	tests := map[Money]string{
		0:     "0.00",
		5:     "0.05",
		2550:  "25.50",
		-1999: "-19.99",
	}
	for amount, want := range tests {
		assert.Equal(t, want, amount.String())
	}
}

func TestMoneyFromDecimal(t *testing.T) {
	assert.Equal(t, Money(1999), MoneyFromDecimal(19.99))
	assert.Equal(t, Money(1), MoneyFromDecimal(0.005))
	assert.InDelta(t, 25.5, Money(2550).Decimal(), 1e-9)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(500, 0))
	assert.Equal(t, 0, Percent(0, 1000))
	assert.Equal(t, 33, Percent(333, 1000))
	assert.Equal(t, 100, Percent(5000, 1000))
}

func TestVisibleComments(t *testing.T) {
	eventDate := time.Date(2026, 12, 1, 20, 0, 0, 0, time.UTC)
	event := Event{EventDate: eventDate, Comments: []Comment{{ID: "c-1"}}}

	assert.Empty(t, event.VisibleComments(eventDate.Add(-time.Hour)))
	assert.Empty(t, event.VisibleComments(eventDate))
	assert.Len(t, event.VisibleComments(eventDate.Add(time.Hour)), 1)
}

func TestPaymentStatus(t *testing.T) {
	assert.True(t, PaymentCanceled.Aborted())
	assert.True(t, PaymentStatus("failed").Aborted())
	assert.False(t, PaymentPending.Aborted())
	assert.False(t, PaymentStatus("REFUNDED").Aborted())

	assert.False(t, Payment{Status: PaymentCompleted}.Confirmed())
	assert.True(t, Payment{ProviderPaymentID: "PAYID-1"}.Confirmed())
	assert.False(t, Payment{ProviderPaymentID: "  "}.Confirmed())
}

func TestStateLabels(t *testing.T) {
	assert.Equal(t, "Active", StateLabel(string(StateActive)))
	assert.Equal(t, "success", StateColor(string(StateActive)))
	assert.Equal(t, "danger", StateColor(string(EventRejected)))
	assert.Equal(t, "ARCHIVED", StateLabel("ARCHIVED"))
	assert.Equal(t, "secondary", StateColor("ARCHIVED"))

	for _, state := range SubjectStates {
		assert.True(t, state.Known())
		assert.NotEqual(t, string(state), StateLabel(string(state)), "state %s has no label", state)
	}
	assert.False(t, SubjectState("SLEEPING").Known())

	for _, state := range []EventState{EventPendingApproval, EventApproved, EventRejected} {
		assert.NotEqual(t, string(state), StateLabel(string(state)), "event state %s has no label", state)
	}
	assert.Equal(t, StateLabel(string(StateRejected)), StateLabel(string(EventRejected)))
}
