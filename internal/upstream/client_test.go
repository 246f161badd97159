package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdstage/internal/models"
	"crowdstage/internal/validation"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Endpoints{
		Auth:         srv.URL,
		Registration: srv.URL,
		Event:        srv.URL,
		Payment:      srv.URL,
		Admin:        srv.URL,
		Report:       srv.URL,
	}, time.Second)
}

func TestDoErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "json message", status: http.StatusBadRequest, body: `{"message":"amount too low"}`, message: "amount too low"},
		{name: "json error", status: http.StatusConflict, body: `{"error":"already decided"}`, message: "already decided"},
		{name: "raw text", status: http.StatusInternalServerError, body: "boom\n", message: "boom"},
		{name: "empty body", status: http.StatusNotFound, body: "", message: "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.Catalog(context.Background(), "tok")
			var herr *HTTPError
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, tt.status, herr.StatusCode)
			assert.Equal(t, tt.message, herr.Message)
		})
	}
}

func TestDoSendsBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/event/get-catalog", r.URL.Path)
		_, _ = io.WriteString(w, `[]`)
	})

	events, err := client.Catalog(context.Background(), "secret")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Endpoints{Payment: url}, time.Second)
	_, err := client.Payment(context.Background(), "tok", "p1")

	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, http.MethodGet, nerr.Method)
	assert.False(t, IsUnauthorized(err))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&HTTPError{StatusCode: http.StatusUnauthorized}))
	assert.True(t, IsUnauthorized(&HTTPError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(&HTTPError{StatusCode: http.StatusBadRequest}))
	assert.True(t, IsNotFound(&HTTPError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestCreatePaymentSendsDecimalAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 25.5, body["amount"])
		assert.Equal(t, "EUR", body["currency"])
		assert.Equal(t, true, body["visibility"])
		assert.Equal(t, "ev-1", body["eventId"])
		_, _ = io.WriteString(w, `{"id":"pay-1","approvalUrl":"https://provider.example/approve"}`)
	})

	created, err := client.CreatePayment(context.Background(), "tok", CreatePaymentRequest{
		Amount:   2550,
		Currency: "EUR",
		Public:   true,
		EventID:  "ev-1",
		Username: "fan",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", created.ID)
	assert.Equal(t, "https://provider.example/approve", created.ApprovalURL)
}

func TestCreatePaymentMissingApprovalURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"pay-1","approvalUrl":"  "}`)
	})

	_, err := client.CreatePayment(context.Background(), "tok", CreatePaymentRequest{Amount: 100})
	assert.ErrorIs(t, err, ErrMissingApprovalURL)
}

func TestPaymentDecodesMinorUnits(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payments/id/pay-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"pay-1","amount":19.99,"paypalPaymentId":"PAYID-9","status":"completed"}`)
	})

	p, err := client.Payment(context.Background(), "tok", "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.Money(1999), p.Amount)
	assert.Equal(t, models.PaymentCompleted, p.Status)
	assert.True(t, p.Confirmed())
}

func TestEventTotalShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.Money
	}{
		{name: "bare number", body: `125.5`, want: 12550},
		{name: "wrapped", body: `{"total": 40}`, want: 4000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				_, _ = io.WriteString(w, tt.body)
			})

			total, err := client.EventTotal(context.Background(), "tok", "ev-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
		})
	}

	t.Run("unexpected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"sum": 3}`)
		})
		_, err := client.EventTotal(context.Background(), "tok", "ev-1")
		assert.Error(t, err)
	})
}

func TestEventDecodesDatesAndState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"id":"ev-1","name":"Night","targetAmount":500000,
			"creationDate":null,"eventDate":"2026-06-01","endFundraisingDate":"2026-05-25T00:00:00",
			"eventState":"approved","comments":[{"id":"c1","username":"fan","text":"great","date":"2026-06-02"}]
		}`)
	})

	ev, err := client.Event(context.Background(), "tok", "ev-1")
	require.NoError(t, err)
	assert.Nil(t, ev.CreatedAt)
	assert.Equal(t, models.Money(500000), ev.TargetAmount)
	assert.Equal(t, models.EventApproved, ev.State)
	assert.Equal(t, 2026, ev.EventDate.Year())
	assert.Equal(t, time.May, ev.EndFundraisingDate.Month())
	require.Len(t, ev.Comments, 1)
}

func TestPutCommissionSendsFraction(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/admin/put-commission", r.URL.Path)
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 0.2, body["commission"], 1e-9)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.PutCommission(context.Background(), "tok", 0.2))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubjectsUppercasesState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/admin/get-merchants", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"m1","username":"club","state":"pending_approval"}]`)
	})

	subjects, err := client.Subjects(context.Background(), "tok", models.KindMerchant)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, models.StatePendingApproval, subjects[0].State)
	assert.Equal(t, models.KindMerchant, subjects[0].Kind)
}

func TestSubjectsUnknownKind(t *testing.T) {
	client := New(Endpoints{}, time.Second)
	_, err := client.Subjects(context.Background(), "tok", models.SubjectKind("fan"))
	assert.Error(t, err)
}

func TestRegisterValidatesBeforeCalling(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	err := client.Register(context.Background(), validation.Registration{Username: "x"})
	assert.True(t, validation.IsValidation(err))
	assert.Zero(t, calls.Load())
}

func TestLoginMissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jwt":"","role":"FAN"}`)
	})

	_, err := client.Login(context.Background(), "fan", "pw")
	assert.ErrorIs(t, err, ErrMissingToken)
}
