package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"crowdstage/internal/models"
)

// ErrMissingApprovalURL is returned when a created payment has nowhere to
// send the donor.
var ErrMissingApprovalURL = errors.New("payment service returned no approval URL")

// CreatePaymentRequest describes a donation to initiate.
type CreatePaymentRequest struct {
	Amount   models.Money
	Currency string
	Public   bool
	EventID  string
	Username string
}

// CreatedPayment identifies a new payment and the provider page that approves it.
type CreatedPayment struct {
	ID          string `json:"id"`
	ApprovalURL string `json:"approvalUrl"`
}

// wirePayment carries decimal amounts; models.Payment uses minor units.
type wirePayment struct {
	ID              string  `json:"id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	Visibility      bool    `json:"visibility"`
	EventID         string  `json:"eventId"`
	Username        string  `json:"username"`
	PaypalPaymentID string  `json:"paypalPaymentId"`
	Status          string  `json:"status"`
}

func (w wirePayment) model() models.Payment {
	return models.Payment{
		ID:                w.ID,
		Amount:            models.MoneyFromDecimal(w.Amount),
		Currency:          w.Currency,
		Public:            w.Visibility,
		EventID:           w.EventID,
		Username:          w.Username,
		ProviderPaymentID: w.PaypalPaymentID,
		Status:            models.PaymentStatus(strings.ToUpper(strings.TrimSpace(w.Status))),
	}
}

// CreatePayment asks the payment service to open a provider order.
func (c *Client) CreatePayment(ctx context.Context, token string, req CreatePaymentRequest) (CreatedPayment, error) {
	body := wirePayment{
		Amount:     req.Amount.Decimal(),
		Currency:   req.Currency,
		Visibility: req.Public,
		EventID:    req.EventID,
		Username:   req.Username,
	}

	var created CreatedPayment
	if err := c.do(ctx, http.MethodPost, c.endpoints.Payment, "/api/payments/create", token, body, &created); err != nil {
		return CreatedPayment{}, err
	}
	if strings.TrimSpace(created.ApprovalURL) == "" {
		return CreatedPayment{}, ErrMissingApprovalURL
	}
	return created, nil
}

// Payment fetches the current state of a payment.
func (c *Client) Payment(ctx context.Context, token, paymentID string) (models.Payment, error) {
	var wire wirePayment
	path := "/api/payments/id/" + url.PathEscape(paymentID)
	if err := c.do(ctx, http.MethodGet, c.endpoints.Payment, path, token, nil, &wire); err != nil {
		return models.Payment{}, err
	}
	return wire.model(), nil
}

// EventTotal returns how much has been raised for an event. The service
// answers either with a bare number or with {"total": n}.
func (c *Client) EventTotal(ctx context.Context, token, eventID string) (models.Money, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.endpoints.Payment, "/api/payments/event-total", token,
		map[string]string{"eventId": eventID}, &raw); err != nil {
		return 0, err
	}

	var total float64
	if err := json.Unmarshal(raw, &total); err == nil {
		return models.MoneyFromDecimal(total), nil
	}

	var wrapped struct {
		Total *float64 `json:"total"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Total == nil {
		return 0, fmt.Errorf("decode event total: unexpected body %s", bytes.TrimSpace(raw))
	}
	return models.MoneyFromDecimal(*wrapped.Total), nil
}

// ArtistPayments lists donations received by the calling artist.
func (c *Client) ArtistPayments(ctx context.Context, token string) ([]models.Payment, error) {
	return c.listPayments(ctx, token, "/api/payments/artist-payments")
}

// AdminPayments lists every payment on the platform.
func (c *Client) AdminPayments(ctx context.Context, token string) ([]models.Payment, error) {
	return c.listPayments(ctx, token, "/api/payments/admin-payments")
}

func (c *Client) listPayments(ctx context.Context, token, path string) ([]models.Payment, error) {
	var wire []wirePayment
	if err := c.do(ctx, http.MethodGet, c.endpoints.Payment, path, token, nil, &wire); err != nil {
		return nil, err
	}
	payments := make([]models.Payment, 0, len(wire))
	for _, w := range wire {
		payments = append(payments, w.model())
	}
	return payments, nil
}

// Commission returns the platform commission as a 0..1 fraction.
func (c *Client) Commission(ctx context.Context, token string) (float64, error) {
	var result struct {
		Commission float64 `json:"commission"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoints.Payment, "/api/admin/get-commission", token, nil, &result); err != nil {
		return 0, err
	}
	return result.Commission, nil
}

// PutCommission stores the platform commission as a 0..1 fraction.
func (c *Client) PutCommission(ctx context.Context, token string, fraction float64) error {
	return c.do(ctx, http.MethodPut, c.endpoints.Payment, "/api/admin/put-commission", token,
		map[string]float64{"commission": fraction}, nil)
}
