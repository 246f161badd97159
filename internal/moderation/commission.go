package moderation

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"crowdstage/internal/validation"
)

// CommissionGateway reads and writes the platform commission.
type CommissionGateway interface {
	Commission(ctx context.Context, token string) (float64, error)
	PutCommission(ctx context.Context, token string, fraction float64) error
}

// Commission holds the platform-wide commission rate as a 0..1 fraction.
type Commission struct {
	gateway CommissionGateway

	mu     sync.RWMutex
	rate   float64
	loaded bool
}

// NewCommission creates an unloaded Commission.
func NewCommission(gateway CommissionGateway) *Commission {
	return &Commission{gateway: gateway}
}

// Load reads the current rate from the payment service.
func (c *Commission) Load(ctx context.Context, token string) (float64, error) {
	rate, err := c.gateway.Commission(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("load commission: %w", err)
	}
	c.store(rate)
	return rate, nil
}

// Update parses raw as a whole percentage, sends it as a fraction and keeps
// it on success. Invalid input never reaches the service.
func (c *Commission) Update(ctx context.Context, token, raw string) (float64, error) {
	fraction, err := validation.ParseCommission(raw)
	if err != nil {
		return 0, err
	}

	if err := c.gateway.PutCommission(ctx, token, fraction); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOperationFailed, err)
	}
	c.store(fraction)

	log.Info().Float64("commission", fraction).Msg("Commission updated")
	return fraction, nil
}

// Current returns the last known rate and whether one has been loaded.
func (c *Commission) Current() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate, c.loaded
}

func (c *Commission) store(rate float64) {
	c.mu.Lock()
	c.rate = rate
	c.loaded = true
	c.mu.Unlock()
}
