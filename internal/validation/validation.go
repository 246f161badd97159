package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"crowdstage/internal/models"
)

const (
	// MinLeadDays is how far ahead of today an event must be scheduled.
	MinLeadDays = 14
	// FundraisingCloseDays is how long before the event fundraising ends.
	FundraisingCloseDays = 7
)

// Error is a client-side validation failure tied to an input field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a validation Error.
func IsValidation(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// amountPattern is the only accepted shape once the decimal comma has been
// replaced: digits with an optional fractional part. Exponents and hex
// floats are rejected.
var amountPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// maxAmount keeps the value representable in minor units.
const maxAmount = float64(math.MaxInt64 / 100)

// ParseAmount parses a donation amount typed by a user. Both "25.50" and
// "25,50" are accepted. The value must be greater than zero once rounded to
// minor units.
func ParseAmount(raw string) (models.Money, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if normalized == "" {
		return 0, invalid("amount", "amount is required")
	}
	if !amountPattern.MatchString(normalized) {
		return 0, invalid("amount", "%q is not a number", raw)
	}

	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, invalid("amount", "%q is not a number", raw)
	}
	if value >= maxAmount {
		return 0, invalid("amount", "amount is too large")
	}

	amount := models.MoneyFromDecimal(value)
	if amount <= 0 {
		return 0, invalid("amount", "amount must be greater than zero")
	}
	return amount, nil
}

// ParseCommission parses the admin commission percentage. The input must be
// an integer between 0 and 100 inclusive; the returned value is the fraction
// sent to the payment service (20 -> 0.20).
func ParseCommission(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, invalid("commission", "commission is required")
	}

	percent, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, invalid("commission", "%q is not a whole number", raw)
	}
	if percent < 0 || percent > 100 {
		return 0, invalid("commission", "commission must be between 0 and 100")
	}
	return float64(percent) / 100, nil
}

// EventSchedule checks an event date against today and returns the date on
// which fundraising closes. Dates are compared at day granularity.
func EventSchedule(today, eventDate time.Time) (time.Time, error) {
	if eventDate.IsZero() {
		return time.Time{}, invalid("eventDate", "event date is required")
	}

	day := truncateDay(eventDate)
	earliest := truncateDay(today.In(eventDate.Location())).AddDate(0, 0, MinLeadDays)
	if day.Before(earliest) {
		return time.Time{}, invalid("eventDate", "event must be at least %d days from today (earliest %s)",
			MinLeadDays, earliest.Format(time.DateOnly))
	}

	return day.AddDate(0, 0, -FundraisingCloseDays), nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
