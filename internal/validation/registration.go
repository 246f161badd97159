package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Registration is the sign-up form for fans and artists.
type Registration struct {
	Username  string   `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=8"`
	FirstName string   `json:"firstName" validate:"required"`
	LastName  string   `json:"lastName" validate:"required"`
	Artist    bool     `json:"artist"`
	StageName string   `json:"stageName" validate:"required_if=Artist true"`
	Genres    []string `json:"genres" validate:"required_if=Artist true,dive,required"`
	Socials   []string `json:"socials,omitempty" validate:"omitempty,dive,url"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// CheckRegistration reports the first invalid field of a registration form.
func CheckRegistration(reg Registration) error {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)

	err := structValidator().Struct(reg)
	if err == nil {
		if reg.Artist && len(reg.Genres) == 0 {
			return invalid("genres", "at least one genre is required")
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate registration: %w", err)
	}

	fe := fieldErrs[0]
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required", "required_if":
		return invalid(field, "%s is required", field)
	case "email":
		return invalid(field, "not a valid email address")
	case "min":
		return invalid(field, "must be at least %s characters", fe.Param())
	case "max":
		return invalid(field, "must be at most %s characters", fe.Param())
	case "alphanum":
		return invalid(field, "may only contain letters and digits")
	case "url":
		return invalid(field, "not a valid URL")
	default:
		return invalid(field, "failed %s check", fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
