package upstream

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingToken is returned when the auth service answers without a JWT.
var ErrMissingToken = errors.New("auth service returned no token")

// LoginResult is what the auth service hands back on a successful login.
type LoginResult struct {
	JWT  string `json:"jwt"`
	Role string `json:"role"`
}

// Login exchanges credentials for a JWT and role.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}

	var result LoginResult
	if err := c.do(ctx, http.MethodPost, c.endpoints.Auth, "/api/login/auth/", "", body, &result); err != nil {
		return LoginResult{}, err
	}
	if strings.TrimSpace(result.JWT) == "" {
		return LoginResult{}, ErrMissingToken
	}
	return result, nil
}

// RequestPasswordRecovery asks the auth service to mail a reset link.
func (c *Client) RequestPasswordRecovery(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, c.endpoints.Auth, "/api/login/passwordRecovery", "",
		map[string]string{"email": email}, nil)
}

// ResetPassword completes a password reset with the mailed token.
func (c *Client) ResetPassword(ctx context.Context, resetToken, password string) error {
	return c.do(ctx, http.MethodPost, c.endpoints.Auth, "/api/login/passwordReset", "",
		map[string]string{"token": resetToken, "password": password}, nil)
}
