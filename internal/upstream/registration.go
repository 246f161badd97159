package upstream

import (
	"context"
	"net/http"

	"crowdstage/internal/validation"
)

// Genres lists the music genres artists and events may be tagged with.
func (c *Client) Genres(ctx context.Context) ([]string, error) {
	var genres []string
	if err := c.do(ctx, http.MethodGet, c.endpoints.Registration, "/api/registration/genres", "", nil, &genres); err != nil {
		return nil, err
	}
	return genres, nil
}

// Socials lists the social networks an artist may link.
func (c *Client) Socials(ctx context.Context) ([]string, error) {
	var socials []string
	if err := c.do(ctx, http.MethodGet, c.endpoints.Registration, "/api/registration/social", "", nil, &socials); err != nil {
		return nil, err
	}
	return socials, nil
}

// Platforms lists the streaming platforms an artist may link.
func (c *Client) Platforms(ctx context.Context) ([]string, error) {
	var platforms []string
	if err := c.do(ctx, http.MethodGet, c.endpoints.Registration, "/api/registration/platforms", "", nil, &platforms); err != nil {
		return nil, err
	}
	return platforms, nil
}

// UsernameAvailable asks the registration service whether username is free.
func (c *Client) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	var result struct {
		Available bool `json:"available"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoints.Registration, "/api/registration/usernameControl", "",
		map[string]string{"username": username}, &result); err != nil {
		return false, err
	}
	return result.Available, nil
}

// Register submits a fan or artist registration. The form is validated
// locally first; an invalid form never reaches the service.
func (c *Client) Register(ctx context.Context, reg validation.Registration) error {
	if err := validation.CheckRegistration(reg); err != nil {
		return err
	}

	path := "/api/registration/fan/"
	if reg.Artist {
		path = "/api/registration/artist/"
	}
	return c.do(ctx, http.MethodPost, c.endpoints.Registration, path, "", reg, nil)
}
