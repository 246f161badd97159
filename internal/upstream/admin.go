package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"crowdstage/internal/models"
)

type wireSubject struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	State    string `json:"state"`
}

type subjectPaths struct {
	list     string
	setState string
}

var adminPaths = map[models.SubjectKind]subjectPaths{
	models.KindArtist:   {list: "/api/admin/getArtists", setState: "/api/admin/acceptArtist"},
	models.KindMerchant: {list: "/api/admin/get-merchants", setState: "/api/admin/accept-merchant"},
}

func pathsFor(kind models.SubjectKind) (subjectPaths, error) {
	paths, ok := adminPaths[kind]
	if !ok {
		return subjectPaths{}, fmt.Errorf("unknown subject kind %q", kind)
	}
	return paths, nil
}

// Subjects lists every artist or merchant account.
func (c *Client) Subjects(ctx context.Context, token string, kind models.SubjectKind) ([]models.Subject, error) {
	paths, err := pathsFor(kind)
	if err != nil {
		return nil, err
	}

	var wire []wireSubject
	if err := c.do(ctx, http.MethodGet, c.endpoints.Admin, paths.list, token, nil, &wire); err != nil {
		return nil, err
	}

	subjects := make([]models.Subject, 0, len(wire))
	for _, w := range wire {
		subjects = append(subjects, models.Subject{
			ID:       w.ID,
			Username: w.Username,
			Email:    w.Email,
			Kind:     kind,
			State:    models.SubjectState(strings.ToUpper(strings.TrimSpace(w.State))),
		})
	}
	return subjects, nil
}

// SetSubjectState asks the admin service to move an account to state.
func (c *Client) SetSubjectState(ctx context.Context, token string, kind models.SubjectKind, id string, state models.SubjectState) error {
	paths, err := pathsFor(kind)
	if err != nil {
		return err
	}

	body := wireSubject{ID: id, State: string(state)}
	return c.do(ctx, http.MethodPost, c.endpoints.Admin, paths.setState, token, body, nil)
}
