package upstream

import (
	"context"
	"net/http"
	"time"
)

// Report is a user report against an event, comment or account.
type Report struct {
	ID         string    `json:"id"`
	Reporter   string    `json:"reporter"`
	ObjectID   string    `json:"objectId"`
	ObjectType string    `json:"objectType"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"-"`
}

type wireReport struct {
	Report
	Date wireDate `json:"date"`
}

// ReportObject is something that can be reported.
type ReportObject struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// Reports lists submitted reports.
func (c *Client) Reports(ctx context.Context, token string) ([]Report, error) {
	var wire []wireReport
	if err := c.do(ctx, http.MethodGet, c.endpoints.Report, "/api/report/get-reports", token, nil, &wire); err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(wire))
	for _, w := range wire {
		r := w.Report
		r.CreatedAt = w.Date.Time
		reports = append(reports, r)
	}
	return reports, nil
}

// ReportObjects lists every reportable object.
func (c *Client) ReportObjects(ctx context.Context, token string) ([]ReportObject, error) {
	var objects []ReportObject
	if err := c.do(ctx, http.MethodGet, c.endpoints.Report, "/api/report/get-all-report-objects", token, nil, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

// SendReport files a report about an object.
func (c *Client) SendReport(ctx context.Context, token, objectID, objectType, reason string) error {
	body := map[string]string{
		"objectId":   objectID,
		"objectType": objectType,
		"reason":     reason,
	}
	return c.do(ctx, http.MethodPost, c.endpoints.Report, "/api/report/send", token, body, nil)
}
