package httpapi

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"crowdstage/internal/session"
	"crowdstage/internal/upstream"
	"crowdstage/internal/validation"
)

type reportRequest struct {
	ObjectID   string `json:"object_id"`
	ObjectType string `json:"object_type"`
	Reason     string `json:"reason"`
}

type reportView struct {
	upstream.Report
	CreatedAt time.Time `json:"created_at"`
}

type reportsResponse struct {
	Reports []reportView            `json:"reports"`
	Objects []upstream.ReportObject `json:"objects"`
}

func (s *Server) handleSendReport(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	switch {
	case strings.TrimSpace(req.ObjectID) == "" || strings.TrimSpace(req.ObjectType) == "":
		writeError(w, r, &validation.Error{Field: "objectId", Message: "a reported object is required"})
		return
	case strings.TrimSpace(req.Reason) == "":
		writeError(w, r, &validation.Error{Field: "reason", Message: "reason is required"})
		return
	}

	if err := s.reports.SendReport(r.Context(), state.Token, req.ObjectID, req.ObjectType, strings.TrimSpace(req.Reason)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleAdmin)
	if !ok {
		return
	}

	var (
		resp    reportsResponse
		reports []upstream.Report
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		reports, err = s.reports.Reports(ctx, state.Token)
		return err
	})
	g.Go(func() (err error) {
		resp.Objects, err = s.reports.ReportObjects(ctx, state.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	resp.Reports = make([]reportView, 0, len(reports))
	for _, report := range reports {
		resp.Reports = append(resp.Reports, reportView{Report: report, CreatedAt: report.CreatedAt})
	}
	if resp.Objects == nil {
		resp.Objects = []upstream.ReportObject{}
	}
	writeJSON(w, http.StatusOK, resp)
}
