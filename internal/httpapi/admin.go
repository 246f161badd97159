package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"crowdstage/internal/models"
	"crowdstage/internal/moderation"
	"crowdstage/internal/session"
)

var kindsByPath = map[string]models.SubjectKind{
	"artists":   models.KindArtist,
	"merchants": models.KindMerchant,
}

type subjectView struct {
	models.Subject
	StateLabel string              `json:"state_label"`
	StateColor string              `json:"state_color"`
	Actions    []moderation.Option `json:"actions"`
	Processing bool                `json:"processing"`
}

type subjectsResponse struct {
	Subjects   []subjectView               `json:"subjects"`
	Counts     map[models.SubjectState]int `json:"counts"`
	Processing []string                    `json:"processing"`
}

type commissionRequest struct {
	// Percent is a whole number between 0 and 100, as typed by the admin.
	Percent string `json:"percent"`
}

type commissionResponse struct {
	Rate    float64 `json:"rate"`
	Percent int     `json:"percent"`
}

func newCommissionResponse(rate float64) commissionResponse {
	return commissionResponse{Rate: rate, Percent: int(rate*100 + 0.5)}
}

func viewSubject(subject models.Subject, processing map[string]bool) subjectView {
	return subjectView{
		Subject:    subject,
		StateLabel: models.StateLabel(string(subject.State)),
		StateColor: models.StateColor(string(subject.State)),
		Actions:    moderation.Actions(subject.State),
		Processing: processing[subject.ID],
	}
}

// board resolves the {kind} path segment. It writes a 404 for unknown kinds.
func (s *Server) board(w http.ResponseWriter, r *http.Request) (models.SubjectKind, ModerationBoard, bool) {
	kind, ok := kindsByPath[mux.Vars(r)["kind"]]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown subject kind"})
		return "", nil, false
	}
	board, ok := s.boards[kind]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown subject kind"})
		return "", nil, false
	}
	return kind, board, true
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleAdmin)
	if !ok {
		return
	}
	_, board, ok := s.board(w, r)
	if !ok {
		return
	}

	states, err := moderation.ParseStates(r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Counts cover every subject so filter tabs can show totals.
	all, err := board.List(r.Context(), state.Token, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	processing := board.Processing()
	inFlight := make(map[string]bool, len(processing))
	for _, id := range processing {
		inFlight[id] = true
	}

	filtered := moderation.Filter(all, states)
	views := make([]subjectView, 0, len(filtered))
	for _, subject := range filtered {
		views = append(views, viewSubject(subject, inFlight))
	}

	writeJSON(w, http.StatusOK, subjectsResponse{
		Subjects:   views,
		Counts:     moderation.Counts(all),
		Processing: processing,
	})
}

func (s *Server) handleSubjectAction(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleAdmin)
	if !ok {
		return
	}
	_, board, ok := s.board(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	subject, err := board.Apply(r.Context(), state.Token, state.Username, vars["id"], moderation.Action(vars["action"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSubject(subject, nil))
}

func (s *Server) handleSubjectHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, session.RoleAdmin); !ok {
		return
	}
	kind, _, ok := s.board(w, r)
	if !ok {
		return
	}

	history, err := s.ledger.ModerationHistory(r.Context(), kind, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []models.ModerationDecision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": history})
}

func (s *Server) handleGetCommission(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleAdmin)
	if !ok {
		return
	}

	rate, err := s.commission.Load(r.Context(), state.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommissionResponse(rate))
}

func (s *Server) handlePutCommission(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleAdmin)
	if !ok {
		return
	}

	var req commissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	rate, err := s.commission.Update(r.Context(), state.Token, req.Percent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommissionResponse(rate))
}
