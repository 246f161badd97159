package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"crowdstage/internal/models"
	"crowdstage/internal/moderation"
	"crowdstage/internal/session"
)

type offerRequest struct {
	Offer string `json:"offer"`
}

func (s *Server) viewMerchantEvent(event models.Event) eventView {
	view := s.viewEvent(event)
	view.Actions = moderation.EventActions(event.State)
	return view
}

func (s *Server) handlePendingEvents(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleMerchant)
	if !ok {
		return
	}

	events, err := s.merchants.Pending(r.Context(), state.Token, state.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, s.viewMerchantEvent(event))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

// handleAcceptEvent approves an event. The offer is optional.
func (s *Server) handleAcceptEvent(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleMerchant)
	if !ok {
		return
	}

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	event, err := s.merchants.Accept(r.Context(), state.Token, state.Username, mux.Vars(r)["id"], req.Offer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewMerchantEvent(event))
}

func (s *Server) handleRejectEvent(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleMerchant)
	if !ok {
		return
	}

	event, err := s.merchants.Reject(r.Context(), state.Token, state.Username, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewMerchantEvent(event))
}

func (s *Server) handleUpdateOffer(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleMerchant)
	if !ok {
		return
	}

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	event, err := s.merchants.UpdateOffer(r.Context(), state.Token, state.Username, mux.Vars(r)["id"], req.Offer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewMerchantEvent(event))
}
