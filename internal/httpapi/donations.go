package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"crowdstage/internal/models"
	"crowdstage/internal/payment"
	"crowdstage/internal/session"
	"crowdstage/internal/validation"
)

type donationRequest struct {
	// Amount is kept as typed by the donor; "25,50" and "25.50" are both valid.
	Amount  string `json:"amount"`
	Public  bool   `json:"public"`
	EventID string `json:"event_id"`
}

type windowRequest struct {
	State string `json:"state"`
}

const (
	windowClosed  = "closed"
	windowBlocked = "blocked"
)

// handleStartDonation creates the payment and returns the tracker snapshot.
// The client opens the approval URL itself and reports back through the
// window endpoint when the popup is closed or blocked. Donors always donate
// from a fan session; giving anonymously means public=false, which keeps the
// username off every non-admin listing.
func (s *Server) handleStartDonation(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleFan)
	if !ok {
		return
	}

	var req donationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	amount, err := validation.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tracker, err := s.donations.Start(r.Context(), state.Token, payment.DonationRequest{
		Amount:   amount,
		Public:   req.Public,
		EventID:  strings.TrimSpace(req.EventID),
		Username: state.Username,
	}, payment.NewRemoteWindow())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tracker.Snapshot())
}

// ownDonation resolves the caller's session and the live donation it names.
func (s *Server) ownDonation(w http.ResponseWriter, r *http.Request) (payment.Snapshot, bool) {
	state, ok := s.authorize(w, r)
	if !ok {
		return payment.Snapshot{}, false
	}

	snap, err := s.donations.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return payment.Snapshot{}, false
	}
	if !visibleTo(state, snap) {
		writeError(w, r, payment.ErrNotFound)
		return payment.Snapshot{}, false
	}
	return snap, true
}

// visibleTo hides a donation belonging to someone else unless the caller is
// an admin. Hidden donations read as not found.
func visibleTo(state session.State, snap payment.Snapshot) bool {
	return snap.Username == state.Username || strings.EqualFold(state.Role, session.RoleAdmin)
}

// handleDonation reads a donation. Once its tracker has been released the
// outcome is served from the ledger.
func (s *Server) handleDonation(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	snap, err := s.donations.Get(id)
	if errors.Is(err, payment.ErrNotFound) {
		var recorded models.Donation
		if recorded, err = s.ledger.Donation(r.Context(), id); err == nil {
			snap = payment.SnapshotFromDonation(recorded)
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !visibleTo(state, snap) {
		writeError(w, r, payment.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDonationWindow(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.ownDonation(w, r)
	if !ok {
		return
	}

	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	var err error
	switch strings.ToLower(strings.TrimSpace(req.State)) {
	case windowClosed:
		snap, err = s.donations.WindowClosed(snap.ID)
	case windowBlocked:
		snap, err = s.donations.PopupBlocked(snap.ID)
	default:
		writeError(w, r, &validation.Error{Field: "state", Message: `window state must be "closed" or "blocked"`})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelDonation(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.ownDonation(w, r)
	if !ok {
		return
	}

	snap, err := s.donations.Cancel(r.Context(), snap.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDismissDonation(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.ownDonation(w, r)
	if !ok {
		return
	}

	if err := s.donations.Dismiss(snap.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePayments lists an artist's received payments, or every payment for
// admins.
func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleArtist, session.RoleAdmin)
	if !ok {
		return
	}

	var (
		payments []models.Payment
		err      error
	)
	if strings.EqualFold(state.Role, session.RoleAdmin) {
		payments, err = s.payments.AdminPayments(r.Context(), state.Token)
	} else {
		payments, err = s.payments.ArtistPayments(r.Context(), state.Token)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	var total models.Money
	for _, p := range payments {
		if p.Confirmed() {
			total += p.Amount
		}
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments, "confirmed_total": total})
}
