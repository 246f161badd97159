package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"crowdstage/internal/models"
	"crowdstage/internal/moderation"
	"crowdstage/internal/session"
	"crowdstage/internal/validation"
)

type createEventRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Genres           []string `json:"genres"`
	TargetAmount     string   `json:"target_amount"`
	EventDate        string   `json:"event_date"`
	MerchantUsername string   `json:"merchant_username"`
	Pictures         []string `json:"pictures"`
	AudioSamples     []string `json:"audio_samples"`
}

type eventView struct {
	models.Event
	StateLabel string                   `json:"state_label"`
	StateColor string                   `json:"state_color"`
	Actions    []moderation.EventOption `json:"actions,omitempty"`
}

func (s *Server) viewEvent(event models.Event) eventView {
	event.Comments = event.VisibleComments(s.now())
	return eventView{
		Event:      event,
		StateLabel: models.StateLabel(string(event.State)),
		StateColor: models.StateColor(string(event.State)),
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r)
	if !ok {
		return
	}

	events, err := s.events.Catalog(r.Context(), state.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, s.viewEvent(event))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r)
	if !ok {
		return
	}

	event, err := s.events.Event(r.Context(), state.Token, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewEvent(event))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleArtist)
	if !ok {
		return
	}

	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	event, endFundraising, err := s.newEvent(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.events.CreateEvent(r.Context(), state.Token, event, endFundraising)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.viewEvent(created))
}

// newEvent validates a proposal before anything is sent to the event service.
func (s *Server) newEvent(req createEventRequest) (models.NewEvent, time.Time, error) {
	if strings.TrimSpace(req.Name) == "" {
		return models.NewEvent{}, time.Time{}, &validation.Error{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(req.MerchantUsername) == "" {
		return models.NewEvent{}, time.Time{}, &validation.Error{Field: "merchantUsername", Message: "a venue is required"}
	}
	genres, err := genreSet(req.Genres)
	if err != nil {
		return models.NewEvent{}, time.Time{}, err
	}

	target, err := validation.ParseAmount(req.TargetAmount)
	if err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			verr.Field = "targetAmount"
		}
		return models.NewEvent{}, time.Time{}, err
	}

	eventDate, err := parseEventDate(req.EventDate)
	if err != nil {
		return models.NewEvent{}, time.Time{}, err
	}
	endFundraising, err := validation.EventSchedule(s.now(), eventDate)
	if err != nil {
		return models.NewEvent{}, time.Time{}, err
	}

	return models.NewEvent{
		Name:             strings.TrimSpace(req.Name),
		Description:      req.Description,
		Genres:           genres,
		TargetAmount:     target,
		EventDate:        eventDate,
		MerchantUsername: strings.TrimSpace(req.MerchantUsername),
		Pictures:         req.Pictures,
		AudioSamples:     req.AudioSamples,
	}, endFundraising, nil
}

// genreSet trims the submitted tags and drops repeats. At least one tag is
// required and blank tags are rejected.
func genreSet(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, &validation.Error{Field: "genres", Message: "at least one genre is required"}
	}
	seen := make(map[string]bool, len(raw))
	genres := make([]string, 0, len(raw))
	for _, genre := range raw {
		genre = strings.TrimSpace(genre)
		if genre == "" {
			return nil, &validation.Error{Field: "genres", Message: "genres must not be blank"}
		}
		if seen[strings.ToLower(genre)] {
			continue
		}
		seen[strings.ToLower(genre)] = true
		genres = append(genres, genre)
	}
	return genres, nil
}

func parseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &validation.Error{Field: "eventDate", Message: "event date is required"}
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &validation.Error{Field: "eventDate", Message: "event date must be YYYY-MM-DD"}
}

func (s *Server) handleEventProgress(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r)
	if !ok {
		return
	}

	event, err := s.events.Event(r.Context(), state.Token, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	progress, err := s.progress.For(r.Context(), state.Token, event)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleEventDonations lists the ledger rows of an event. Donors who chose
// not to be public are hidden from everyone but admins.
func (s *Server) handleEventDonations(w http.ResponseWriter, r *http.Request) {
	state, ok := s.authorize(w, r, session.RoleArtist, session.RoleMerchant, session.RoleAdmin)
	if !ok {
		return
	}

	donations, err := s.ledger.DonationsByEvent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if donations == nil {
		donations = []models.Donation{}
	}
	if !strings.EqualFold(state.Role, session.RoleAdmin) {
		for i := range donations {
			if !donations[i].Public {
				donations[i].Username = ""
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"donations": donations})
}
