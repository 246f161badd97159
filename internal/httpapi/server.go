package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"crowdstage/internal/logging"
	"crowdstage/internal/models"
	"crowdstage/internal/moderation"
	"crowdstage/internal/payment"
	"crowdstage/internal/session"
	"crowdstage/internal/store"
	"crowdstage/internal/upstream"
	"crowdstage/internal/validation"
)

// SessionHeader carries the session id issued by the login endpoint.
const SessionHeader = "X-Session-ID"

// SessionService captures the session operations needed by the HTTP handlers.
type SessionService interface {
	Login(ctx context.Context, username, password string) (session.State, error)
	Logout(ctx context.Context, sessionID string) error
	Current(ctx context.Context, sessionID string) (session.State, error)
	Require(ctx context.Context, sessionID string, roles ...string) (session.State, error)
	SetProfileImage(ctx context.Context, sessionID, imageURL string) (session.State, error)
}

// AccountService covers sign-up and password recovery, which need no session.
type AccountService interface {
	Register(ctx context.Context, reg validation.Registration) error
	Genres(ctx context.Context) ([]string, error)
	Socials(ctx context.Context) ([]string, error)
	Platforms(ctx context.Context) ([]string, error)
	UsernameAvailable(ctx context.Context, username string) (bool, error)
	RequestPasswordRecovery(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) error
}

// EventService reads and proposes events on the event service.
type EventService interface {
	Catalog(ctx context.Context, token string) ([]models.Event, error)
	Event(ctx context.Context, token, eventID string) (models.Event, error)
	CreateEvent(ctx context.Context, token string, event models.NewEvent, endFundraising time.Time) (models.Event, error)
}

// ProgressService computes how far an event is towards its target.
type ProgressService interface {
	For(ctx context.Context, token string, event models.Event) (payment.EventProgress, error)
}

// DonationService starts donations and tracks them to completion.
type DonationService interface {
	Start(ctx context.Context, token string, req payment.DonationRequest, window payment.Window) (*payment.Tracker, error)
	Get(id string) (payment.Snapshot, error)
	WindowClosed(id string) (payment.Snapshot, error)
	PopupBlocked(id string) (payment.Snapshot, error)
	Cancel(ctx context.Context, id string) (payment.Snapshot, error)
	Dismiss(id string) error
}

// PaymentHistory lists completed payments as the payment service reports them.
type PaymentHistory interface {
	ArtistPayments(ctx context.Context, token string) ([]models.Payment, error)
	AdminPayments(ctx context.Context, token string) ([]models.Payment, error)
}

// LedgerService reads the local donation ledger and moderation audit trail.
type LedgerService interface {
	Donation(ctx context.Context, id string) (models.Donation, error)
	DonationsByEvent(ctx context.Context, eventID string) ([]models.Donation, error)
	ModerationHistory(ctx context.Context, kind models.SubjectKind, subjectID string) ([]models.ModerationDecision, error)
}

// ModerationBoard moderates one kind of account.
type ModerationBoard interface {
	List(ctx context.Context, token string, states []models.SubjectState) ([]models.Subject, error)
	Apply(ctx context.Context, token, actor, subjectID string, action moderation.Action) (models.Subject, error)
	Processing() []string
}

// MerchantQueue holds the events awaiting a merchant's decision.
type MerchantQueue interface {
	Pending(ctx context.Context, token, merchant string) ([]models.Event, error)
	Accept(ctx context.Context, token, merchant, eventID, offer string) (models.Event, error)
	Reject(ctx context.Context, token, merchant, eventID string) (models.Event, error)
	UpdateOffer(ctx context.Context, token, merchant, eventID, offer string) (models.Event, error)
}

// CommissionService reads and updates the platform commission.
type CommissionService interface {
	Load(ctx context.Context, token string) (float64, error)
	Update(ctx context.Context, token, raw string) (float64, error)
}

// ReportService files and reads abuse reports.
type ReportService interface {
	Reports(ctx context.Context, token string) ([]upstream.Report, error)
	ReportObjects(ctx context.Context, token string) ([]upstream.ReportObject, error)
	SendReport(ctx context.Context, token, objectID, objectType, reason string) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	sessions   SessionService
	accounts   AccountService
	events     EventService
	progress   ProgressService
	donations  DonationService
	payments   PaymentHistory
	ledger     LedgerService
	boards     map[models.SubjectKind]ModerationBoard
	merchants  MerchantQueue
	commission CommissionService
	reports    ReportService
	health     Pinger

	donationLimit func(http.Handler) http.Handler
	now           func() time.Time
}

// New configures a Server. boards is keyed by the kind each board moderates.
func New(
	sessions SessionService,
	accounts AccountService,
	events EventService,
	progress ProgressService,
	donations DonationService,
	payments PaymentHistory,
	ledger LedgerService,
	boards map[models.SubjectKind]ModerationBoard,
	merchants MerchantQueue,
	commission CommissionService,
	reports ReportService,
	health Pinger,
) *Server {
	return &Server{
		sessions:   sessions,
		accounts:   accounts,
		events:     events,
		progress:   progress,
		donations:  donations,
		payments:   payments,
		ledger:     ledger,
		boards:     boards,
		merchants:  merchants,
		commission: commission,
		reports:    reports,
		health:     health,
		now:        time.Now,
	}
}

// LimitDonations installs the middleware that throttles donation starts.
func (s *Server) LimitDonations(mw func(http.Handler) http.Handler) {
	s.donationLimit = mw
}

// Routes exposes the HTTP handlers.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-recovery", s.handlePasswordRecovery).Methods(http.MethodPost)
	api.HandleFunc("/auth/password-reset", s.handlePasswordReset).Methods(http.MethodPost)
	api.HandleFunc("/registration/options", s.handleRegistrationOptions).Methods(http.MethodGet)
	api.HandleFunc("/registration/username/{username}", s.handleUsernameAvailable).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/profile-image", s.handleProfileImage).Methods(http.MethodPut)

	api.HandleFunc("/events", s.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleCreateEvent).Methods(http.MethodPost)
	api.HandleFunc("/events/{id}", s.handleEvent).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}/progress", s.handleEventProgress).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}/donations", s.handleEventDonations).Methods(http.MethodGet)

	var start http.Handler = http.HandlerFunc(s.handleStartDonation)
	if s.donationLimit != nil {
		start = s.donationLimit(start)
	}
	api.Handle("/donations", start).Methods(http.MethodPost)
	api.HandleFunc("/donations/{id}", s.handleDonation).Methods(http.MethodGet)
	api.HandleFunc("/donations/{id}", s.handleCancelDonation).Methods(http.MethodDelete)
	api.HandleFunc("/donations/{id}/window", s.handleDonationWindow).Methods(http.MethodPost)
	api.HandleFunc("/donations/{id}/dismiss", s.handleDismissDonation).Methods(http.MethodPost)
	api.HandleFunc("/payments", s.handlePayments).Methods(http.MethodGet)

	api.HandleFunc("/reports", s.handleSendReport).Methods(http.MethodPost)

	// Fixed admin paths are registered ahead of the {kind} routes they would otherwise match.
	api.HandleFunc("/admin/commission", s.handleGetCommission).Methods(http.MethodGet)
	api.HandleFunc("/admin/commission", s.handlePutCommission).Methods(http.MethodPut)
	api.HandleFunc("/admin/reports", s.handleReports).Methods(http.MethodGet)
	api.HandleFunc("/admin/{kind}", s.handleSubjects).Methods(http.MethodGet)
	api.HandleFunc("/admin/{kind}/{id}/history", s.handleSubjectHistory).Methods(http.MethodGet)
	api.HandleFunc("/admin/{kind}/{id}/{action}", s.handleSubjectAction).Methods(http.MethodPost)

	api.HandleFunc("/merchant/events/pending", s.handlePendingEvents).Methods(http.MethodGet)
	api.HandleFunc("/merchant/events/{id}/accept", s.handleAcceptEvent).Methods(http.MethodPost)
	api.HandleFunc("/merchant/events/{id}/reject", s.handleRejectEvent).Methods(http.MethodPost)
	api.HandleFunc("/merchant/events/{id}/offer", s.handleUpdateOffer).Methods(http.MethodPut)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// authorize resolves the caller's session and checks its role. It writes the
// error response itself and reports whether the handler may continue.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, roles ...string) (session.State, bool) {
	state, err := s.sessions.Require(r.Context(), sessionID(r), roles...)
	if err != nil {
		writeError(w, r, err)
		return session.State{}, false
	}
	return state, true
}

func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	return parseBearerToken(r.Header.Get("Authorization"))
}

// decodeJSON decodes an optional request body into dst. An empty body leaves
// dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *validation.Error
		herr *upstream.HTTPError
		nerr *upstream.NetworkError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, session.ErrUnauthorized), upstream.IsUnauthorized(err):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, session.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, store.ErrDonationNotFound),
		upstream.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, moderation.ErrInProgress),
		errors.Is(err, moderation.ErrIllegalTransition),
		errors.Is(err, payment.ErrStillRunning):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &nerr):
		logging.FromContext(r.Context()).Warn().Err(err).Msg("Upstream unreachable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "upstream service unavailable"})
	case errors.As(err, &herr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: herr.Message})
	case errors.Is(err, payment.ErrCreation):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		logging.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
