package main

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"crowdstage/internal/config"
	"crowdstage/internal/http/middleware"
	"crowdstage/internal/httpapi"
	"crowdstage/internal/models"
	"crowdstage/internal/moderation"
	"crowdstage/internal/notify"
	"crowdstage/internal/payment"
	"crowdstage/internal/session"
	"crowdstage/internal/store"
	"crowdstage/internal/upstream"
)

// services are the long-lived components main has to stop on exit.
type services struct {
	sessions  *session.Manager
	donations *payment.Service
	handler   http.Handler
}

func newServices(cfg *config.Config, dataStore *store.Store, rdb *redis.Client, publisher notify.Publisher) (*services, error) {
	client := upstream.New(upstream.Endpoints{
		Auth:         cfg.Upstream.AuthURL,
		Registration: cfg.Upstream.RegistrationURL,
		Event:        cfg.Upstream.EventURL,
		Payment:      cfg.Upstream.PaymentURL,
		Admin:        cfg.Upstream.AdminURL,
		Report:       cfg.Upstream.ReportURL,
	}, cfg.Upstream.Timeout)

	var kv session.KV = session.NewMemoryKV()
	if rdb != nil {
		kv = session.NewRedisKV(rdb, "")
	}
	sessions := session.NewManager(kv, client, cfg.Payment.SessionTTL)

	progress := payment.NewProgress(client)
	donations := payment.NewService(client, progress, dataStore, publisher, payment.Config{
		Currency: cfg.Payment.Currency,
		Options: payment.Options{
			Interval:    cfg.Payment.PollInterval,
			MaxDuration: cfg.Payment.MaxDuration,
			MaxAttempts: cfg.Payment.MaxAttempts,
		},
		Retain: cfg.Payment.MaxDuration,
	})

	boards := map[models.SubjectKind]httpapi.ModerationBoard{
		models.KindArtist:   moderation.NewBoard(models.KindArtist, client, dataStore, publisher),
		models.KindMerchant: moderation.NewBoard(models.KindMerchant, client, dataStore, publisher),
	}

	api := httpapi.New(
		sessions,
		client,
		client,
		progress,
		donations,
		client,
		dataStore,
		boards,
		moderation.NewEventQueue(client, dataStore, publisher),
		moderation.NewCommission(client),
		client,
		dataStore,
	)

	limit, err := middleware.RateLimit(cfg.RateLimit.Donations, rdb)
	if err != nil {
		return nil, fmt.Errorf("donation rate limit: %w", err)
	}
	api.LimitDonations(limit)

	var handler http.Handler = api.Routes()
	handler = middleware.CORS(cfg.CORS.AllowedOrigins)(handler)
	handler = middleware.RequestLogging()(handler)
	handler = middleware.Recovery()(handler)

	return &services{sessions: sessions, donations: donations, handler: handler}, nil
}

// logSessionChanges records logins and logouts until changes is closed.
func logSessionChanges(changes <-chan session.Change) {
	for change := range changes {
		event := log.Debug().Str("session_id", change.SessionID)
		if change.State.LoggedIn {
			event.Str("username", change.State.Username).Str("role", change.State.Role).Msg("Session opened")
			continue
		}
		event.Msg("Session closed")
	}
}
