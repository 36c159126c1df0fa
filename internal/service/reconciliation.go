package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"garagelink/internal/domain"
	applog "garagelink/internal/log"
	"garagelink/internal/repository"
)

// ReconciliationMatcher closes the request a session was created from.
type ReconciliationMatcher struct {
	requests *repository.RequestRepository
	now      func() time.Time
	logger   zerolog.Logger
}

func NewReconciliationMatcher(requests *repository.RequestRepository) *ReconciliationMatcher {
	return &ReconciliationMatcher{
		requests: requests,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   applog.WithComponent("reconcile"),
	}
}

// Reconcile marks the originating request terminal. Requests pointing at the
// session are closed first; only when none exist is the newest active
// request between the same customer and mechanic closed instead.
func (m *ReconciliationMatcher) Reconcile(ctx context.Context, rec *repository.SessionRecord, finalStatus string) Outcome {
	logger := applog.FromContext(ctx, m.logger).With().Str("session_id", rec.ID).Logger()
	status := requestStatusFor(finalStatus)
	at := m.now()

	n, err := m.requests.CloseBySessionID(ctx, rec.ID, status, at)
	if err != nil {
		logger.Warn().Err(err).Msg("closing request by session id failed")
		return Degraded(StageReconcile, err)
	}
	if n > 0 {
		logger.Debug().Int64("rows", n).Msg("request closed by back-reference")
		return OK(StageReconcile)
	}

	if !rec.HasMechanic() {
		return Skipped(StageReconcile, "no linked request")
	}
	req, err := m.requests.LatestActiveForPair(ctx, rec.CustomerID, rec.MechanicID)
	if err != nil {
		logger.Warn().Err(err).Msg("fallback request lookup failed")
		return Degraded(StageReconcile, err)
	}
	if req == nil {
		return Skipped(StageReconcile, "no linked request")
	}
	if _, err := m.requests.CloseByID(ctx, req.ID, rec.ID, status, at); err != nil {
		logger.Warn().Err(err).Str("request_id", req.ID).Msg("closing fallback request failed")
		return Degraded(StageReconcile, err)
	}
	logger.Info().Str("request_id", req.ID).Msg("request closed by customer/mechanic match")
	return OK(StageReconcile)
}

func requestStatusFor(finalStatus string) string {
	if finalStatus == domain.SessionStatusCompleted {
		return domain.RequestStatusCompleted
	}
	return domain.RequestStatusCancelled
}
