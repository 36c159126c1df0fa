package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"garagelink/internal/domain"
	"garagelink/internal/events"
	applog "garagelink/internal/log"
	"garagelink/internal/metrics"
	"garagelink/internal/repository"
)

// EndRequest asks to end a session. ActorRole is only honoured for
// domain.RoleSystem; other callers are authorized by ActorID.
type EndRequest struct {
	SessionID string
	ActorID   string
	ActorRole string
	Reason    string
}

// EndResult is what the caller sees after finalization.
type EndResult struct {
	SessionID       string
	FinalStatus     string
	DurationSeconds int64
	Started         bool
	SemanticMessage string
	AlreadyEnded    bool
	Payout          *PayoutRecord
	Degraded        []Outcome
}

// SessionEndService runs the end-of-session pipeline: status resolution,
// settlement, request reconciliation, then notifications and broadcasts.
// Only resolution failures are returned as errors.
type SessionEndService struct {
	store      *repository.SessionStore
	resolver   *StatusResolver
	settlement *SettlementExecutor
	reconciler *ReconciliationMatcher
	fanout     *Fanout
	dispatcher events.Dispatcher

	dispatchTimeout time.Duration
	inflight        sync.WaitGroup
	logger          zerolog.Logger
}

func NewSessionEndService(
	store *repository.SessionStore,
	resolver *StatusResolver,
	settlement *SettlementExecutor,
	reconciler *ReconciliationMatcher,
	fanout *Fanout,
	dispatcher events.Dispatcher,
) *SessionEndService {
	if dispatcher == nil {
		dispatcher = events.Nop{}
	}
	return &SessionEndService{
		store:           store,
		resolver:        resolver,
		settlement:      settlement,
		reconciler:      reconciler,
		fanout:          fanout,
		dispatcher:      dispatcher,
		dispatchTimeout: 10 * time.Second,
		logger:          applog.WithComponent("session_end"),
	}
}

func (s *SessionEndService) End(ctx context.Context, req EndRequest) (*EndResult, error) {
	start := time.Now()
	defer metrics.ObserveEnd(start)

	if req.Reason == "" {
		req.Reason = domain.ReasonUserEnded
	}
	logger := applog.FromContext(ctx, s.logger).With().Str("session_id", req.SessionID).Logger()

	src, rec, err := s.store.Locate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	role, err := authorize(rec, req)
	if err != nil {
		logger.Warn().Str("actor_id", req.ActorID).Msg("end rejected for non-participant")
		return nil, err
	}

	if domain.IsTerminalSessionStatus(rec.Status) {
		return alreadyEndedResult(rec), nil
	}
	if !slices.Contains(domain.EndableSessionStatuses, rec.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrNotEndable, rec.Status)
	}

	report := &Report{}
	res, err := s.resolver.Resolve(ctx, src, rec, role, req.Reason, report)
	if err != nil {
		return nil, err
	}
	if res.AlreadyEnded {
		current, err := src.Find(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		return alreadyEndedResult(current), nil
	}
	metrics.IncSessionEnded(res.FinalStatus)

	pr := s.settlement.Settle(ctx, rec, res, report)
	metrics.IncPayout(pr.Status)

	report.Add(s.reconciler.Reconcile(ctx, rec, res.FinalStatus))
	report.Add(s.fanout.Notify(ctx, rec, res, role))
	report.Add(s.fanout.Broadcast(ctx, rec, res, role))

	meta := map[string]any{
		domain.MetaPayout:       pr.Metadata(),
		domain.MetaFinalization: s.finalizationMetadata(report, res, role, req.Reason),
	}
	if err := src.MergeMetadata(ctx, rec.ID, meta); err != nil {
		logger.Error().Err(err).Interface("payout", pr).Msg("persisting finalization metadata failed")
		report.Add(Degraded(StageMetadata, err))
	}

	degraded := report.Degraded()
	for _, o := range degraded {
		metrics.IncDegraded(o.Stage)
	}

	s.dispatch(rec, res, role)

	logger.Info().
		Str("final_status", res.FinalStatus).
		Str("payout_status", pr.Status).
		Int("degraded", len(degraded)).
		Dur("took", time.Since(start)).
		Msg("session finalized")

	result := &EndResult{
		SessionID:       rec.ID,
		FinalStatus:     res.FinalStatus,
		DurationSeconds: res.DurationSeconds,
		Started:         res.Started,
		SemanticMessage: res.Message,
		Degraded:        degraded,
	}
	if res.FinalStatus == domain.SessionStatusCompleted {
		result.Payout = pr
	}
	return result, nil
}

// Wait blocks until detached dispatches have finished.
func (s *SessionEndService) Wait() {
	s.inflight.Wait()
}

func (s *SessionEndService) finalizationMetadata(report *Report, res *Resolution, role, reason string) map[string]any {
	m := report.Metadata()
	m["ended_by"] = role
	m["reason"] = reason
	m["ended_at"] = res.EndedAt.UTC().Format(time.RFC3339)
	m["started"] = res.Started
	if res.Message != "" {
		m["semantic_message"] = res.Message
	}
	return m
}

// dispatch hands the event to downstream consumers without waiting for them.
// The request context is not reused since the request may finish first.
func (s *SessionEndService) dispatch(rec *repository.SessionRecord, res *Resolution, role string) {
	evt := events.SessionEnded{
		SessionID:       rec.ID,
		SessionType:     rec.Modality,
		FinalStatus:     res.FinalStatus,
		DurationSeconds: res.DurationSeconds,
		CustomerID:      rec.CustomerID,
		MechanicID:      rec.MechanicID,
		EndedBy:         role,
		EndedAt:         res.EndedAt,
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
		defer cancel()
		if err := s.dispatcher.SessionEnded(ctx, evt); err != nil {
			metrics.IncDegraded(StageDispatch)
			s.logger.Warn().Err(err).Str("session_id", evt.SessionID).Msg("session.ended dispatch failed")
		}
	}()
}

func authorize(rec *repository.SessionRecord, req EndRequest) (string, error) {
	if req.ActorRole == domain.RoleSystem {
		return domain.RoleSystem, nil
	}
	role, ok := rec.RoleOf(req.ActorID)
	if !ok {
		return "", ErrNotParticipant
	}
	return role, nil
}

func alreadyEndedResult(rec *repository.SessionRecord) *EndResult {
	res := &EndResult{
		SessionID:       rec.ID,
		FinalStatus:     rec.Status,
		DurationSeconds: rec.DurationSeconds,
		Started:         rec.StartedAt != nil,
		AlreadyEnded:    true,
		Degraded:        []Outcome{},
	}
	if rec.Status == domain.SessionStatusCompleted {
		res.Payout = payoutFromMetadata(rec.Metadata)
	}
	return res
}
