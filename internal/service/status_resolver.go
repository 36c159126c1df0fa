package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"garagelink/internal/domain"
	applog "garagelink/internal/log"
	"garagelink/internal/repository"
	"garagelink/pkg/procedure"
)

// Semantics decides whether an ended session is billable.
type Semantics interface {
	EndSessionSemantic(ctx context.Context, sessionID, actorRole, reason string) (*procedure.SemanticResult, error)
}

// Resolution is the authoritative end state of a session.
type Resolution struct {
	FinalStatus     string
	Started         bool
	DurationSeconds int64
	Message         string
	EndedAt         time.Time
	// AlreadyEnded is set when another caller finalized the session first.
	AlreadyEnded bool
}

type StatusResolver struct {
	assignments *repository.AssignmentRepository
	semantics   Semantics
	now         func() time.Time
	logger      zerolog.Logger
}

func NewStatusResolver(assignments *repository.AssignmentRepository, semantics Semantics) *StatusResolver {
	return &StatusResolver{
		assignments: assignments,
		semantics:   semantics,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      applog.WithComponent("resolver"),
	}
}

// Resolve ends rec through the guarded transition and asks the semantics
// procedure for the final status. A caller that loses the transition gets a
// Resolution with only AlreadyEnded set and must not settle. If the outcome
// cannot be decided or stored, the transition is reverted.
func (r *StatusResolver) Resolve(ctx context.Context, src repository.SessionSource, rec *repository.SessionRecord, actorRole, reason string, report *Report) (*Resolution, error) {
	logger := applog.FromContext(ctx, r.logger).With().Str("session_id", rec.ID).Logger()
	endedAt := r.now()

	won, err := src.MarkEnded(ctx, rec.ID, endedAt)
	if err != nil {
		logger.Error().Err(err).Msg("guarded status transition failed")
		return nil, fmt.Errorf("%w: %v", ErrTransitionFailed, err)
	}
	if !won {
		logger.Info().Msg("session already ended by another caller")
		return &Resolution{AlreadyEnded: true}, nil
	}

	sem, err := r.semantics.EndSessionSemantic(ctx, rec.ID, actorRole, reason)
	if err == nil && !isFinalStatus(sem.FinalStatus) {
		err = fmt.Errorf("unexpected final status %q", sem.FinalStatus)
	}
	if err != nil {
		logger.Error().Err(err).Msg("semantics procedure failed, reverting transition")
		r.revert(ctx, logger, src, rec)
		return nil, fmt.Errorf("%w: %v", ErrSemanticsFailed, err)
	}

	var duration *int64
	if sem.Started && sem.DurationSeconds != nil {
		d := *sem.DurationSeconds
		duration = &d
	}
	if err := src.SaveOutcome(ctx, rec.ID, sem.FinalStatus, duration); err != nil {
		logger.Error().Err(err).Str("final_status", sem.FinalStatus).Msg("persisting final status failed, reverting transition")
		r.revert(ctx, logger, src, rec)
		return nil, fmt.Errorf("%w: save outcome: %v", ErrTransitionFailed, err)
	}
	report.Add(OK(StageOutcome))

	if n, err := r.assignments.CloseOpenForSession(ctx, rec.ID, reason, endedAt); err != nil {
		logger.Warn().Err(err).Msg("closing assignments failed")
		report.Add(Degraded(StageAssignments, err))
	} else {
		logger.Debug().Int64("closed", n).Msg("assignments closed")
		report.Add(OK(StageAssignments))
	}

	res := &Resolution{
		FinalStatus: sem.FinalStatus,
		Started:     sem.Started,
		Message:     sem.Message,
		EndedAt:     endedAt,
	}
	if duration != nil {
		res.DurationSeconds = *duration
	}
	logger.Info().
		Str("final_status", res.FinalStatus).
		Bool("started", res.Started).
		Int64("duration_seconds", res.DurationSeconds).
		Msg("session resolved")
	return res, nil
}

// revert puts the session back to its pre-transition status so a later call
// can finalize it again.
func (r *StatusResolver) revert(ctx context.Context, logger zerolog.Logger, src repository.SessionSource, rec *repository.SessionRecord) {
	if err := src.RevertEnded(ctx, rec.ID, rec.Status); err != nil {
		logger.Error().Err(err).Msg("revert failed; session left completed without outcome")
	}
}

func isFinalStatus(s string) bool {
	return s == domain.SessionStatusCompleted || s == domain.SessionStatusCancelled
}
