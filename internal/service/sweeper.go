package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"garagelink/internal/domain"
	applog "garagelink/internal/log"
	"garagelink/internal/repository"
)

// Sweeper auto-ends live sessions that have run past the maximum duration.
type Sweeper struct {
	store       *repository.SessionStore
	ends        *SessionEndService
	maxDuration time.Duration
	batchSize   int
	now         func() time.Time
	logger      zerolog.Logger
}

func NewSweeper(store *repository.SessionStore, ends *SessionEndService, maxDuration time.Duration, batchSize int) *Sweeper {
	return &Sweeper{
		store:       store,
		ends:        ends,
		maxDuration: maxDuration,
		batchSize:   batchSize,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      applog.WithComponent("sweeper"),
	}
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Scanned int
	Ended   int
	Failed  int
}

// Run ends every overdue session found in one batch. Individual failures are
// logged and counted; only a failed listing is returned.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	var out SweepResult
	cutoff := s.now().Add(-s.maxDuration)
	ids, err := s.store.ListOverdue(ctx, cutoff, s.batchSize)
	if err != nil {
		return out, err
	}
	out.Scanned = len(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ends.End(ctx, EndRequest{
			SessionID: id,
			ActorRole: domain.RoleSystem,
			Reason:    domain.ReasonAutoEndedMaxDur,
		})
		if err != nil {
			out.Failed++
			s.logger.Warn().Err(err).Str("session_id", id).Msg("auto-end failed")
			continue
		}
		if !res.AlreadyEnded {
			out.Ended++
		}
		s.logger.Info().
			Str("session_id", id).
			Str("final_status", res.FinalStatus).
			Msg("session auto-ended")
	}
	s.logger.Info().
		Int("scanned", out.Scanned).
		Int("ended", out.Ended).
		Int("failed", out.Failed).
		Time("cutoff", cutoff).
		Msg("sweep finished")
	return out, nil
}
