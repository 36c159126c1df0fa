package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"garagelink/internal/domain"
	applog "garagelink/internal/log"
	"garagelink/internal/models"
	"garagelink/internal/repository"
	"garagelink/pkg/payment"
	"garagelink/pkg/payout"
)

// Ledger records gross session earnings; the far side splits them between
// platform, mechanic and workshop.
type Ledger interface {
	RecordSessionEarnings(ctx context.Context, sessionID, paymentRef string, amountCents int64) error
}

type SettlementExecutor struct {
	calc      *payout.Calculator
	mechanics *repository.MechanicRepository
	transfers payment.Transferer
	ledger    Ledger
	currency  string
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSettlementExecutor(calc *payout.Calculator, mechanics *repository.MechanicRepository, transfers payment.Transferer, ledger Ledger, currency string) *SettlementExecutor {
	return &SettlementExecutor{
		calc:      calc,
		mechanics: mechanics,
		transfers: transfers,
		ledger:    ledger,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    applog.WithComponent("settlement"),
	}
}

// Settle runs the transfer and ledger steps. Neither step can fail the
// caller; both outcomes land in the returned record and the report.
func (e *SettlementExecutor) Settle(ctx context.Context, rec *repository.SessionRecord, res *Resolution, report *Report) *PayoutRecord {
	logger := applog.FromContext(ctx, e.logger).With().Str("session_id", rec.ID).Logger()
	price := e.calc.Price(rec.Plan)
	pr := &PayoutRecord{
		AmountCents:  e.calc.Earnings(rec.Plan, rec.HasMechanic()),
		PriceCents:   price,
		SharePercent: e.calc.SharePercent(),
		SettledAt:    e.now(),
	}

	e.transfer(ctx, logger, rec, res, pr, report)
	e.record(ctx, logger, rec, res, pr, report)
	return pr
}

func (e *SettlementExecutor) transfer(ctx context.Context, logger zerolog.Logger, rec *repository.SessionRecord, res *Resolution, pr *PayoutRecord, report *Report) {
	if reason := ineligibility(rec, res, pr); reason != "" {
		pr.Status = domain.PayoutStatusNoPayout
		pr.Reason = reason
		report.Add(Skipped(StageTransfer, reason))
		return
	}

	if prev := payoutFromMetadata(rec.Metadata); prev.Transferred() {
		pr.Status = domain.PayoutStatusTransferred
		pr.TransferID = prev.TransferID
		pr.PayeeType = prev.PayeeType
		pr.PayeeID = prev.PayeeID
		pr.DestinationAccount = prev.DestinationAccount
		report.Add(Skipped(StageTransfer, "already transferred"))
		logger.Info().Str("transfer_id", prev.TransferID).Msg("payout already transferred, not re-issuing")
		return
	}

	dest, err := e.destination(ctx, rec.MechanicID)
	if err != nil {
		pr.Status = domain.PayoutStatusTransferFailed
		pr.Error = err.Error()
		report.Add(Degraded(StageTransfer, err))
		logger.Warn().Err(err).Msg("payee lookup failed")
		return
	}
	if !dest.Usable() {
		pr.Status = domain.PayoutStatusPendingConnection
		pr.Reason = dest.Reason
		report.Add(Skipped(StageTransfer, dest.Reason))
		logger.Info().Str("reason", dest.Reason).Msg("no payout destination")
		return
	}
	pr.PayeeType = string(dest.Kind)
	pr.PayeeID = dest.PayeeID
	pr.DestinationAccount = dest.AccountID

	tr, err := e.transfers.CreateTransfer(ctx, payment.TransferRequest{
		AmountCents:        pr.AmountCents,
		Currency:           e.currency,
		DestinationAccount: dest.AccountID,
		Description:        dest.Description,
		Metadata: map[string]string{
			"session_id":   rec.ID,
			"session_type": rec.Modality,
			"payee_type":   string(dest.Kind),
			"payee_id":     dest.PayeeID,
		},
		IdempotencyKey: payment.IdempotencyKeyFor(rec.ID),
	})
	if err != nil {
		pr.Status = domain.PayoutStatusTransferFailed
		pr.Error = err.Error()
		report.Add(Degraded(StageTransfer, err))
		logger.Warn().Err(err).Str("payee_type", pr.PayeeType).Msg("transfer failed")
		return
	}
	pr.Status = domain.PayoutStatusTransferred
	pr.TransferID = tr.ID
	report.Add(OK(StageTransfer))
	logger.Info().
		Str("transfer_id", tr.ID).
		Str("payee_type", pr.PayeeType).
		Int64("amount_cents", pr.AmountCents).
		Msg("payout transferred")
}

func (e *SettlementExecutor) record(ctx context.Context, logger zerolog.Logger, rec *repository.SessionRecord, res *Resolution, pr *PayoutRecord, report *Report) {
	if res.FinalStatus != domain.SessionStatusCompleted || pr.PriceCents == 0 {
		pr.LedgerStatus = domain.LedgerStatusSkipped
		report.Add(Skipped(StageLedger, "nothing billable"))
		return
	}
	if prev := payoutFromMetadata(rec.Metadata); prev != nil && prev.LedgerStatus == domain.LedgerStatusRecorded {
		pr.LedgerStatus = domain.LedgerStatusRecorded
		report.Add(Skipped(StageLedger, "already recorded"))
		return
	}
	if e.ledger == nil {
		pr.LedgerStatus = domain.LedgerStatusSkipped
		report.Add(Skipped(StageLedger, "ledger not configured"))
		return
	}
	if err := e.ledger.RecordSessionEarnings(ctx, rec.ID, paymentReference(rec.Metadata), pr.PriceCents); err != nil {
		pr.LedgerStatus = domain.LedgerStatusFailed
		pr.LedgerError = err.Error()
		report.Add(Degraded(StageLedger, err))
		logger.Warn().Err(err).Msg("recording earnings failed")
		return
	}
	pr.LedgerStatus = domain.LedgerStatusRecorded
	report.Add(OK(StageLedger))
}

// ineligibility returns why no transfer should be attempted, or "".
func ineligibility(rec *repository.SessionRecord, res *Resolution, pr *PayoutRecord) string {
	switch {
	case res.FinalStatus != domain.SessionStatusCompleted:
		return "session " + res.FinalStatus
	case !res.Started:
		return "session never started"
	case !rec.HasMechanic():
		return "no mechanic assigned"
	case pr.AmountCents == 0:
		return "zero earnings for plan " + rec.Plan
	}
	return ""
}

// destination loads the payee records for mechanicID and routes them.
func (e *SettlementExecutor) destination(ctx context.Context, mechanicID string) (payout.Destination, error) {
	if e.mechanics == nil {
		return payout.Destination{}, errors.New("mechanic lookup not configured")
	}
	m, err := e.mechanics.GetWithWorkshop(ctx, mechanicID)
	if err != nil {
		return payout.Destination{}, fmt.Errorf("load mechanic: %w", err)
	}
	if m != nil {
		return payout.Route(mechanicAccount(m), nil), nil
	}
	p, err := e.mechanics.GetLegacyProfile(ctx, mechanicID)
	if err != nil {
		return payout.Destination{}, fmt.Errorf("load legacy profile: %w", err)
	}
	return payout.Route(nil, legacyAccount(p)), nil
}

func mechanicAccount(m *models.Mechanic) *payout.MechanicAccount {
	acct := &payout.MechanicAccount{
		ID:             m.ID,
		Name:           m.Name,
		AccountID:      m.StripeAccountID,
		PayoutsEnabled: m.StripePayoutsEnabled,
	}
	if m.Workshop != nil {
		acct.Workshop = &payout.WorkshopAccount{
			ID:             m.Workshop.ID,
			Name:           m.Workshop.Name,
			AccountID:      m.Workshop.StripeAccountID,
			BillingEnabled: m.Workshop.BillingEnabled,
		}
	}
	return acct
}

func legacyAccount(p *models.LegacyProfile) *payout.LegacyAccount {
	if p == nil {
		return nil
	}
	return &payout.LegacyAccount{
		ProfileID:      p.ID,
		Name:           p.FullName,
		AccountID:      p.StripeAccountID,
		PayoutsEnabled: p.StripePayoutsEnabled,
	}
}
