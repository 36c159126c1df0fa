package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"garagelink/internal/domain"
	"garagelink/internal/models"
	"garagelink/internal/repository"
	"garagelink/internal/testutil"
	"garagelink/pkg/payout"
	"garagelink/pkg/procedure"
)

func payoutMeta(t *testing.T, rec *repository.SessionRecord) map[string]any {
	t.Helper()
	p, ok := rec.Metadata[domain.MetaPayout].(map[string]any)
	require.True(t, ok, "payout metadata missing: %v", rec.Metadata)
	return p
}

func TestEnd_CompletedSessionPaysIndependentMechanic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, &models.User{ID: "cust-1", Role: domain.RoleCustomer, FCMToken: "tok-cust-1"})
	h.independentMechanic(t, "mech-user-1")
	h.liveSession(t, "s-a", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 40)
	h.create(t, &models.SessionRequest{
		ID: "req-a", CustomerID: "cust-1", MechanicID: testutil.StrPtr("mech-user-1"),
		SessionID: testutil.StrPtr("s-a"), Status: domain.RequestStatusAccepted,
	})
	h.create(t, &models.SessionAssignment{ID: "as-1", SessionID: "s-a", Status: domain.AssignmentStatusAccepted})

	res, err := h.svc.End(ctx, EndRequest{SessionID: "s-a", ActorID: "cust-1"})
	require.NoError(t, err)
	h.svc.Wait()

	assert.Equal(t, domain.SessionStatusCompleted, res.FinalStatus)
	assert.Equal(t, int64(2400), res.DurationSeconds)
	assert.True(t, res.Started)
	assert.False(t, res.AlreadyEnded)
	assert.Empty(t, res.Degraded)
	require.NotNil(t, res.Payout)
	assert.Equal(t, int64(2099), res.Payout.AmountCents)
	assert.Equal(t, domain.PayoutStatusTransferred, res.Payout.Status)
	assert.Equal(t, string(payout.PayeeMechanic), res.Payout.PayeeType)

	reqs := h.transfers.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(2099), reqs[0].AmountCents)
	assert.Equal(t, "acct_mech-user-1", reqs[0].DestinationAccount)
	assert.Equal(t, "session-payout-s-a", reqs[0].IdempotencyKey)

	assert.Equal(t, []ledgerCall{{SessionID: "s-a", PaymentRef: "pi_s-a", Amount: 2999}}, h.ledger.Calls())

	rec := h.session(t, "s-a")
	assert.Equal(t, domain.SessionStatusCompleted, rec.Status)
	assert.NotNil(t, rec.EndedAt)
	assert.Equal(t, int64(2400), rec.DurationSeconds)
	p := payoutMeta(t, rec)
	assert.Equal(t, domain.PayoutStatusTransferred, p["status"])
	assert.Equal(t, domain.LedgerStatusRecorded, p["ledger_status"])
	stored := payoutFromMetadata(rec.Metadata)
	require.NotNil(t, stored)
	assert.Equal(t, int64(2099), stored.AmountCents)
	assert.Equal(t, int64(2999), stored.PriceCents)
	assert.Equal(t, 70.0, stored.SharePercent)
	fin := rec.Metadata[domain.MetaFinalization].(map[string]any)
	assert.Equal(t, false, fin["degraded"])
	assert.Equal(t, domain.RoleCustomer, fin["ended_by"])

	assert.Equal(t, domain.RequestStatusCompleted, h.request(t, "req-a").Status)

	var as models.SessionAssignment
	require.NoError(t, h.db.First(&as, "id = ?", "as-1").Error)
	assert.Equal(t, domain.AssignmentStatusCompleted, as.Status)
	assert.Equal(t, domain.ReasonUserEnded, as.EndedReason)

	var notes []models.Notification
	require.NoError(t, h.db.Order("user_id").Find(&notes).Error)
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, domain.NotificationSessionCompleted, n.Type)
		assert.Equal(t, "s-a", n.Payload["session_id"])
	}
	assert.ElementsMatch(t, []string{"tok-cust-1", "tok-mech-user-1"}, h.pusher.tokens)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "session:s-a", msgs[0].Channel)
	assert.Equal(t, "session:ended", msgs[0].Event)
	assert.Equal(t, "active-sessions", msgs[1].Channel)
	assert.Equal(t, "session_ended", msgs[1].Event)

	evts := h.dispatcher.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, "s-a", evts[0].SessionID)
	assert.Equal(t, domain.SessionStatusCompleted, evts[0].FinalStatus)
}

func TestEnd_NeverStartedSessionIsCancelled(t *testing.T) {
	h := newHarness(t)
	h.semantics.result = neverStarted
	h.independentMechanic(t, "mech-user-1")
	h.create(t, &models.Session{
		ID: "s-b", Type: domain.ModalityChat, Plan: "standard", Status: domain.SessionStatusWaiting,
		CustomerUserID: "cust-1", MechanicID: testutil.StrPtr("mech-user-1"),
	})
	h.create(t, &models.SessionRequest{
		ID: "req-b", CustomerID: "cust-1", MechanicID: testutil.StrPtr("mech-user-1"),
		SessionID: testutil.StrPtr("s-b"), Status: domain.RequestStatusAccepted,
	})

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-b", ActorID: "mech-user-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionStatusCancelled, res.FinalStatus)
	assert.False(t, res.Started)
	assert.Zero(t, res.DurationSeconds)
	assert.Nil(t, res.Payout)
	assert.Zero(t, h.transfers.Calls())
	assert.Empty(t, h.ledger.Calls())

	rec := h.session(t, "s-b")
	assert.Equal(t, domain.SessionStatusCancelled, rec.Status)
	assert.NotNil(t, rec.EndedAt)
	assert.Equal(t, domain.PayoutStatusNoPayout, payoutMeta(t, rec)["status"])
	assert.Equal(t, domain.LedgerStatusSkipped, payoutMeta(t, rec)["ledger_status"])
	assert.Equal(t, domain.RequestStatusCancelled, h.request(t, "req-b").Status)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "session-s-b", msgs[0].Channel, "chat sessions use the dashed channel name")

	var n models.Notification
	require.NoError(t, h.db.First(&n, "user_id = ?", "cust-1").Error)
	assert.Equal(t, domain.NotificationSessionCancelled, n.Type)
}

func TestEnd_UnenabledWorkshopLeavesPayoutPending(t *testing.T) {
	h := newHarness(t)
	h.create(t, &models.Workshop{ID: "w-1", Name: "Eastside Garage", StripeAccountID: "acct_w1", BillingEnabled: false})
	h.create(t, &models.Mechanic{ID: "mech-2", UserID: "mech-user-2", WorkshopID: testutil.StrPtr("w-1")})
	h.liveSession(t, "s-c", domain.ModalityVideo, "standard", "cust-1", "mech-user-2", 30)

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-c", ActorID: "cust-1"})
	require.NoError(t, err)

	require.NotNil(t, res.Payout)
	assert.Equal(t, domain.PayoutStatusPendingConnection, res.Payout.Status)
	assert.Equal(t, payout.ReasonWorkshopNotEnabled, res.Payout.Reason)
	assert.Zero(t, h.transfers.Calls())
	assert.Len(t, h.ledger.Calls(), 1, "ledger still records a completed session")
	assert.Empty(t, res.Degraded, "pending connection is not a failure")
}

func TestEnd_EnabledWorkshopReceivesPayout(t *testing.T) {
	h := newHarness(t)
	h.create(t, &models.Workshop{ID: "w-1", Name: "Eastside Garage", StripeAccountID: "acct_w1", BillingEnabled: true})
	h.create(t, &models.Mechanic{
		ID: "mech-3", UserID: "mech-user-3", WorkshopID: testutil.StrPtr("w-1"),
		StripeAccountID: "acct_m3", StripePayoutsEnabled: true,
	})
	h.liveSession(t, "s-w", domain.ModalityVideo, "quick", "cust-1", "mech-user-3", 30)

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-w", ActorID: "cust-1"})
	require.NoError(t, err)

	require.NotNil(t, res.Payout)
	assert.Equal(t, string(payout.PayeeWorkshop), res.Payout.PayeeType)
	assert.Equal(t, "w-1", res.Payout.PayeeID)
	assert.Equal(t, int64(699), res.Payout.AmountCents)
	require.Len(t, h.transfers.Requests(), 1)
	assert.Equal(t, "acct_w1", h.transfers.Requests()[0].DestinationAccount)
}

func TestEnd_LegacyProfilePayee(t *testing.T) {
	h := newHarness(t)
	h.create(t, &models.LegacyProfile{ID: "legacy-1", FullName: "Old Timer", StripeAccountID: "acct_old", StripePayoutsEnabled: true})
	h.liveSession(t, "s-l", domain.ModalityVideo, "standard", "cust-1", "legacy-1", 30)

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-l", ActorID: "legacy-1"})
	require.NoError(t, err)

	assert.Equal(t, string(payout.PayeeLegacy), res.Payout.PayeeType)
	assert.Equal(t, domain.PayoutStatusTransferred, res.Payout.Status)
}

func TestEnd_ConcurrentCallsSettleOnce(t *testing.T) {
	h := newHarness(t)
	h.independentMechanic(t, "mech-user-1")
	h.liveSession(t, "s-d", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 40)

	results := make([]*EndResult, 2)
	var g errgroup.Group
	for i, actor := range []string{"cust-1", "mech-user-1"} {
		g.Go(func() error {
			res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-d", ActorID: actor})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())
	h.svc.Wait()

	fresh := 0
	for _, r := range results {
		if !r.AlreadyEnded {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly one caller runs the pipeline")
	assert.Equal(t, 1, h.transfers.Calls())
	assert.Equal(t, 1, h.semantics.Calls())
	assert.Len(t, h.ledger.Calls(), 1)
	assert.Len(t, h.dispatcher.Events(), 1)

	var count int64
	require.NoError(t, h.db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "one notification per participant, not per caller")
}

func TestEnd_TransferFailureStillRecordsLedger(t *testing.T) {
	h := newHarness(t)
	h.transfers.Err = errors.New("account disabled")
	h.independentMechanic(t, "mech-user-1")
	h.liveSession(t, "s-f", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 40)

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-f", ActorID: "cust-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionStatusCompleted, res.FinalStatus)
	assert.Equal(t, domain.PayoutStatusTransferFailed, res.Payout.Status)
	assert.Contains(t, res.Payout.Error, "account disabled")
	assert.Len(t, h.ledger.Calls(), 1)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, StageTransfer, res.Degraded[0].Stage)

	p := payoutMeta(t, h.session(t, "s-f"))
	assert.Equal(t, domain.PayoutStatusTransferFailed, p["status"])
	assert.Equal(t, domain.LedgerStatusRecorded, p["ledger_status"])
}

func TestEnd_LedgerFailureKeepsTransfer(t *testing.T) {
	h := newHarness(t)
	h.ledger.err = &procedure.CallError{Procedure: "record_session_earnings", StatusCode: 500, Body: "boom"}
	h.independentMechanic(t, "mech-user-1")
	h.liveSession(t, "s-g", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 40)

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-g", ActorID: "cust-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.PayoutStatusTransferred, res.Payout.Status)
	assert.Equal(t, domain.LedgerStatusFailed, res.Payout.LedgerStatus)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, StageLedger, res.Degraded[0].Stage)

	rec := h.session(t, "s-g")
	assert.Equal(t, domain.SessionStatusCompleted, rec.Status)
	p := payoutMeta(t, rec)
	assert.Equal(t, domain.PayoutStatusTransferred, p["status"])
	assert.Contains(t, p["ledger_error"], "boom")
}

func TestEnd_DoesNotRetransferWhenMetadataSaysTransferred(t *testing.T) {
	h := newHarness(t)
	h.independentMechanic(t, "mech-user-1")
	started := time.Now().UTC().Add(-time.Hour)
	h.create(t, &models.Session{
		ID: "s-r", Type: domain.ModalityVideo, Plan: "standard", Status: domain.SessionStatusLive,
		StartedAt: &started, CustomerUserID: "cust-1", MechanicID: testutil.StrPtr("mech-user-1"),
		Metadata: datatypes.JSONMap{domain.MetaPayout: map[string]any{
			"status": domain.PayoutStatusTransferred, "transfer_id": "tr_earlier", "payee_type": "mechanic",
		}},
	})

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-r", ActorID: "cust-1"})
	require.NoError(t, err)

	assert.Zero(t, h.transfers.Calls())
	assert.Equal(t, "tr_earlier", res.Payout.TransferID)
	assert.Equal(t, domain.PayoutStatusTransferred, res.Payout.Status)
}

func TestEnd_SemanticsFailureIsFatalAndReverts(t *testing.T) {
	h := newHarness(t)
	h.semantics.result = func(string) (*procedure.SemanticResult, error) {
		return nil, errors.New("rpc unavailable")
	}
	h.independentMechanic(t, "mech-user-1")
	h.liveSession(t, "s-x", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 40)
	h.create(t, &models.SessionAssignment{ID: "as-x", SessionID: "s-x", Status: domain.AssignmentStatusAccepted})

	_, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-x", ActorID: "cust-1"})
	require.ErrorIs(t, err, ErrSemanticsFailed)

	rec := h.session(t, "s-x")
	assert.Equal(t, domain.SessionStatusLive, rec.Status)
	assert.Nil(t, rec.EndedAt)
	assert.Zero(t, h.transfers.Calls())
	assert.Empty(t, h.publisher.Messages())

	var as models.SessionAssignment
	require.NoError(t, h.db.First(&as, "id = ?", "as-x").Error)
	assert.Equal(t, domain.AssignmentStatusAccepted, as.Status)
}

type failingOutcomeSource struct {
	repository.SessionSource
	err error
}

func (f failingOutcomeSource) SaveOutcome(context.Context, string, string, *int64) error {
	return f.err
}

func TestEnd_OutcomeWriteFailureIsFatalAndReverts(t *testing.T) {
	h := newHarnessWithStore(t, func(db *gorm.DB) *repository.SessionStore {
		return repository.NewSessionStoreWithSources(
			failingOutcomeSource{SessionSource: repository.NewPrimarySessionSource(db), err: errors.New("deadlock")},
			repository.NewDiagnosticSessionSource(db),
		)
	})
	h.semantics.result = neverStarted
	h.independentMechanic(t, "mech-user-1")
	h.liveSession(t, "s-o", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 5)
	h.create(t, &models.SessionAssignment{ID: "as-o", SessionID: "s-o", Status: domain.AssignmentStatusAccepted})

	_, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-o", ActorID: "cust-1"})
	require.ErrorIs(t, err, ErrTransitionFailed)

	rec := h.session(t, "s-o")
	assert.Equal(t, domain.SessionStatusLive, rec.Status, "no completed status left behind for a cancelled outcome")
	assert.Nil(t, rec.EndedAt)
	assert.Zero(t, h.transfers.Calls())
	assert.Empty(t, h.ledger.Calls())
	assert.Empty(t, h.publisher.Messages())

	var as models.SessionAssignment
	require.NoError(t, h.db.First(&as, "id = ?", "as-o").Error)
	assert.Equal(t, domain.AssignmentStatusAccepted, as.Status)

	// A retry goes through the pipeline again instead of short-circuiting.
	_, err = h.svc.End(context.Background(), EndRequest{SessionID: "s-o", ActorID: "cust-1"})
	require.ErrorIs(t, err, ErrTransitionFailed)
	assert.Equal(t, 2, h.semantics.Calls())
}

func TestEnd_UnknownFinalStatusIsFatal(t *testing.T) {
	h := newHarness(t)
	h.semantics.result = func(string) (*procedure.SemanticResult, error) {
		return &procedure.SemanticResult{FinalStatus: "paused"}, nil
	}
	h.liveSession(t, "s-u", domain.ModalityChat, "standard", "cust-1", "", 10)

	_, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-u", ActorID: "cust-1"})
	assert.ErrorIs(t, err, ErrSemanticsFailed)
}

func TestEnd_Rejections(t *testing.T) {
	h := newHarness(t)
	h.liveSession(t, "s-live", domain.ModalityVideo, "standard", "cust-1", "mech-user-1", 10)
	h.create(t, &models.Session{ID: "s-pending", Type: domain.ModalityVideo, Status: domain.SessionStatusScheduled, CustomerUserID: "cust-1"})

	tests := []struct {
		name    string
		req     EndRequest
		wantErr error
	}{
		{"unknown session", EndRequest{SessionID: "nope", ActorID: "cust-1"}, repository.ErrSessionNotFound},
		{"stranger", EndRequest{SessionID: "s-live", ActorID: "someone-else"}, ErrNotParticipant},
		{"anonymous", EndRequest{SessionID: "s-live"}, ErrNotParticipant},
		{"client cannot claim system role by id", EndRequest{SessionID: "s-live", ActorID: "x", ActorRole: domain.RoleAdmin}, ErrNotParticipant},
		{"not started yet", EndRequest{SessionID: "s-pending", ActorID: "cust-1"}, ErrNotEndable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.End(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, h.semantics.Calls())
}

func TestEnd_AlreadyTerminalShortCircuits(t *testing.T) {
	h := newHarness(t)
	ended := time.Now().UTC().Add(-time.Minute)
	dur := int64(1800)
	h.create(t, &models.Session{
		ID: "s-done", Type: domain.ModalityVideo, Plan: "standard", Status: domain.SessionStatusCompleted,
		StartedAt: &ended, EndedAt: &ended, DurationSeconds: &dur, CustomerUserID: "cust-1",
		Metadata: datatypes.JSONMap{domain.MetaPayout: map[string]any{
			"amount_cents": 2099, "status": domain.PayoutStatusTransferred, "transfer_id": "tr_1",
		}},
	})

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-done", ActorID: "cust-1"})
	require.NoError(t, err)

	assert.True(t, res.AlreadyEnded)
	assert.Equal(t, int64(1800), res.DurationSeconds)
	require.NotNil(t, res.Payout)
	assert.Equal(t, int64(2099), res.Payout.AmountCents)
	assert.Equal(t, "tr_1", res.Payout.TransferID)
	assert.Zero(t, h.semantics.Calls())
	assert.Empty(t, h.publisher.Messages())
}

func TestEnd_DiagnosticTableSession(t *testing.T) {
	h := newHarness(t)
	h.independentMechanic(t, "mech-user-1")
	began := time.Now().UTC().Add(-30 * time.Minute)
	h.create(t, &models.DiagnosticSession{
		ID: "d-1", PlanSlug: "diagnostic", State: domain.SessionStatusLive, BeganAt: &began,
		AssignedMechanicID: testutil.StrPtr("mech-user-1"), CustomerID: "cust-1",
		Meta: datatypes.JSONMap{domain.MetaStripePaymentIntentID: "pi_legacy"},
	})

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "d-1", ActorID: "cust-1"})
	require.NoError(t, err)

	assert.Equal(t, int64(2799), res.Payout.AmountCents)
	assert.Equal(t, []ledgerCall{{SessionID: "d-1", PaymentRef: "pi_legacy", Amount: 3999}}, h.ledger.Calls())

	var row models.DiagnosticSession
	require.NoError(t, h.db.First(&row, "id = ?", "d-1").Error)
	assert.Equal(t, domain.SessionStatusCompleted, row.State)
	require.NotNil(t, row.ElapsedSeconds)
	assert.Equal(t, int64(2400), *row.ElapsedSeconds)
	assert.Contains(t, row.Meta, domain.MetaPayout)
	assert.Equal(t, "session:d-1", h.publisher.Messages()[0].Channel)
}

func TestEnd_BroadcastFailureIsDegraded(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("redis down")
	h.liveSession(t, "s-p", domain.ModalityChat, "free", "cust-1", "", 10)

	res, err := h.svc.End(context.Background(), EndRequest{SessionID: "s-p", ActorID: "cust-1"})
	require.NoError(t, err)

	require.Len(t, res.Degraded, 1)
	assert.Equal(t, StageBroadcast, res.Degraded[0].Stage)
	assert.Len(t, h.publisher.Messages(), 2, "active-sessions is still attempted")
	fin := h.session(t, "s-p").Metadata[domain.MetaFinalization].(map[string]any)
	assert.Equal(t, true, fin["degraded"])
}
