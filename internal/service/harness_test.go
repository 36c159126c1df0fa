package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"garagelink/internal/domain"
	"garagelink/internal/events"
	"garagelink/internal/models"
	"garagelink/internal/repository"
	"garagelink/internal/testutil"
	"garagelink/pkg/payment"
	"garagelink/pkg/payout"
	"garagelink/pkg/procedure"
)

type fakeSemantics struct {
	mu     sync.Mutex
	calls  int
	result func(sessionID string) (*procedure.SemanticResult, error)
}

func (f *fakeSemantics) EndSessionSemantic(_ context.Context, sessionID, _, _ string) (*procedure.SemanticResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result(sessionID)
}

func (f *fakeSemantics) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func completedAfter(seconds int64) func(string) (*procedure.SemanticResult, error) {
	return func(string) (*procedure.SemanticResult, error) {
		return &procedure.SemanticResult{
			FinalStatus:     domain.SessionStatusCompleted,
			Started:         true,
			DurationSeconds: &seconds,
			Message:         "session billed",
		}, nil
	}
}

func neverStarted(string) (*procedure.SemanticResult, error) {
	return &procedure.SemanticResult{
		FinalStatus: domain.SessionStatusCancelled,
		Message:     "session never started",
	}, nil
}

type ledgerCall struct {
	SessionID  string
	PaymentRef string
	Amount     int64
}

type fakeLedger struct {
	mu    sync.Mutex
	err   error
	calls []ledgerCall
}

func (f *fakeLedger) RecordSessionEarnings(_ context.Context, sessionID, paymentRef string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ledgerCall{sessionID, paymentRef, amount})
	return f.err
}

func (f *fakeLedger) Calls() []ledgerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledgerCall(nil), f.calls...)
}

type published struct {
	Channel string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	err  error
	msgs []published
}

func (r *recordingPublisher) Publish(_ context.Context, channel, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{channel, event, payload})
	return r.err
}

func (r *recordingPublisher) Messages() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.msgs...)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	evts []events.SessionEnded
}

func (r *recordingDispatcher) SessionEnded(_ context.Context, evt events.SessionEnded) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, evt)
	return nil
}

func (r *recordingDispatcher) Events() []events.SessionEnded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.SessionEnded(nil), r.evts...)
}

type recordingPusher struct {
	mu     sync.Mutex
	tokens []string
}

func (r *recordingPusher) SendToUser(_ context.Context, token, _, _, _ string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	return nil
}

type harness struct {
	db         *gorm.DB
	store      *repository.SessionStore
	svc        *SessionEndService
	semantics  *fakeSemantics
	transfers  *payment.StubTransferer
	ledger     *fakeLedger
	publisher  *recordingPublisher
	dispatcher *recordingDispatcher
	pusher     *recordingPusher
}

var testPrices = payout.PriceTable{
	"free":       0,
	"quick":      999,
	"standard":   2999,
	"diagnostic": 3999,
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, repository.NewSessionStore)
}

// newHarnessWithStore lets a test wrap the session sources.
func newHarnessWithStore(t *testing.T, newStore func(*gorm.DB) *repository.SessionStore) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{
		db:         db,
		store:      newStore(db),
		semantics:  &fakeSemantics{result: completedAfter(2400)},
		transfers:  &payment.StubTransferer{},
		ledger:     &fakeLedger{},
		publisher:  &recordingPublisher{},
		dispatcher: &recordingDispatcher{},
		pusher:     &recordingPusher{},
	}
	notifications := NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewUserRepository(db),
		h.pusher,
	)
	h.svc = NewSessionEndService(
		h.store,
		NewStatusResolver(repository.NewAssignmentRepository(db), h.semantics),
		NewSettlementExecutor(
			payout.NewCalculator(testPrices, 0.70),
			repository.NewMechanicRepository(db),
			h.transfers,
			h.ledger,
			"usd",
		),
		NewReconciliationMatcher(repository.NewRequestRepository(db)),
		NewFanout(notifications, h.publisher),
		h.dispatcher,
	)
	t.Cleanup(h.svc.Wait)
	return h
}

func (h *harness) create(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, h.db.Create(v).Error)
}

// liveSession seeds a session that started minutesAgo and is still live.
func (h *harness) liveSession(t *testing.T, id, modality, plan, customerID, mechanicID string, minutesAgo int) {
	t.Helper()
	started := time.Now().UTC().Add(-time.Duration(minutesAgo) * time.Minute)
	s := &models.Session{
		ID:             id,
		Type:           modality,
		Plan:           plan,
		Status:         domain.SessionStatusLive,
		StartedAt:      &started,
		CustomerUserID: customerID,
		Metadata:       datatypes.JSONMap{domain.MetaPaymentIntentID: "pi_" + id},
	}
	if mechanicID != "" {
		s.MechanicID = testutil.StrPtr(mechanicID)
	}
	h.create(t, s)
}

// independentMechanic seeds a payout-enabled mechanic whose user id is userID.
func (h *harness) independentMechanic(t *testing.T, userID string) {
	t.Helper()
	h.create(t, &models.User{ID: userID, Role: domain.RoleMechanic, FCMToken: "tok-" + userID})
	h.create(t, &models.Mechanic{
		ID:                   "mech-" + userID,
		UserID:               userID,
		Name:                 "Dana Wrench",
		StripeAccountID:      "acct_" + userID,
		StripePayoutsEnabled: true,
	})
}

func (h *harness) session(t *testing.T, id string) *repository.SessionRecord {
	t.Helper()
	_, rec, err := h.store.Locate(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *harness) request(t *testing.T, id string) models.SessionRequest {
	t.Helper()
	var r models.SessionRequest
	require.NoError(t, h.db.Where("id = ?", id).First(&r).Error)
	return r
}
