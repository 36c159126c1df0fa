package domain

const (
	RoleCustomer = "customer"
	RoleMechanic = "mechanic"
	RoleAdmin    = "admin"
	// RoleSystem is the actor role used by the auto-end sweep.
	RoleSystem = "system"
)

const (
	ModalityChat       = "chat"
	ModalityVideo      = "video"
	ModalityDiagnostic = "diagnostic"
)

// Session statuses. Waiting and live are the only endable states.
const (
	SessionStatusPending   = "pending"
	SessionStatusScheduled = "scheduled"
	SessionStatusWaiting   = "waiting"
	SessionStatusLive      = "live"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// EndableSessionStatuses guard the end transition.
var EndableSessionStatuses = []string{SessionStatusWaiting, SessionStatusLive}

func IsTerminalSessionStatus(s string) bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

const (
	AssignmentStatusQueued    = "queued"
	AssignmentStatusOffered   = "offered"
	AssignmentStatusAccepted  = "accepted"
	AssignmentStatusCompleted = "completed"
	AssignmentStatusCancelled = "cancelled"
	AssignmentStatusExpired   = "expired"
)

var OpenAssignmentStatuses = []string{AssignmentStatusQueued, AssignmentStatusOffered, AssignmentStatusAccepted}

const (
	RequestStatusPending   = "pending"
	RequestStatusAccepted  = "accepted"
	RequestStatusCompleted = "completed"
	RequestStatusCancelled = "cancelled"
)

var ActiveRequestStatuses = []string{RequestStatusPending, RequestStatusAccepted}

const (
	PayoutStatusTransferred       = "transferred"
	PayoutStatusPendingConnection = "pending_connection"
	PayoutStatusTransferFailed    = "transfer_failed"
	PayoutStatusNoPayout          = "no_payout"
)

const (
	LedgerStatusRecorded = "recorded"
	LedgerStatusFailed   = "failed"
	LedgerStatusSkipped  = "skipped"
)

const (
	NotificationSessionCompleted = "session_completed"
	NotificationSessionCancelled = "session_cancelled"
)

const (
	ReasonUserEnded       = "user_ended"
	ReasonAutoEndedMaxDur = "auto_ended_max_duration"
)

// Session metadata keys written during finalization.
const (
	MetaPayout                = "payout"
	MetaFinalization          = "finalization"
	MetaPaymentIntentID       = "payment_intent_id"
	MetaStripePaymentIntentID = "stripe_payment_intent_id"
)
