package service

import "sync"

// Finalization stages, in pipeline order.
const (
	StageAssignments = "assignments"
	StageOutcome     = "outcome"
	StageTransfer    = "transfer"
	StageLedger      = "ledger"
	StageReconcile   = "reconcile"
	StageNotify      = "notify"
	StageBroadcast   = "broadcast"
	StageMetadata    = "metadata"
	StageDispatch    = "dispatch"
)

type OutcomeStatus string

const (
	OutcomeOK       OutcomeStatus = "ok"
	OutcomeDegraded OutcomeStatus = "degraded"
	OutcomeSkipped  OutcomeStatus = "skipped"
)

// Outcome is the result of one best-effort stage.
type Outcome struct {
	Stage  string        `json:"stage"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

func OK(stage string) Outcome {
	return Outcome{Stage: stage, Status: OutcomeOK}
}

func Degraded(stage string, err error) Outcome {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Stage: stage, Status: OutcomeDegraded, Reason: reason}
}

func Skipped(stage, reason string) Outcome {
	return Outcome{Stage: stage, Status: OutcomeSkipped, Reason: reason}
}

// Report accumulates stage outcomes for one finalization run.
type Report struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *Report) Add(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *Report) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Degraded returns only the failed stages.
func (r *Report) Degraded() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Outcome{}
	for _, o := range r.outcomes {
		if o.Status == OutcomeDegraded {
			out = append(out, o)
		}
	}
	return out
}

// Metadata renders the report for the session's finalization metadata.
func (r *Report) Metadata() map[string]any {
	stages := make(map[string]any)
	for _, o := range r.Outcomes() {
		entry := map[string]any{"status": string(o.Status)}
		if o.Reason != "" {
			entry["reason"] = o.Reason
		}
		stages[o.Stage] = entry
	}
	return map[string]any{
		"stages":   stages,
		"degraded": len(r.Degraded()) > 0,
	}
}
