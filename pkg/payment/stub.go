package payment

import (
	"context"
	"fmt"
	"sync"
)

// StubTransferer is an in-memory Transferer for development and tests. It
// honours idempotency keys the way the processor does: a repeated key returns
// the original transfer without creating a new one.
type StubTransferer struct {
	// Err, when set, fails every call.
	Err error

	mu       sync.Mutex
	seq      int
	byKey    map[string]*Transfer
	requests []TransferRequest
}

func (s *StubTransferer) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	if s.byKey == nil {
		s.byKey = make(map[string]*Transfer)
	}
	if req.IdempotencyKey != "" {
		if tr, ok := s.byKey[req.IdempotencyKey]; ok {
			return tr, nil
		}
	}
	s.seq++
	tr := &Transfer{
		ID:          fmt.Sprintf("tr_stub_%d", s.seq),
		AmountCents: req.AmountCents,
		Destination: req.DestinationAccount,
	}
	if req.IdempotencyKey != "" {
		s.byKey[req.IdempotencyKey] = tr
	}
	return tr, nil
}

// Calls reports how many transfer attempts were made.
func (s *StubTransferer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Created reports how many distinct transfers exist.
func (s *StubTransferer) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *StubTransferer) Requests() []TransferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransferRequest, len(s.requests))
	copy(out, s.requests)
	return out
}
