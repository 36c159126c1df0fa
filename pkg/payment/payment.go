package payment

import (
	"context"
	"errors"
)

// ErrNoDestination is returned when a transfer is requested without a
// connected account to receive it.
var ErrNoDestination = errors.New("payment: destination account required")

// TransferRequest moves AmountCents from the platform balance to a connected
// account. IdempotencyKey makes retries of the same payout collapse into one
// transfer at the processor.
type TransferRequest struct {
	AmountCents        int64
	Currency           string
	DestinationAccount string
	Description        string
	Metadata           map[string]string
	IdempotencyKey     string
}

type Transfer struct {
	ID          string
	AmountCents int64
	Destination string
}

type Transferer interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

// IdempotencyKeyFor is the processor idempotency key used for a session payout.
func IdempotencyKeyFor(sessionID string) string {
	return "session-payout-" + sessionID
}

func validate(req TransferRequest) error {
	if req.DestinationAccount == "" {
		return ErrNoDestination
	}
	if req.AmountCents <= 0 {
		return errors.New("payment: transfer amount must be positive")
	}
	return nil
}
