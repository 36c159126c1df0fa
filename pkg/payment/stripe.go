package payment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	applog "garagelink/internal/log"
)

// StripeTransferer creates Connect transfers to mechanic or workshop accounts.
type StripeTransferer struct {
	api    *client.API
	logger zerolog.Logger
}

func NewStripeTransferer(secretKey string) *StripeTransferer {
	return &StripeTransferer{
		api:    client.New(secretKey, nil),
		logger: applog.WithComponent("stripe"),
	}
}

func (s *StripeTransferer) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.DestinationAccount),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	tr, err := s.api.Transfers.New(params)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("destination", req.DestinationAccount).
			Int64("amount_cents", req.AmountCents).
			Msg("transfer failed")
		return nil, fmt.Errorf("stripe transfer: %w", err)
	}
	s.logger.Info().
		Str("transfer_id", tr.ID).
		Str("destination", req.DestinationAccount).
		Int64("amount_cents", tr.Amount).
		Msg("transfer created")

	dest := req.DestinationAccount
	if tr.Destination != nil && tr.Destination.ID != "" {
		dest = tr.Destination.ID
	}
	return &Transfer{ID: tr.ID, AmountCents: tr.Amount, Destination: dest}, nil
}
