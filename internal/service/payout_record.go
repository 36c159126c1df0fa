package service

import (
	"encoding/json"
	"time"

	"garagelink/internal/domain"
)

// PayoutRecord is the payout fragment stored under the session's payout
// metadata key.
type PayoutRecord struct {
	AmountCents        int64     `json:"amount_cents"`
	PriceCents         int64     `json:"price_cents"`
	SharePercent       float64   `json:"share_percent"`
	Status             string    `json:"status"`
	PayeeType          string    `json:"payee_type,omitempty"`
	PayeeID            string    `json:"payee_id,omitempty"`
	DestinationAccount string    `json:"destination_account,omitempty"`
	TransferID         string    `json:"transfer_id,omitempty"`
	Error              string    `json:"error,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	LedgerStatus       string    `json:"ledger_status"`
	LedgerError        string    `json:"ledger_error,omitempty"`
	SettledAt          time.Time `json:"settled_at"`
}

// Transferred reports whether money has already moved for this payout.
func (p *PayoutRecord) Transferred() bool {
	return p != nil && (p.Status == domain.PayoutStatusTransferred || p.TransferID != "")
}

func (p *PayoutRecord) Metadata() map[string]any {
	m := map[string]any{
		"amount_cents":  p.AmountCents,
		"price_cents":   p.PriceCents,
		"share_percent": p.SharePercent,
		"status":        p.Status,
		"ledger_status": p.LedgerStatus,
		"settled_at":    p.SettledAt.UTC().Format(time.RFC3339),
	}
	optional := map[string]string{
		"payee_type":          p.PayeeType,
		"payee_id":            p.PayeeID,
		"destination_account": p.DestinationAccount,
		"transfer_id":         p.TransferID,
		"error":               p.Error,
		"reason":              p.Reason,
		"ledger_error":        p.LedgerError,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	return m
}

// payoutFromMetadata reads back a stored payout fragment. Numbers arrive as
// json.Number from the JSON column, or as Go numbers before a round trip.
func payoutFromMetadata(md map[string]any) *PayoutRecord {
	raw, ok := md[domain.MetaPayout].(map[string]any)
	if !ok {
		return nil
	}
	p := &PayoutRecord{
		AmountCents:        int64Of(raw["amount_cents"]),
		PriceCents:         int64Of(raw["price_cents"]),
		SharePercent:       float64Of(raw["share_percent"]),
		Status:             stringOf(raw["status"]),
		PayeeType:          stringOf(raw["payee_type"]),
		PayeeID:            stringOf(raw["payee_id"]),
		DestinationAccount: stringOf(raw["destination_account"]),
		TransferID:         stringOf(raw["transfer_id"]),
		Error:              stringOf(raw["error"]),
		Reason:             stringOf(raw["reason"]),
		LedgerStatus:       stringOf(raw["ledger_status"]),
		LedgerError:        stringOf(raw["ledger_error"]),
	}
	if ts, err := time.Parse(time.RFC3339, stringOf(raw["settled_at"])); err == nil {
		p.SettledAt = ts
	}
	return p
}

// paymentReference returns the customer's payment intent for the session.
func paymentReference(md map[string]any) string {
	if ref := stringOf(md[domain.MetaPaymentIntentID]); ref != "" {
		return ref
	}
	return stringOf(md[domain.MetaStripePaymentIntentID])
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func int64Of(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return int64(f)
	}
	return 0
}

func float64Of(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}
