package payout

import "fmt"

// PayeeKind tags which account shape a destination resolved to.
type PayeeKind string

const (
	PayeeWorkshop PayeeKind = "workshop"
	PayeeMechanic PayeeKind = "mechanic"
	PayeeLegacy   PayeeKind = "legacy"
	PayeeNone     PayeeKind = "none"
)

const (
	ReasonAwaitingOnboarding = "awaiting payout onboarding"
	ReasonWorkshopNotEnabled = "workshop payouts not enabled and mechanic awaiting payout onboarding"
	ReasonMechanicNotFound   = "mechanic record not found"
)

// WorkshopAccount is the pooled payout account of a workshop.
type WorkshopAccount struct {
	ID             string
	Name           string
	AccountID      string
	BillingEnabled bool
}

// MechanicAccount is the payout-relevant view of a mechanic record.
type MechanicAccount struct {
	ID             string
	Name           string
	AccountID      string
	PayoutsEnabled bool
	Workshop       *WorkshopAccount
}

// LegacyAccount is the payout view of an older profile-based mechanic.
type LegacyAccount struct {
	ProfileID      string
	Name           string
	AccountID      string
	PayoutsEnabled bool
}

// Destination is the routing decision. AccountID is empty for PayeeNone, in
// which case Reason says why.
type Destination struct {
	Kind        PayeeKind
	PayeeID     string
	AccountID   string
	Description string
	Reason      string
}

func (d Destination) Usable() bool {
	return d.Kind != PayeeNone && d.AccountID != ""
}

// Route picks the payee for a session. The first matching rule wins:
// enabled workshop, individually enabled mechanic, enabled legacy profile.
// Callers pass legacy only when no mechanic record exists.
func Route(m *MechanicAccount, legacy *LegacyAccount) Destination {
	if m != nil {
		if w := m.Workshop; w != nil && w.BillingEnabled && w.AccountID != "" {
			return Destination{
				Kind:        PayeeWorkshop,
				PayeeID:     w.ID,
				AccountID:   w.AccountID,
				Description: fmt.Sprintf("workshop %s (mechanic %s)", displayName(w.Name, w.ID), m.ID),
			}
		}
		if m.PayoutsEnabled && m.AccountID != "" {
			return Destination{
				Kind:        PayeeMechanic,
				PayeeID:     m.ID,
				AccountID:   m.AccountID,
				Description: "mechanic " + displayName(m.Name, m.ID),
			}
		}
	}
	if legacy != nil && legacy.PayoutsEnabled && legacy.AccountID != "" {
		return Destination{
			Kind:        PayeeLegacy,
			PayeeID:     legacy.ProfileID,
			AccountID:   legacy.AccountID,
			Description: "mechanic profile " + displayName(legacy.Name, legacy.ProfileID),
		}
	}
	return Destination{Kind: PayeeNone, Reason: noneReason(m, legacy)}
}

func noneReason(m *MechanicAccount, legacy *LegacyAccount) string {
	switch {
	case m != nil && m.Workshop != nil:
		return ReasonWorkshopNotEnabled
	case m == nil && legacy == nil:
		return ReasonMechanicNotFound
	default:
		return ReasonAwaitingOnboarding
	}
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
