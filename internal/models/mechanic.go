package models

import "time"

type Mechanic struct {
	ID                   string    `gorm:"primaryKey;size:36" json:"id"`
	UserID               string    `gorm:"size:36;index" json:"user_id"`
	Name                 string    `gorm:"size:255" json:"name"`
	WorkshopID           *string   `gorm:"size:36;index" json:"workshop_id"`
	StripeAccountID      string    `gorm:"size:64" json:"-"`
	StripePayoutsEnabled bool      `gorm:"default:false" json:"stripe_payouts_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`

	Workshop *Workshop `gorm:"foreignKey:WorkshopID" json:"workshop,omitempty"`
}

func (Mechanic) TableName() string {
	return "mechanics"
}

// Workshop pools payouts for its affiliated mechanics.
type Workshop struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	Name            string    `gorm:"size:255" json:"name"`
	StripeAccountID string    `gorm:"size:64" json:"-"`
	BillingEnabled  bool      `gorm:"default:false" json:"billing_enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Workshop) TableName() string {
	return "workshops"
}

// LegacyProfile is the pre-mechanics-table identity source. Some mechanics
// still only exist here.
type LegacyProfile struct {
	ID                   string    `gorm:"primaryKey;size:36" json:"id"`
	FullName             string    `gorm:"size:255" json:"full_name"`
	StripeAccountID      string    `gorm:"size:64" json:"-"`
	StripePayoutsEnabled bool      `gorm:"default:false" json:"stripe_payouts_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (LegacyProfile) TableName() string {
	return "profiles"
}
