package models

import "time"

// SessionRequest is the pre-session match between a customer and a mechanic.
// SessionID is nil for requests created through the older matching path.
type SessionRequest struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	CustomerID  string     `gorm:"size:36;not null;index:idx_request_pair" json:"customer_id"`
	MechanicID  *string    `gorm:"size:36;index:idx_request_pair" json:"mechanic_id"`
	SessionID   *string    `gorm:"size:36;index" json:"session_id"`
	SessionType string     `gorm:"size:20" json:"session_type"`
	PlanCode    string     `gorm:"size:50" json:"plan_code"`
	Status      string     `gorm:"size:20;not null;index" json:"status"` // pending, accepted, completed, cancelled
	AcceptedAt  *time.Time `json:"accepted_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (SessionRequest) TableName() string {
	return "session_requests"
}
