package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session is a chat or video session row in the primary sessions table.
type Session struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	Type            string            `gorm:"size:20;not null;index" json:"type"`
	Plan            string            `gorm:"size:50" json:"plan"`
	Status          string            `gorm:"size:20;not null;index" json:"status"`
	StartedAt       *time.Time        `json:"started_at"`
	EndedAt         *time.Time        `json:"ended_at"`
	DurationSeconds *int64            `json:"duration_seconds"`
	MechanicID      *string           `gorm:"size:36;index" json:"mechanic_id"`
	CustomerUserID  string            `gorm:"size:36;not null;index" json:"customer_user_id"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// DiagnosticSession lives in the older diagnostic_sessions table, whose
// columns predate the sessions schema.
type DiagnosticSession struct {
	ID                 string            `gorm:"primaryKey;size:36" json:"id"`
	SessionType        string            `gorm:"column:session_type;size:20;not null" json:"session_type"`
	PlanSlug           string            `gorm:"column:plan_slug;size:50" json:"plan_slug"`
	State              string            `gorm:"column:state;size:20;not null;index" json:"state"`
	BeganAt            *time.Time        `gorm:"column:began_at" json:"began_at"`
	FinishedAt         *time.Time        `gorm:"column:finished_at" json:"finished_at"`
	ElapsedSeconds     *int64            `gorm:"column:elapsed_seconds" json:"elapsed_seconds"`
	AssignedMechanicID *string           `gorm:"column:assigned_mechanic_id;size:36;index" json:"assigned_mechanic_id"`
	CustomerID         string            `gorm:"column:customer_id;size:36;not null;index" json:"customer_id"`
	Meta               datatypes.JSONMap `gorm:"column:meta" json:"meta"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (DiagnosticSession) TableName() string {
	return "diagnostic_sessions"
}

// SessionAssignment is a mechanic-facing queue/claim row for a session.
type SessionAssignment struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	SessionID   string     `gorm:"size:36;not null;index" json:"session_id"`
	MechanicID  *string    `gorm:"size:36;index" json:"mechanic_id"`
	Status      string     `gorm:"size:20;not null;index" json:"status"` // queued, offered, accepted, completed, cancelled, expired
	EndedReason string     `gorm:"size:64" json:"ended_reason"`
	EndedAt     *time.Time `json:"ended_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (SessionAssignment) TableName() string {
	return "session_assignments"
}
