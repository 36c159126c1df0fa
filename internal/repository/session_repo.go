package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"garagelink/internal/domain"
	"garagelink/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is the table-independent shape of a session.
type SessionRecord struct {
	ID              string
	Source          string
	Modality        string
	Plan            string
	Status          string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds int64
	MechanicID      string
	CustomerID      string
	Metadata        map[string]any
}

func (r *SessionRecord) HasMechanic() bool { return r.MechanicID != "" }

// RoleOf reports which side of the session userID is on.
func (r *SessionRecord) RoleOf(userID string) (string, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == r.CustomerID:
		return domain.RoleCustomer, true
	case userID == r.MechanicID:
		return domain.RoleMechanic, true
	}
	return "", false
}

// SessionSource is one physical table holding sessions.
type SessionSource interface {
	Name() string
	Find(ctx context.Context, id string) (*SessionRecord, error)
	// MarkEnded moves a waiting/live session to completed and stamps ended_at.
	// It reports false when the row was not in an endable state.
	MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error)
	// RevertEnded undoes MarkEnded when no outcome could be decided.
	RevertEnded(ctx context.Context, id, status string) error
	SaveOutcome(ctx context.Context, id, status string, durationSeconds *int64) error
	MergeMetadata(ctx context.Context, id string, patch map[string]any) error
	ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]string, error)
}

// sessionTable holds the column names that differ between the two tables.
type sessionTable struct {
	db        *gorm.DB
	name      string
	status    string
	startedAt string
	endedAt   string
	duration  string
	metadata  string
}

func (t sessionTable) markEnded(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	res := t.db.WithContext(ctx).Table(t.name).
		Where("id = ? AND "+t.status+" IN ?", id, domain.EndableSessionStatuses).
		Updates(map[string]interface{}{
			t.status:     domain.SessionStatusCompleted,
			t.endedAt:    endedAt,
			"updated_at": endedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t sessionTable) revertEnded(ctx context.Context, id, status string) error {
	return t.db.WithContext(ctx).Table(t.name).
		Where("id = ? AND "+t.status+" = ?", id, domain.SessionStatusCompleted).
		Updates(map[string]interface{}{
			t.status:     status,
			t.endedAt:    nil,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (t sessionTable) saveOutcome(ctx context.Context, id, status string, durationSeconds *int64) error {
	return t.db.WithContext(ctx).Table(t.name).Where("id = ?", id).
		Updates(map[string]interface{}{
			t.status:     status,
			t.duration:   durationSeconds,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (t sessionTable) writeMetadata(ctx context.Context, id string, current, patch map[string]any) error {
	merged := make(datatypes.JSONMap, len(current)+len(patch))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return t.db.WithContext(ctx).Table(t.name).Where("id = ?", id).
		Update(t.metadata, merged).Error
}

func (t sessionTable) listOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]string, error) {
	var ids []string
	err := t.db.WithContext(ctx).Table(t.name).
		Where(t.status+" = ? AND "+t.startedAt+" < ?", domain.SessionStatusLive, startedBefore).
		Order(t.startedAt+" ASC").Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func durationOf(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// PrimarySessionSource reads the sessions table.
type PrimarySessionSource struct {
	sessionTable
}

func NewPrimarySessionSource(db *gorm.DB) *PrimarySessionSource {
	return &PrimarySessionSource{sessionTable{
		db: db, name: "sessions",
		status: "status", startedAt: "started_at", endedAt: "ended_at",
		duration: "duration_seconds", metadata: "metadata",
	}}
}

func (s *PrimarySessionSource) Name() string { return s.name }

func (s *PrimarySessionSource) Find(ctx context.Context, id string) (*SessionRecord, error) {
	var row models.Session
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &SessionRecord{
		ID:              row.ID,
		Source:          s.name,
		Modality:        row.Type,
		Plan:            row.Plan,
		Status:          row.Status,
		StartedAt:       row.StartedAt,
		EndedAt:         row.EndedAt,
		DurationSeconds: durationOf(row.DurationSeconds),
		MechanicID:      derefString(row.MechanicID),
		CustomerID:      row.CustomerUserID,
		Metadata:        map[string]any(row.Metadata),
	}, nil
}

func (s *PrimarySessionSource) MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	return s.markEnded(ctx, id, endedAt)
}

func (s *PrimarySessionSource) RevertEnded(ctx context.Context, id, status string) error {
	return s.revertEnded(ctx, id, status)
}

func (s *PrimarySessionSource) SaveOutcome(ctx context.Context, id, status string, durationSeconds *int64) error {
	return s.saveOutcome(ctx, id, status, durationSeconds)
}

func (s *PrimarySessionSource) MergeMetadata(ctx context.Context, id string, patch map[string]any) error {
	rec, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	return s.writeMetadata(ctx, id, rec.Metadata, patch)
}

func (s *PrimarySessionSource) ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]string, error) {
	return s.listOverdue(ctx, startedBefore, limit)
}

// DiagnosticSessionSource reads the legacy diagnostic_sessions table.
type DiagnosticSessionSource struct {
	sessionTable
}

func NewDiagnosticSessionSource(db *gorm.DB) *DiagnosticSessionSource {
	return &DiagnosticSessionSource{sessionTable{
		db: db, name: "diagnostic_sessions",
		status: "state", startedAt: "began_at", endedAt: "finished_at",
		duration: "elapsed_seconds", metadata: "meta",
	}}
}

func (s *DiagnosticSessionSource) Name() string { return s.name }

func (s *DiagnosticSessionSource) Find(ctx context.Context, id string) (*SessionRecord, error) {
	var row models.DiagnosticSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	modality := row.SessionType
	if modality == "" {
		modality = domain.ModalityDiagnostic
	}
	return &SessionRecord{
		ID:              row.ID,
		Source:          s.name,
		Modality:        modality,
		Plan:            row.PlanSlug,
		Status:          row.State,
		StartedAt:       row.BeganAt,
		EndedAt:         row.FinishedAt,
		DurationSeconds: durationOf(row.ElapsedSeconds),
		MechanicID:      derefString(row.AssignedMechanicID),
		CustomerID:      row.CustomerID,
		Metadata:        map[string]any(row.Meta),
	}, nil
}

func (s *DiagnosticSessionSource) MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	return s.markEnded(ctx, id, endedAt)
}

func (s *DiagnosticSessionSource) RevertEnded(ctx context.Context, id, status string) error {
	return s.revertEnded(ctx, id, status)
}

func (s *DiagnosticSessionSource) SaveOutcome(ctx context.Context, id, status string, durationSeconds *int64) error {
	return s.saveOutcome(ctx, id, status, durationSeconds)
}

func (s *DiagnosticSessionSource) MergeMetadata(ctx context.Context, id string, patch map[string]any) error {
	rec, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	return s.writeMetadata(ctx, id, rec.Metadata, patch)
}

func (s *DiagnosticSessionSource) ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]string, error) {
	return s.listOverdue(ctx, startedBefore, limit)
}

// SessionStore checks its sources in order and hands back the first one that
// holds the session.
type SessionStore struct {
	sources []SessionSource
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return NewSessionStoreWithSources(NewPrimarySessionSource(db), NewDiagnosticSessionSource(db))
}

func NewSessionStoreWithSources(sources ...SessionSource) *SessionStore {
	return &SessionStore{sources: sources}
}

func (s *SessionStore) Locate(ctx context.Context, id string) (SessionSource, *SessionRecord, error) {
	for _, src := range s.sources {
		rec, err := src.Find(ctx, id)
		if err == nil {
			return src, rec, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, nil, fmt.Errorf("locate in %s: %w", src.Name(), err)
		}
	}
	return nil, nil, ErrSessionNotFound
}

// ListOverdue returns live session IDs across all sources that started
// before the cutoff.
func (s *SessionStore) ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]string, error) {
	var out []string
	for _, src := range s.sources {
		if limit > 0 && len(out) >= limit {
			break
		}
		remaining := -1
		if limit > 0 {
			remaining = limit - len(out)
		}
		ids, err := src.ListOverdue(ctx, startedBefore, remaining)
		if err != nil {
			return out, fmt.Errorf("list overdue in %s: %w", src.Name(), err)
		}
		out = append(out, ids...)
	}
	return out, nil
}
