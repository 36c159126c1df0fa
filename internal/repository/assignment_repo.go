package repository

import (
	"context"
	"time"

	"garagelink/internal/domain"
	"garagelink/internal/models"

	"gorm.io/gorm"
)

type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// CloseOpenForSession completes every queued/offered/accepted assignment of
// the session and tags it with reason.
func (r *AssignmentRepository) CloseOpenForSession(ctx context.Context, sessionID, reason string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.SessionAssignment{}).
		Where("session_id = ? AND status IN ?", sessionID, domain.OpenAssignmentStatuses).
		Updates(map[string]interface{}{
			"status":       domain.AssignmentStatusCompleted,
			"ended_reason": reason,
			"ended_at":     at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}
