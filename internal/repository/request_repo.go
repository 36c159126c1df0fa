package repository

import (
	"context"
	"errors"
	"time"

	"garagelink/internal/domain"
	"garagelink/internal/models"

	"gorm.io/gorm"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// CloseBySessionID moves every non-terminal request pointing at the session
// to status.
func (r *RequestRepository) CloseBySessionID(ctx context.Context, sessionID, status string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.SessionRequest{}).
		Where("session_id = ? AND status IN ?", sessionID, domain.ActiveRequestStatuses).
		Updates(map[string]interface{}{"status": status, "closed_at": at, "updated_at": at})
	return res.RowsAffected, res.Error
}

// LatestActiveForPair returns the most recently created pending/accepted
// request between the customer and mechanic, or nil when there is none.
func (r *RequestRepository) LatestActiveForPair(ctx context.Context, customerID, mechanicID string) (*models.SessionRequest, error) {
	var req models.SessionRequest
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND mechanic_id = ? AND status IN ?", customerID, mechanicID, domain.ActiveRequestStatuses).
		Order("created_at DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CloseByID closes a single request if it is still active and backfills its
// session reference.
func (r *RequestRepository) CloseByID(ctx context.Context, id, sessionID, status string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.SessionRequest{}).
		Where("id = ? AND status IN ?", id, domain.ActiveRequestStatuses).
		Updates(map[string]interface{}{
			"status":     status,
			"session_id": sessionID,
			"closed_at":  at,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}
