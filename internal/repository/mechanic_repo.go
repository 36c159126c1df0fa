package repository

import (
	"context"
	"errors"

	"garagelink/internal/models"

	"gorm.io/gorm"
)

type MechanicRepository struct {
	db *gorm.DB
}

func NewMechanicRepository(db *gorm.DB) *MechanicRepository {
	return &MechanicRepository{db: db}
}

// GetWithWorkshop looks a mechanic up by mechanic id or user id and preloads
// the workshop. Returns nil, nil when neither matches.
func (r *MechanicRepository) GetWithWorkshop(ctx context.Context, id string) (*models.Mechanic, error) {
	var m models.Mechanic
	err := r.db.WithContext(ctx).Preload("Workshop").
		Where("id = ? OR user_id = ?", id, id).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetLegacyProfile returns the pre-migration profile for id, or nil, nil.
func (r *MechanicRepository) GetLegacyProfile(ctx context.Context, id string) (*models.LegacyProfile, error) {
	var p models.LegacyProfile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
