package repository

import (
	"context"

	"garagelink/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// PushTokens maps user IDs to their FCM tokens, skipping users without one.
func (r *UserRepository) PushTokens(ctx context.Context, ids []string) (map[string]string, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ? AND fcm_token <> ''", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(users))
	for _, u := range users {
		out[u.ID] = u.FCMToken
	}
	return out, nil
}
