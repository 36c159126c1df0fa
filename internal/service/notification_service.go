package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	applog "garagelink/internal/log"
	"garagelink/internal/models"
	"garagelink/internal/repository"
)

type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	push     Pusher
	logger   zerolog.Logger
}

// NewNotificationService wires the store and an optional pusher; a nil
// pusher disables push delivery.
func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, push Pusher) *NotificationService {
	return &NotificationService{
		repo:     repo,
		userRepo: userRepo,
		push:     push,
		logger:   applog.WithComponent("notifications"),
	}
}

// NotifyMany inserts all notifications in one batch, then pushes each to its
// recipient's device. Push failures are logged only.
func (s *NotificationService) NotifyMany(ctx context.Context, list []models.Notification) error {
	if len(list) == 0 {
		return nil
	}
	if err := s.repo.CreateBatch(ctx, list); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	s.sendPushes(ctx, list)
	return nil
}

func (s *NotificationService) sendPushes(ctx context.Context, list []models.Notification) {
	if s.push == nil || s.userRepo == nil {
		return
	}
	ids := make([]string, 0, len(list))
	for _, n := range list {
		ids = append(ids, n.UserID)
	}
	tokens, err := s.userRepo.PushTokens(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("loading push tokens failed")
		return
	}
	for _, n := range list {
		token := tokens[n.UserID]
		if token == "" {
			continue
		}
		if err := s.push.SendToUser(ctx, token, n.Type, n.Title, n.Body, n.Payload); err != nil {
			s.logger.Warn().Err(err).Str("user_id", n.UserID).Str("type", n.Type).Msg("push failed")
		}
	}
}

func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByUserID(ctx, userID, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id uint, userID string) error {
	_, err := s.repo.MarkRead(ctx, id, userID)
	return err
}
