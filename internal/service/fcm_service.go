package service

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	applog "garagelink/internal/log"
)

// Pusher delivers a push notification to one device token.
type Pusher interface {
	SendToUser(ctx context.Context, fcmToken, notifType, title, body string, data map[string]any) error
}

// FCMService sends push notifications via Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
	logger zerolog.Logger
}

// NewFCMService returns nil if Firebase is not configured or fails to start.
func NewFCMService(ctx context.Context, serviceAccountPath string) *FCMService {
	logger := applog.WithComponent("fcm")
	if serviceAccountPath == "" {
		return nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(serviceAccountPath))
	if err != nil {
		logger.Error().Err(err).Msg("init firebase app")
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("init messaging client")
		return nil
	}
	return &FCMService{client: client, logger: logger}
}

func (s *FCMService) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if s == nil || token == "" {
		return nil
	}
	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:  data,
		Token: token,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
	if _, err := s.client.Send(ctx, msg); err != nil {
		s.logger.Warn().Err(err).Msg("fcm send failed")
		return err
	}
	return nil
}

// SendToUser flattens data to strings, as FCM requires.
func (s *FCMService) SendToUser(ctx context.Context, fcmToken, notifType, title, body string, data map[string]any) error {
	if s == nil || fcmToken == "" {
		return nil
	}
	return s.Send(ctx, fcmToken, title, body, pushData(notifType, data))
}

func pushData(notifType string, data map[string]any) map[string]string {
	out := map[string]string{"type": notifType}
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int, int64, uint:
			out[k] = fmt.Sprintf("%d", val)
		case float64:
			out[k] = fmt.Sprintf("%.0f", val)
		case nil:
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}
