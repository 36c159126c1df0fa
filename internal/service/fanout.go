package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"garagelink/internal/domain"
	applog "garagelink/internal/log"
	"garagelink/internal/models"
	"garagelink/internal/realtime"
	"garagelink/internal/repository"
)

// Fanout tells both participants how a session ended.
type Fanout struct {
	notifications *NotificationService
	publisher     realtime.Publisher
	logger        zerolog.Logger
}

func NewFanout(notifications *NotificationService, publisher realtime.Publisher) *Fanout {
	if publisher == nil {
		publisher = realtime.Nop{}
	}
	return &Fanout{
		notifications: notifications,
		publisher:     publisher,
		logger:        applog.WithComponent("fanout"),
	}
}

// Notify stores one notification per distinct participant.
func (f *Fanout) Notify(ctx context.Context, rec *repository.SessionRecord, res *Resolution, endedBy string) Outcome {
	if f.notifications == nil {
		return Skipped(StageNotify, "notifications not configured")
	}
	list := BuildNotifications(rec, res, endedBy)
	if err := f.notifications.NotifyMany(ctx, list); err != nil {
		logger := applog.FromContext(ctx, f.logger)
		logger.Warn().Err(err).Str("session_id", rec.ID).Msg("notify failed")
		return Degraded(StageNotify, err)
	}
	return OK(StageNotify)
}

// Broadcast publishes the end event on the session's channel and on the
// active-sessions channel. Both are attempted even if one fails.
func (f *Fanout) Broadcast(ctx context.Context, rec *repository.SessionRecord, res *Resolution, endedBy string) Outcome {
	channel, event := realtime.ChannelFor(rec.Modality, rec.ID)
	sessionPayload := map[string]any{
		"session_id":       rec.ID,
		"session_type":     rec.Modality,
		"final_status":     res.FinalStatus,
		"duration_seconds": res.DurationSeconds,
		"ended_by":         endedBy,
	}
	listPayload := map[string]any{
		"session_id":   rec.ID,
		"status":       res.FinalStatus,
		"session_type": rec.Modality,
	}

	errs := errors.Join(
		f.publisher.Publish(ctx, channel, event, sessionPayload),
		f.publisher.Publish(ctx, realtime.ActiveSessionsChannel, realtime.EventActiveSessionEnded, listPayload),
	)
	if errs != nil {
		logger := applog.FromContext(ctx, f.logger)
		logger.Warn().Err(errs).Str("session_id", rec.ID).Msg("broadcast failed")
		return Degraded(StageBroadcast, errs)
	}
	return OK(StageBroadcast)
}

// BuildNotifications returns the customer's notification and, when the
// mechanic is a different user, the mechanic's.
func BuildNotifications(rec *repository.SessionRecord, res *Resolution, endedBy string) []models.Notification {
	notifType, title, body := notificationText(rec.Modality, res.FinalStatus)
	payload := func() datatypes.JSONMap {
		return datatypes.JSONMap{
			"session_id":       rec.ID,
			"session_type":     rec.Modality,
			"final_status":     res.FinalStatus,
			"duration_seconds": res.DurationSeconds,
			"ended_by":         endedBy,
		}
	}
	var out []models.Notification
	if rec.CustomerID != "" {
		out = append(out, models.Notification{UserID: rec.CustomerID, Type: notifType, Title: title, Body: body, Payload: payload()})
	}
	if rec.MechanicID != "" && rec.MechanicID != rec.CustomerID {
		out = append(out, models.Notification{UserID: rec.MechanicID, Type: notifType, Title: title, Body: body, Payload: payload()})
	}
	return out
}

func notificationText(modality, finalStatus string) (notifType, title, body string) {
	kind := modality
	if kind == "" {
		kind = "service"
	}
	if finalStatus == domain.SessionStatusCompleted {
		return domain.NotificationSessionCompleted, "Session completed",
			"Your " + kind + " session has ended. Thanks for using GarageLink."
	}
	return domain.NotificationSessionCancelled, "Session cancelled",
		strings.ToUpper(kind[:1]) + kind[1:] + " session was cancelled. You have not been charged."
}
