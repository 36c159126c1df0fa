package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"garagelink/config"
	"garagelink/internal/database"
	"garagelink/internal/events"
	applog "garagelink/internal/log"
	"garagelink/internal/realtime"
	"garagelink/internal/repository"
	"garagelink/internal/service"
	"garagelink/internal/ws"
	"garagelink/pkg/payment"
	"garagelink/pkg/payout"
	"garagelink/pkg/procedure"
)

// app holds every long-lived dependency shared by the commands.
type app struct {
	cfg           *config.Config
	db            *gorm.DB
	store         *repository.SessionStore
	sessions      *service.SessionEndService
	notifications *service.NotificationService
	hub           *ws.Hub
	redis         *redis.Client
	closers       []func()
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := applog.WithComponent("wire")
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db, hub: ws.NewHub()}
	a.closers = append(a.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	var publisher realtime.Publisher = a.hub
	if cfg.Redis.Addr != "" {
		client, err := realtime.NewRedisClient(ctx, realtime.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		publisher = realtime.NewRedisPublisher(client)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("realtime events fan out through redis")
	}

	var dispatcher events.Dispatcher = events.Nop{}
	if cfg.AMQP.URL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		dispatcher = pub
	} else {
		logger.Warn().Msg("AMQP_URL not set; session.ended events are not dispatched")
	}

	var transfers payment.Transferer
	switch {
	case cfg.Stripe.SecretKey != "":
		transfers = payment.NewStripeTransferer(cfg.Stripe.SecretKey)
	case cfg.Server.Env == "production":
		a.Close()
		return nil, errors.New("STRIPE_SECRET_KEY is required in production")
	default:
		logger.Warn().Msg("STRIPE_SECRET_KEY not set; using stub transfers")
		transfers = &payment.StubTransferer{}
	}

	var pusher service.Pusher
	if fcm := service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath); fcm != nil {
		pusher = fcm
		logger.Info().Msg("push notifications enabled")
	} else {
		logger.Info().Msg("push notifications disabled: set FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}

	procedures := procedure.NewClient(cfg.Procedures.BaseURL, cfg.Procedures.ServiceKey, cfg.Procedures.Timeout)

	a.store = repository.NewSessionStore(db)
	a.notifications = service.NewNotificationService(
		repository.NewNotificationRepository(db),
		repository.NewUserRepository(db),
		pusher,
	)
	a.sessions = service.NewSessionEndService(
		a.store,
		service.NewStatusResolver(repository.NewAssignmentRepository(db), procedures),
		service.NewSettlementExecutor(
			payout.NewCalculator(payout.PriceTable(cfg.Payout.Prices), cfg.Payout.MechanicShare),
			repository.NewMechanicRepository(db),
			transfers,
			procedures,
			cfg.Payout.Currency,
		),
		service.NewReconciliationMatcher(repository.NewRequestRepository(db)),
		service.NewFanout(a.notifications, publisher),
		dispatcher,
	)
	return a, nil
}

// Close waits for detached dispatches, then releases resources in reverse
// order.
func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
