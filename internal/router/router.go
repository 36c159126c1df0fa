package router

import (
	"context"
	"net/http"
	"time"

	"garagelink/config"
	"garagelink/internal/handler"
	"garagelink/internal/middleware"
	"garagelink/internal/service"
	"garagelink/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps are the constructed services the HTTP surface exposes.
type Deps struct {
	DB            *gorm.DB
	Sessions      *service.SessionEndService
	Notifications *service.NotificationService
	Hub           *ws.Hub
	ChannelAuth   ws.Authorizer
}

func Setup(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger())

	r.GET("/healthz", healthz(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/realtime", ws.UpgradeRealtimeWS(&cfg.JWT, d.Hub, d.ChannelAuth))

	sessionHandler := handler.NewSessionHandler(d.Sessions)
	notificationHandler := handler.NewNotificationHandler(d.Notifications)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)))
	api.Use(middleware.AuthRequired(&cfg.JWT))
	{
		api.POST("/sessions/:id/end", sessionHandler.End)
		api.GET("/notifications", notificationHandler.List)
		api.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	}
	return r
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
