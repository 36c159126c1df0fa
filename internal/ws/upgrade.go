package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"garagelink/config"
	"garagelink/internal/auth"
	applog "garagelink/internal/log"
	"garagelink/internal/realtime"
	"garagelink/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var ErrChannelForbidden = errors.New("not allowed to subscribe to channel")

// Authorizer decides whether a user may listen on a channel.
type Authorizer interface {
	Authorize(ctx context.Context, userID, channel string) error
}

// SessionChannelAuthorizer lets anyone watch the active-sessions list and
// restricts per-session channels to that session's participants.
type SessionChannelAuthorizer struct {
	store *repository.SessionStore
}

func NewSessionChannelAuthorizer(store *repository.SessionStore) *SessionChannelAuthorizer {
	return &SessionChannelAuthorizer{store: store}
}

func (a *SessionChannelAuthorizer) Authorize(ctx context.Context, userID, channel string) error {
	if channel == realtime.ActiveSessionsChannel {
		return nil
	}
	id, ok := sessionIDFromChannel(channel)
	if !ok {
		return ErrChannelForbidden
	}
	_, rec, err := a.store.Locate(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := rec.RoleOf(userID); !ok {
		return ErrChannelForbidden
	}
	if want, _ := realtime.ChannelFor(rec.Modality, rec.ID); want != channel {
		return ErrChannelForbidden
	}
	return nil
}

func sessionIDFromChannel(channel string) (string, bool) {
	for _, prefix := range []string{"session-", "session:"} {
		if id, ok := strings.CutPrefix(channel, prefix); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// UpgradeRealtimeWS serves /ws/realtime?token=...&channel=...; channel may be
// repeated. The connection is read-only from the client's side.
func UpgradeRealtimeWS(cfg *config.JWTConfig, hub *Hub, authz Authorizer) gin.HandlerFunc {
	logger := applog.WithComponent("ws")
	return func(c *gin.Context) {
		claims, err := auth.ParseAccessToken(cfg, c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		channels := c.QueryArray("channel")
		if len(channels) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channel required"})
			return
		}
		for _, ch := range channels {
			if err := authz.Authorize(c.Request.Context(), claims.UserID, ch); err != nil {
				logger.Warn().Err(err).Str("user_id", claims.UserID).Str("channel", ch).Msg("subscription denied")
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden channel", "channel": ch})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := NewClient(claims.UserID, channels)
		hub.Register(client)
		defer client.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			writePump(client, conn)
		}()
		readPump(conn)
		client.Close()
		<-done
	}
}

// writePump copies messages from client.Send to the connection.
func writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
