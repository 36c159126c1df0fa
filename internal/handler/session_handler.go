package handler

import (
	"errors"
	"io"
	"net/http"

	"garagelink/internal/domain"
	applog "garagelink/internal/log"
	"garagelink/internal/middleware"
	"garagelink/internal/repository"
	"garagelink/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	ends *service.SessionEndService
}

func NewSessionHandler(ends *service.SessionEndService) *SessionHandler {
	return &SessionHandler{ends: ends}
}

type endSessionBody struct {
	Reason string `json:"reason"`
}

// End finalizes the session for the authenticated participant.
func (h *SessionHandler) End(c *gin.Context) {
	reason, err := endReason(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.ends.End(c.Request.Context(), service.EndRequest{
		SessionID: c.Param("id"),
		ActorID:   middleware.GetUserID(c),
		Reason:    reason,
	})
	if err != nil {
		status, msg := endErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger := applog.FromContext(c.Request.Context(), applog.WithComponent("handler"))
			logger.Error().Err(err).Str("session_id", c.Param("id")).Msg("end session failed")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, endResponse(res))
}

// endReason reads the optional JSON body. Chunked requests report no
// content length, so only an absent body counts as empty.
func endReason(c *gin.Context) (string, error) {
	var body endSessionBody
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			return "", errors.New("invalid body")
		}
	}
	if body.Reason == "" {
		return domain.ReasonUserEnded, nil
	}
	if len(body.Reason) > 64 {
		return "", errors.New("reason too long")
	}
	return body.Reason, nil
}

func endErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, service.ErrNotParticipant):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrNotEndable):
		return http.StatusConflict, "session has not started"
	case errors.Is(err, service.ErrSemanticsFailed):
		return http.StatusBadGateway, "could not determine session outcome"
	default:
		return http.StatusInternalServerError, "could not end session"
	}
}

func endResponse(res *service.EndResult) gin.H {
	var payout gin.H
	if res.Payout != nil {
		payout = gin.H{
			"amount_cents": res.Payout.AmountCents,
			"status":       res.Payout.Status,
			"payee_type":   res.Payout.PayeeType,
			"transfer_id":  res.Payout.TransferID,
		}
	}
	degraded := make([]gin.H, 0, len(res.Degraded))
	for _, o := range res.Degraded {
		degraded = append(degraded, gin.H{"stage": o.Stage, "reason": o.Reason})
	}
	return gin.H{
		"sessionId":       res.SessionID,
		"finalStatus":     res.FinalStatus,
		"duration":        res.DurationSeconds,
		"started":         res.Started,
		"semanticMessage": res.SemanticMessage,
		"alreadyEnded":    res.AlreadyEnded,
		"payout":          payout,
		"degraded":        degraded,
	}
}
