package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garagelink/internal/domain"
	"garagelink/internal/models"
	"garagelink/internal/realtime"
	"garagelink/internal/repository"
	"garagelink/internal/testutil"
)

func TestSessionChannelAuthorizer(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&models.Session{
		ID: "s1", Type: domain.ModalityChat, Status: domain.SessionStatusLive,
		CustomerUserID: "cust-1", MechanicID: testutil.StrPtr("mech-1"),
	}).Error)
	a := NewSessionChannelAuthorizer(repository.NewSessionStore(db))
	ctx := context.Background()

	assert.NoError(t, a.Authorize(ctx, "anyone", realtime.ActiveSessionsChannel))
	assert.NoError(t, a.Authorize(ctx, "cust-1", "session-s1"))
	assert.NoError(t, a.Authorize(ctx, "mech-1", "session-s1"))
	assert.ErrorIs(t, a.Authorize(ctx, "stranger", "session-s1"), ErrChannelForbidden)
	assert.ErrorIs(t, a.Authorize(ctx, "cust-1", "session:s1"), ErrChannelForbidden, "chat sessions only publish on the dashed channel")
	assert.ErrorIs(t, a.Authorize(ctx, "cust-1", "session-missing"), repository.ErrSessionNotFound)
	assert.ErrorIs(t, a.Authorize(ctx, "cust-1", "lobby"), ErrChannelForbidden)
}
