package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promdto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/handlers/dto"
	"github.com/thereayou/storychat/internal/metrics"
	"github.com/thereayou/storychat/internal/models"
	"github.com/thereayou/storychat/internal/websocket"
)

type failingBroadcaster struct{ calls int }

func (f *failingBroadcaster) Broadcast(context.Context, uuid.UUID, []byte) error {
	f.calls++
	return errors.New("relay down")
}

type chatFixture struct {
	db     *database.Database
	hub    *websocket.Hub
	client *websocket.Client
	user   *models.User
	room   *models.Room
	m      *metrics.Metrics
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, db.SaveUser(ctx, user))
	room, err := db.CreateRoom(ctx, user.ID, "general", false)
	require.NoError(t, err)

	m := metrics.Discard()
	hub := websocket.NewHub(websocket.WithMetrics(m))
	client := websocket.NewClient(hub, nil, user.ID, user.Username, nil)
	hub.Register(client)
	require.NoError(t, hub.JoinRoom(client, room.ID))

	return &chatFixture{db: db, hub: hub, client: client, user: user, room: room, m: m}
}

func nextFrame(t *testing.T, c *websocket.Client) dto.MessageResponse {
	t.Helper()

	select {
	case data := <-c.Send:
		var msg websocket.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, websocket.TypeMessageNew, msg.Type)

		var resp dto.MessageResponse
		require.NoError(t, json.Unmarshal(msg.Data, &resp))
		return resp
	default:
		t.Fatal("no frame queued")
		return dto.MessageResponse{}
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	var out promdto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}

func TestChatServiceSend(t *testing.T) {
	f := newChatFixture(t)
	svc := NewChatService(f.db, f.hub, nil, f.m, nil)

	msg, err := svc.Send(context.Background(), f.room.ID, f.user.ID, "  hello  ", "c-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, int64(1), msg.Sequence)

	resp := nextFrame(t, f.client)
	assert.Equal(t, msg.ID, resp.ID)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "c-1", resp.ClientMessageID)

	assert.Equal(t, float64(1), counterValue(t, f.m.MessagesStored))
	assert.Equal(t, float64(1), counterValue(t, f.m.Broadcasts))
}

func TestChatServiceDuplicateNotBroadcast(t *testing.T) {
	f := newChatFixture(t)
	svc := NewChatService(f.db, f.hub, nil, f.m, nil)
	ctx := context.Background()

	first, err := svc.Send(ctx, f.room.ID, f.user.ID, "once", "c-1")
	require.NoError(t, err)
	nextFrame(t, f.client)

	again, err := svc.Send(ctx, f.room.ID, f.user.ID, "once", "c-1")
	assert.ErrorIs(t, err, database.ErrDuplicate)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Empty(t, f.client.Send)
	assert.Equal(t, float64(1), counterValue(t, f.m.MessagesStored))
}

func TestChatServiceRejected(t *testing.T) {
	f := newChatFixture(t)
	svc := NewChatService(f.db, f.hub, nil, f.m, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, f.room.ID, f.user.ID, "", "")
	assert.ErrorIs(t, err, database.ErrValidation)

	_, err = svc.Send(ctx, uuid.New(), f.user.ID, "lost", "")
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = svc.Send(ctx, f.room.ID, uuid.New(), "who?", "")
	assert.ErrorIs(t, err, database.ErrValidation)

	assert.Empty(t, f.client.Send)
	latest, err := f.db.LatestSequence(ctx, f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)
}

func TestChatServiceBroadcastFailureIsReported(t *testing.T) {
	f := newChatFixture(t)
	b := &failingBroadcaster{}
	svc := NewChatService(f.db, f.hub, b, f.m, nil)
	ctx := context.Background()

	msg, err := svc.Send(ctx, f.room.ID, f.user.ID, "stored anyway", "")
	require.ErrorIs(t, err, ErrNotDelivered)
	require.NotNil(t, msg)
	assert.Equal(t, "stored anyway", msg.Content)
	assert.Equal(t, 1, b.calls)

	history, err := f.db.History(ctx, f.room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}
