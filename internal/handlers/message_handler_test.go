package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereayou/storychat/internal/database"
	"github.com/thereayou/storychat/internal/handlers/dto"
	"github.com/thereayou/storychat/internal/models"
	"github.com/thereayou/storychat/internal/services"
	"github.com/thereayou/storychat/internal/websocket"
)

type brokenRelay struct{}

func (brokenRelay) Broadcast(context.Context, uuid.UUID, []byte) error {
	return errors.New("redis: connection refused")
}

type protocolFixture struct {
	db      *database.Database
	hub     *websocket.Hub
	handler *MessageHandler
	client  *websocket.Client
	user    *models.User
	room    *models.Room
}

func newProtocolFixture(t *testing.T, broadcaster websocket.Broadcaster) *protocolFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, db.SaveUser(ctx, user))
	room, err := db.CreateRoom(ctx, user.ID, "general", false)
	require.NoError(t, err)

	hub := websocket.NewHub()
	chat := services.NewChatService(db, hub, broadcaster, nil, nil)
	client := websocket.NewClient(hub, nil, user.ID, user.Username, nil)
	hub.Register(client)

	return &protocolFixture{
		db:      db,
		hub:     hub,
		handler: NewMessageHandler(db, chat, hub, nil, nil),
		client:  client,
		user:    user,
		room:    room,
	}
}

func (f *protocolFixture) store(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.db.AppendMessage(context.Background(), f.room.ID, f.user.ID, fmt.Sprintf("line %d", i+1), "")
		require.NoError(t, err)
	}
}

func (f *protocolFixture) join(t *testing.T, since *int64) error {
	t.Helper()
	data, err := json.Marshal(dto.JoinPayload{SinceSequence: since})
	require.NoError(t, err)
	return f.handler.HandleMessage(context.Background(), f.client, &websocket.Message{
		Type:      websocket.TypeRoomJoin,
		RequestID: "join-1",
		RoomID:    &f.room.ID,
		Data:      data,
	})
}

func queued(c *websocket.Client) []websocket.Message {
	var out []websocket.Message
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var msg websocket.Message
			if err := json.Unmarshal(data, &msg); err == nil {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func TestJoinReplaysSmallGap(t *testing.T) {
	f := newProtocolFixture(t, nil)
	f.store(t, 10)

	require.NoError(t, f.join(t, ptrInt64(5)))

	frames := queued(f.client)
	require.Len(t, frames, 6)
	require.Equal(t, websocket.TypeRoomJoined, frames[0].Type)

	var joined dto.JoinedPayload
	require.NoError(t, json.Unmarshal(frames[0].Data, &joined))
	assert.Equal(t, int64(10), joined.LatestSequence)
	assert.False(t, joined.ReplayTruncated)

	for i, frame := range frames[1:] {
		require.Equal(t, websocket.TypeMessageNew, frame.Type)
		var m dto.MessageResponse
		require.NoError(t, json.Unmarshal(frame.Data, &m))
		assert.Equal(t, int64(6+i), m.Sequence)
	}
}

func TestJoinLargeGapIsNotPushed(t *testing.T) {
	f := newProtocolFixture(t, nil)
	f.store(t, 300)

	require.NoError(t, f.join(t, ptrInt64(0)))

	frames := queued(f.client)
	require.Len(t, frames, 1)
	require.Equal(t, websocket.TypeRoomJoined, frames[0].Type)

	var joined dto.JoinedPayload
	require.NoError(t, json.Unmarshal(frames[0].Data, &joined))
	assert.Equal(t, int64(300), joined.LatestSequence)
	assert.True(t, joined.ReplayTruncated)
	assert.True(t, f.client.IsInRoom(f.room.ID))
}

func TestJoinWithFullQueueDropsConnection(t *testing.T) {
	f := newProtocolFixture(t, nil)
	f.store(t, 10)

	for f.client.SendRaw([]byte("backlog")) == nil {
	}

	err := f.join(t, ptrInt64(5))
	assert.ErrorIs(t, err, websocket.ErrClientQueueFull)
	assert.Equal(t, 0, f.hub.ClientCount())
	assert.Empty(t, f.hub.RoomClients(f.room.ID))
}

func TestSendReportsUndeliveredToSender(t *testing.T) {
	f := newProtocolFixture(t, brokenRelay{})
	require.NoError(t, f.join(t, nil))
	queued(f.client)

	data, err := json.Marshal(dto.SendPayload{Content: "hello", ClientMessageID: "c-1"})
	require.NoError(t, err)
	err = f.handler.HandleMessage(context.Background(), f.client, &websocket.Message{
		Type:      websocket.TypeMessageSend,
		RequestID: "send-1",
		RoomID:    &f.room.ID,
		Data:      data,
	})
	require.NoError(t, err)

	frames := queued(f.client)
	require.Len(t, frames, 1)
	require.Equal(t, websocket.TypeMessageNew, frames[0].Type)

	var m dto.MessageResponse
	require.NoError(t, json.Unmarshal(frames[0].Data, &m))
	assert.Equal(t, "c-1", m.ClientMessageID)
	assert.Equal(t, int64(1), m.Sequence)
}

func ptrInt64(v int64) *int64 {
	return &v
}
