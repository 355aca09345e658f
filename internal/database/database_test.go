package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/storychat/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := Open("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createUser(t *testing.T, db *Database, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	}
	require.NoError(t, db.SaveUser(context.Background(), user))
	return user
}

// fixedClock отдает заданные моменты по очереди, затем повторяет последний
func fixedClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")

	room, err := db.CreateRoom(ctx, alice.ID, "general", false)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, room.ID)
	assert.Equal(t, "general", room.DisplayName())
	assert.False(t, room.CreatedAt.IsZero())

	member, err := db.IsRoomMember(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, member, "creator must be a member")

	latest, err := db.LatestSequence(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest)
}

func TestCreateRoom_Validation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	_, err := db.CreateRoom(ctx, uuid.Nil, "general", false)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = db.CreateRoom(ctx, uuid.New(), "general", false)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRoom_UnnamedPlaceholder(t *testing.T) {
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")

	room, err := db.CreateRoom(context.Background(), alice.ID, "   ", false)
	require.NoError(t, err)
	assert.Equal(t, "", room.Name)
	assert.Equal(t, models.UnnamedRoom, room.DisplayName())
}

func TestListRooms_NewestFirstAndPrivacy(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	db.now = fixedClock(base, base.Add(time.Minute), base.Add(2*time.Minute))

	first, err := db.CreateRoom(ctx, alice.ID, "first", false)
	require.NoError(t, err)
	secret, err := db.CreateRoom(ctx, alice.ID, "secret", true)
	require.NoError(t, err)
	third, err := db.CreateRoom(ctx, bob.ID, "third", false)
	require.NoError(t, err)

	anonymous, err := db.ListRooms(ctx, nil)
	require.NoError(t, err)
	require.Len(t, anonymous, 2)
	assert.Equal(t, third.ID, anonymous[0].ID)
	assert.Equal(t, first.ID, anonymous[1].ID)

	asAlice, err := db.ListRooms(ctx, &alice.ID)
	require.NoError(t, err)
	require.Len(t, asAlice, 3)
	assert.Equal(t, []uuid.UUID{third.ID, secret.ID, first.ID}, roomIDs(asAlice))

	asBob, err := db.ListRooms(ctx, &bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{third.ID, first.ID}, roomIDs(asBob))
}

func TestCanAccessRoom(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	private, err := db.CreateRoom(ctx, alice.ID, "secret", true, bob.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		viewer *uuid.UUID
		want   bool
	}{
		{"anonymous", nil, false},
		{"creator", &alice.ID, true},
		{"invited member", &bob.ID, true},
		{"outsider", &carol.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := db.CanAccessRoom(ctx, private, tt.viewer)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	require.NoError(t, db.AddRoomMember(ctx, private.ID, carol.ID))
	ok, err := db.CanAccessRoom(ctx, private, &carol.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, db.AddRoomMember(ctx, uuid.New(), carol.ID), ErrNotFound)
}

func TestAppendMessage(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")
	room, err := db.CreateRoom(ctx, alice.ID, "general", false)
	require.NoError(t, err)

	msg, err := db.AppendMessage(ctx, room.ID, alice.ID, "  hello  ", "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, int64(1), msg.Sequence)
	assert.Equal(t, "alice", msg.User.Username)
	assert.False(t, msg.CreatedAt.IsZero())

	stored, err := db.getMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, stored.Content)
	assert.Equal(t, alice.ID, stored.User.ID)

	next, err := db.AppendMessage(ctx, room.ID, alice.ID, "again", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Sequence)

	latest, err := db.LatestSequence(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest)
}

func TestAppendMessage_Rejected(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	db.SetMaxMessageLength(5)
	alice := createUser(t, db, "alice")
	room, err := db.CreateRoom(ctx, alice.ID, "general", false)
	require.NoError(t, err)

	tests := []struct {
		name    string
		roomID  uuid.UUID
		sender  uuid.UUID
		content string
		wantErr error
	}{
		{"empty content", room.ID, alice.ID, "", ErrValidation},
		{"whitespace content", room.ID, alice.ID, " \n\t", ErrValidation},
		{"too long", room.ID, alice.ID, "abcdef", ErrValidation},
		{"missing sender", room.ID, uuid.Nil, "hi", ErrValidation},
		{"unknown sender", room.ID, uuid.New(), "hi", ErrValidation},
		{"missing room", uuid.New(), alice.ID, "hi", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := db.AppendMessage(ctx, tt.roomID, tt.sender, tt.content, "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, msg)
		})
	}

	history, err := db.History(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "rejected sends must not persist anything")

	latest, err := db.LatestSequence(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest, "rejected sends must not consume sequence numbers")
}

func TestAppendMessage_DuplicateClientMessageID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	room, err := db.CreateRoom(ctx, alice.ID, "general", false)
	require.NoError(t, err)

	first, err := db.AppendMessage(ctx, room.ID, alice.ID, "hello", "c-1")
	require.NoError(t, err)

	again, err := db.AppendMessage(ctx, room.ID, alice.ID, "hello", "c-1")
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	// тот же id от другого отправителя это другое сообщение
	other, err := db.AppendMessage(ctx, room.ID, bob.ID, "hey", "c-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	history, err := db.History(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHistory_OrderedAndMonotonic(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")
	room, err := db.CreateRoom(ctx, alice.ID, "general", false)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	// часы уходят назад на третьем сообщении
	db.now = fixedClock(base, base.Add(time.Second), base.Add(-time.Hour), base.Add(2*time.Second))

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := db.AppendMessage(ctx, room.ID, alice.ID, text, "")
		require.NoError(t, err)
	}

	history, err := db.History(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)

	for i, msg := range history {
		assert.Equal(t, int64(i+1), msg.Sequence)
		assert.Equal(t, "alice", msg.User.Username)
		if i > 0 {
			assert.False(t, msg.CreatedAt.Before(history[i-1].CreatedAt), "created_at must be non-decreasing")
		}
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, contents(history))

	since, err := db.HistorySince(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, contents(since))

	_, err = db.History(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendMessage_ConcurrentSequences(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")
	room, err := db.CreateRoom(ctx, alice.ID, "general", false)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.AppendMessage(ctx, room.ID, alice.ID, "msg", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := db.History(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, n)
	for i, msg := range history {
		assert.Equal(t, int64(i+1), msg.Sequence)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	alice := createUser(t, db, "alice")

	byEmail, err := db.FindUserByLogin(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	byName, err := db.FindUserByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	_, err = db.FindUserByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	dup := &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"}
	assert.ErrorIs(t, db.SaveUser(ctx, dup), ErrConflict)

	require.NoError(t, db.UpdateLastSeen(ctx, alice.ID))
	got, err := db.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, got.LastSeenAt.IsZero())
}

func roomIDs(rooms []models.Room) []uuid.UUID {
	ids := make([]uuid.UUID, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	return ids
}

func contents(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}
