package chatclient

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func msg(seq int64) Message {
	return Message{ID: uuid.New(), Sequence: seq}
}

func sequences(messages []Message) []int64 {
	out := make([]int64, len(messages))
	for i, m := range messages {
		out[i] = m.Sequence
	}
	return out
}

func TestSplice(t *testing.T) {
	m1, m2, m3, m4 := msg(1), msg(2), msg(3), msg(4)

	tests := []struct {
		name     string
		history  []Message
		buffered []Message
		want     []int64
	}{
		{"empty", nil, nil, []int64{}},
		{"history only", []Message{m1, m2}, nil, []int64{1, 2}},
		{"buffer only", nil, []Message{m3}, []int64{3}},
		{"overlap deduplicated", []Message{m1, m2, m3}, []Message{m3, m4}, []int64{1, 2, 3, 4}},
		{"buffer older than history tail", []Message{m1, m3}, []Message{m2}, []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sequences(splice(tt.history, tt.buffered)))
		})
	}
}

func TestOnMessageDeduplicates(t *testing.T) {
	room := uuid.New()
	c := &Controller{
		seen:    make(map[uuid.UUID]bool),
		sends:   make(map[string]chan Message),
		pending: make(map[string]chan reply),
		events:  make(chan Event, 8),
		active:  &room,
	}
	c.log = zap.NewNop()

	m := Message{ID: uuid.New(), RoomID: room, Sequence: 7}
	c.onMessage(m)
	c.onMessage(m)
	c.onMessage(Message{ID: uuid.New(), RoomID: uuid.New(), Sequence: 1})

	require.Len(t, c.Messages(), 1)
	assert.Equal(t, int64(7), c.LastSequence())
	assert.Len(t, c.events, 1)
}

func TestOnMessageBuffersWhileJoining(t *testing.T) {
	room := uuid.New()
	c := &Controller{
		seen:    make(map[uuid.UUID]bool),
		sends:   make(map[string]chan Message),
		pending: make(map[string]chan reply),
		events:  make(chan Event, 8),
		joining: &joinState{roomID: room},
	}
	c.log = zap.NewNop()

	c.onMessage(Message{ID: uuid.New(), RoomID: room, Sequence: 1})

	assert.Empty(t, c.Messages())
	assert.Len(t, c.joining.buffer, 1)
	assert.Empty(t, c.events)
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
		ok   bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?token=abc", true},
		{"https://chat.example.com/", "wss://chat.example.com/ws?token=abc", true},
		{"ws://host", "ws://host/ws?token=abc", true},
		{"ftp://host", "", false},
	}

	for _, tt := range tests {
		got, err := wsURL(tt.base, "abc")
		if !tt.ok {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
