package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientMessage(t *testing.T) {
	m, err := Decode([]byte(`{"type":"send-message","data":{"room_key":"ABCD-EFGH-JKLM","content":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, TypeSendMessage, m.Type)

	var data SendMessageData
	require.NoError(t, json.Unmarshal(m.Data, &data))
	assert.Equal(t, "ABCD-EFGH-JKLM", data.RoomKey)
	assert.Equal(t, "hi", data.Content)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestRoomJoinedUsesEmptyArrays(t *testing.T) {
	raw, err := RoomJoined(RoomJoinedData{RoomKey: "K"}).ToJSON()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	data := out["data"].(map[string]any)
	assert.Equal(t, "room-joined", out["type"])
	assert.Equal(t, []any{}, data["participants"])
	assert.Equal(t, []any{}, data["messages"])
	assert.Nil(t, data["expires_at"])
}

func TestErrorEventShape(t *testing.T) {
	raw, err := NewError("room_full", "Room is full").ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","data":{"code":"room_full","message":"Room is full"}}`, string(raw))
}

func TestMatchesOptimistic(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	local := Message{UserID: "u1", Content: "hello", Timestamp: base}

	tests := []struct {
		name   string
		echoed Message
		want   bool
	}{
		{"same within window", Message{ID: "m1", UserID: "u1", Content: "hello", Timestamp: base.Add(2 * time.Second)}, true},
		{"server clock behind", Message{UserID: "u1", Content: "hello", Timestamp: base.Add(-4 * time.Second)}, true},
		{"outside window", Message{UserID: "u1", Content: "hello", Timestamp: base.Add(6 * time.Second)}, false},
		{"other sender", Message{UserID: "u2", Content: "hello", Timestamp: base}, false},
		{"other body", Message{UserID: "u1", Content: "hello!", Timestamp: base}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesOptimistic(local, tt.echoed))
		})
	}
}
