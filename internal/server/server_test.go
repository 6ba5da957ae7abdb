package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := log.New(io.Discard)

	srv := NewServer("127.0.0.1:0", logger)
	svc := NewRoomService(srv, logger, quartz.NewReal(), testSettings(), 1)
	srv.SetRoomService(svc)
	go srv.run()

	ts := httptest.NewServer(http.HandlerFunc(srv.handleWebSocket))
	t.Cleanup(func() {
		ts.Close()
		srv.cancel()
	})
	return ts
}

func dialClient(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType MessageType, data interface{}) {
	t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until one of the wanted type arrives. Snapshots
// stream continuously, so intermediate messages are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, msgType MessageType) *Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return &msg
		}
	}
}

func TestWebSocketCreateAndJoinRoom(t *testing.T) {
	ts := newWSTestServer(t)

	host := dialClient(t, ts)
	sendMessage(t, host, MessageTypeCreateRoom, CreateRoomData{Name: "alice"})

	created := readUntil(t, host, MessageTypeRoomCreated)
	var createdData RoomCreatedData
	require.NoError(t, json.Unmarshal(created.Data, &createdData))
	require.Len(t, createdData.RoomCode, 4)
	require.NotEmpty(t, createdData.PlayerID)

	// The creator receives the initial snapshot once seated.
	state := readUntil(t, host, MessageTypeRoomState)
	var stateData RoomStateData
	require.NoError(t, json.Unmarshal(state.Data, &stateData))
	assert.Equal(t, "lobby", stateData.Phase)
	assert.Equal(t, createdData.PlayerID, stateData.HostID)

	guest := dialClient(t, ts)
	sendMessage(t, guest, MessageTypeJoinRoom, JoinRoomData{
		RoomCode: createdData.RoomCode,
		Name:     "bob",
	})

	joined := readUntil(t, guest, MessageTypeRoomJoined)
	var joinedData RoomJoinedData
	require.NoError(t, json.Unmarshal(joined.Data, &joinedData))
	assert.Equal(t, createdData.RoomCode, joinedData.RoomCode)

	// Both members see the two-player roster.
	state = readUntil(t, guest, MessageTypeRoomState)
	require.NoError(t, json.Unmarshal(state.Data, &stateData))
	assert.Len(t, stateData.Players, 2)
}

func TestWebSocketJoinUnknownRoom(t *testing.T) {
	ts := newWSTestServer(t)

	conn := dialClient(t, ts)
	sendMessage(t, conn, MessageTypeJoinRoom, JoinRoomData{RoomCode: "9999", Name: "bob"})

	msg := readUntil(t, conn, MessageTypeError)
	var errData ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &errData))
	assert.Equal(t, "room-not-found", errData.Code)
}

func TestWebSocketRequiresDisplayName(t *testing.T) {
	ts := newWSTestServer(t)

	conn := dialClient(t, ts)
	sendMessage(t, conn, MessageTypeCreateRoom, CreateRoomData{})

	msg := readUntil(t, conn, MessageTypeError)
	var errData ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &errData))
	assert.Equal(t, "invalid_name", errData.Code)
}

func TestHealthEndpoint(t *testing.T) {
	logger := log.New(io.Discard)
	srv := NewServer("127.0.0.1:0", logger)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
