package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/score-tracker/internal/domain"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestChangesReachTableSubscribers(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Table: domain.TableScores}))
	ack := readMessage(t, conn)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, domain.TableScores, ack.Table)

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(domain.TableScores) == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.BroadcastChange(domain.DeleteChange(domain.TableScores, "s1"))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeChange, msg.Type)
	assert.Equal(t, domain.TableScores, msg.Table)

	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	ev, err := domain.DecodeChange(data)
	require.NoError(t, err)
	assert.Equal(t, "s1", ev.OldID())
}

func TestNoticesReachEveryClient(t *testing.T) {
	hub, srv := startHub(t)
	first := dial(t, srv, "?table=players")
	second := dial(t, srv, "")

	require.Eventually(t, func() bool {
		return hub.GetTotalConnections() == 2 && hub.GetSubscriberCount(domain.TablePlayers) == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.BroadcastNotice(domain.Success("Player added", "Ann has been added to the player list."))

	for _, conn := range []*gorilla.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeNotice, msg.Type)
		data, ok := msg.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Player added", data["title"])
	}
}

func TestClientProtocolErrors(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Table: "users"}))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte("{not json")))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestUnregisterOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?table=games")

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(domain.TableGames) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.GetTotalConnections() == 0 && hub.GetSubscriberCount(domain.TableGames) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueuedMessagesArriveAsSeparateFrames(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?table=scores")

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(domain.TableScores) == 1
	}, 5*time.Second, 10*time.Millisecond)

	for _, id := range []string{"s1", "s2", "s3"} {
		hub.BroadcastChange(domain.DeleteChange(domain.TableScores, id))
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		msg := readMessage(t, conn)
		require.Equal(t, MessageTypeChange, msg.Type)
		data, err := json.Marshal(msg.Data)
		require.NoError(t, err)
		ev, err := domain.DecodeChange(data)
		require.NoError(t, err)
		assert.Equal(t, id, ev.OldID())
	}
}

func TestUnsubscribeAndUnknownRequests(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?table=games&table=teams")

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(domain.TableGames) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeUnsubscribe, Table: domain.TableGames}))
	ack := readMessage(t, conn)
	assert.Equal(t, "unsubscribed", ack.Type)
	assert.Equal(t, domain.TableGames, ack.Table)
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(domain.TableGames) == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeUnsubscribe, Table: "teams"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "shout"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}
