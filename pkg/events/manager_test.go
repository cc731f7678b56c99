package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCatchupQuerier implements CatchupQuerier for tests. Unlike the real
// adapter it ignores the channel, but it honors the cursor and limit.
type mockCatchupQuerier struct {
	events []CatchupEvent
	err    error
}

func (m *mockCatchupQuerier) GetCatchupEvents(_ context.Context, _ string, sinceID, limit int) ([]CatchupEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []CatchupEvent
	for _, evt := range m.events {
		if evt.ID > sinceID {
			out = append(out, evt)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestManager(t *testing.T, querier CatchupQuerier) (*ConnectionManager, *httptest.Server) {
	t.Helper()

	manager := NewConnectionManager(querier, 5*time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() { server.Close() })
	return manager, server
}

func setupTestManager(t *testing.T) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	return newTestManager(t, &mockCatchupQuerier{})
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// waitForSubscribers polls until the channel has the expected subscriber count.
func waitForSubscribers(t *testing.T, manager *ConnectionManager, channel string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return manager.subscriberCount(channel) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionManager_ConnectionEstablished(t *testing.T) {
	_, server := setupTestManager(t)
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestConnectionManager_Subscribe(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:test-123"})

	msg := readJSON(t, conn)
	assert.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, "case:test-123", msg["channel"])

	waitForSubscribers(t, manager, "case:test-123", 1)
	assert.Equal(t, 1, manager.ActiveConnections())
}

func TestConnectionManager_SubscribeRejectsUnknownChannel(t *testing.T) {
	_, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "topics:everything"})

	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, `channel must be "cases" or "case:{case_id}"`, msg["message"])
}

func TestConnectionManager_SubscribeGlobalChannel(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: GlobalCasesChannel})

	msg := readJSON(t, conn)
	assert.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, "cases", msg["channel"])

	waitForSubscribers(t, manager, GlobalCasesChannel, 1)
}

func TestConnectionManager_SubscribeDeliversAutoCatchup(t *testing.T) {
	// A subscriber joining late receives prior events right after the
	// confirmation, with db_event_id injected from the row id.
	querier := &mockCatchupQuerier{
		events: []CatchupEvent{
			{ID: 10, Payload: map[string]interface{}{"type": "turn.started", "case_id": "c1"}},
			{ID: 11, Payload: map[string]interface{}{"type": "turn.completed", "case_id": "c1"}},
		},
	}
	_, server := newTestManager(t, querier)

	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:c1"})
	readJSON(t, conn) // subscription.confirmed

	first := readJSON(t, conn)
	assert.Equal(t, "turn.started", first["type"])
	assert.Equal(t, float64(10), first["db_event_id"])

	second := readJSON(t, conn)
	assert.Equal(t, "turn.completed", second["type"])
	assert.Equal(t, float64(11), second["db_event_id"])
}

func TestConnectionManager_Broadcast(t *testing.T) {
	manager, server := setupTestManager(t)

	conn1 := connectWS(t, server)
	conn2 := connectWS(t, server)
	readJSON(t, conn1) // connection.established
	readJSON(t, conn2)

	channel := "case:broadcast-test"
	writeJSON(t, conn1, ClientMessage{Action: "subscribe", Channel: channel})
	writeJSON(t, conn2, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn1) // subscription.confirmed
	readJSON(t, conn2)

	waitForSubscribers(t, manager, channel, 2)

	payload, _ := json.Marshal(map[string]string{"type": "test", "data": "hello"})
	manager.Broadcast(channel, payload)

	msg1 := readJSON(t, conn1)
	msg2 := readJSON(t, conn2)
	assert.Equal(t, "hello", msg1["data"])
	assert.Equal(t, "hello", msg2["data"])
}

func TestConnectionManager_BroadcastToNonExistentChannel(t *testing.T) {
	manager, _ := setupTestManager(t)

	// Should not panic.
	payload, _ := json.Marshal(map[string]string{"type": "test"})
	manager.Broadcast("case:nobody-home", payload)
}

func TestConnectionManager_PingPong(t *testing.T) {
	_, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "ping"})

	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_CatchupFromCursor(t *testing.T) {
	querier := &mockCatchupQuerier{
		events: []CatchupEvent{
			{ID: 10, Payload: map[string]interface{}{"type": "turn.started", "seq": float64(1)}},
			{ID: 11, Payload: map[string]interface{}{"type": "turn.completed", "seq": float64(2)}},
			{ID: 12, Payload: map[string]interface{}{"type": "case.status_changed", "seq": float64(3)}},
		},
	}
	_, server := newTestManager(t, querier)

	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:catchup-test"})
	readJSON(t, conn) // subscription.confirmed
	for i := 0; i < 3; i++ {
		readJSON(t, conn) // auto catch-up replay
	}

	// Reconnect-style catch-up from a cursor: only events after it arrive.
	lastEventID := 11
	writeJSON(t, conn, ClientMessage{Action: "catchup", Channel: "case:catchup-test", LastEventID: &lastEventID})

	msg := readJSON(t, conn)
	assert.Equal(t, "case.status_changed", msg["type"])
	assert.Equal(t, float64(12), msg["db_event_id"])

	// Nothing else follows.
	readCtx, readCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	assert.Error(t, err, "no further events expected after catch-up")
}

func TestConnectionManager_CatchupOverflow(t *testing.T) {
	manyEvents := make([]CatchupEvent, catchupLimit+5)
	for i := range manyEvents {
		manyEvents[i] = CatchupEvent{
			ID:      i + 1,
			Payload: map[string]interface{}{"type": "turn.completed", "seq": i},
		}
	}
	_, server := newTestManager(t, &mockCatchupQuerier{events: manyEvents})

	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	// The auto catch-up on subscribe hits the overflow path.
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:overflow-test"})
	readJSON(t, conn) // subscription.confirmed

	var overflowReceived bool
	for i := 0; i < catchupLimit+5; i++ {
		msg := readJSON(t, conn)
		if msg["type"] == "catchup.overflow" {
			overflowReceived = true
			assert.Equal(t, true, msg["has_more"])
			break
		}
	}
	assert.True(t, overflowReceived, "expected catchup.overflow message")
}

func TestConnectionManager_CatchupErrorKeepsConnectionUsable(t *testing.T) {
	_, server := newTestManager(t, &mockCatchupQuerier{err: fmt.Errorf("database unreachable")})

	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:err-test"})
	readJSON(t, conn) // subscription.confirmed; auto catch-up fails silently

	writeJSON(t, conn, ClientMessage{Action: "ping"})
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_Unsubscribe(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	channel := "case:unsub-test"
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn) // subscription.confirmed
	waitForSubscribers(t, manager, channel, 1)

	writeJSON(t, conn, ClientMessage{Action: "unsubscribe", Channel: channel})
	waitForSubscribers(t, manager, channel, 0)

	payload, _ := json.Marshal(map[string]string{"type": "should-not-receive"})
	manager.Broadcast(channel, payload)

	readCtx, readCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	assert.Error(t, err, "should not receive message after unsubscribe")
}

func TestConnectionManager_MultipleChannels(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:ch1"})
	readJSON(t, conn) // subscription.confirmed
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "case:ch2"})
	readJSON(t, conn) // subscription.confirmed

	waitForSubscribers(t, manager, "case:ch1", 1)
	waitForSubscribers(t, manager, "case:ch2", 1)

	payload, _ := json.Marshal(map[string]string{"type": "test", "channel": "ch1"})
	manager.Broadcast("case:ch1", payload)
	msg := readJSON(t, conn)
	assert.Equal(t, "ch1", msg["channel"])

	payload2, _ := json.Marshal(map[string]string{"type": "test", "channel": "ch2"})
	manager.Broadcast("case:ch2", payload2)
	msg2 := readJSON(t, conn)
	assert.Equal(t, "ch2", msg2["channel"])
}

func TestConnectionManager_ConcurrentBroadcast(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	channel := "case:concurrent-test"
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn) // subscription.confirmed
	waitForSubscribers(t, manager, channel, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]interface{}{"type": "concurrent", "idx": idx})
			manager.Broadcast(channel, payload)
		}(i)
	}
	wg.Wait()

	received := 0
	var firstErr error
	for i := 0; i < 20; i++ {
		readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			firstErr = err
			break
		}
		received++
	}
	assert.Equal(t, 20, received, "should receive all 20 broadcast messages; first error: %v", firstErr)
}

func TestConnectionManager_DisconnectCleansUp(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	channel := "case:cleanup-test"
	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	readJSON(t, conn) // subscription.confirmed
	waitForSubscribers(t, manager, channel, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))

	waitForSubscribers(t, manager, channel, 0)
	require.Eventually(t, func() bool {
		return manager.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
