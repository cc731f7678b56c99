package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/ent/turninteraction"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/services"
	testdb "github.com/faultmaven/faultmaven/test/database"
)

// streamingTestEnv wires publisher, listener, manager, and a WebSocket
// server against a real PostgreSQL schema. The schema comes from
// SharedTestDB so tests can attach additional replica pools to it.
type streamingTestEnv struct {
	shared       *testdb.SharedTestDB
	dbClient     *database.Client
	publisher    *EventPublisher
	eventService *services.EventService
	manager      *ConnectionManager
	listener     *NotifyListener
	server       *httptest.Server
	caseID       string // satisfies the FK on the events table
	channel      string // case:<caseID>
}

func setupStreamingTest(t *testing.T) *streamingTestEnv {
	t.Helper()
	ctx := context.Background()

	shared := testdb.NewSharedTestDB(t)
	dbClient := shared.NewClient(t)

	env := &streamingTestEnv{
		shared:       shared,
		dbClient:     dbClient,
		publisher:    NewEventPublisher(dbClient.DB()),
		eventService: services.NewEventService(dbClient.Client),
		caseID:       uuid.New().String(),
	}
	env.channel = CaseChannel(env.caseID)

	_, err := dbClient.FaultCase.Create().
		SetID(env.caseID).
		SetTitle("checkout latency spike").
		SetDescription("p99 latency tripled after the 14:00 deploy").
		Save(ctx)
	require.NoError(t, err)

	env.manager = NewConnectionManager(NewEventServiceAdapter(env.eventService), 5*time.Second)

	// The listener's dedicated connection takes the base string without a
	// search_path: NOTIFY/LISTEN is database-level, not schema-level.
	env.listener = NewNotifyListener(shared.BaseConnString(), env.manager)
	require.NoError(t, env.listener.Start(ctx))
	env.manager.SetListener(env.listener)
	t.Cleanup(func() { env.listener.Stop(context.Background()) })

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		env.manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(func() { env.server.Close() })

	return env
}

// connectWS dials the test server and consumes connection.established.
func (env *streamingTestEnv) connectWS(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+env.server.URL[len("http"):], nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	msg := readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "connection.established", msg["type"])
	return conn
}

func writeClientMessage(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, raw))
}

func readJSONTimeout(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// subscribeAndWait connects, subscribes, and polls until the LISTEN has
// landed on the listener's dedicated connection.
func (env *streamingTestEnv) subscribeAndWait(t *testing.T, channel string) *websocket.Conn {
	t.Helper()
	conn := env.connectWS(t)

	writeClientMessage(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	msg := readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "subscription.confirmed", msg["type"])

	require.Eventually(t, func() bool {
		return env.listener.isListening(channel)
	}, 2*time.Second, 10*time.Millisecond, "LISTEN did not propagate for channel %s", channel)

	return conn
}

// --- Tests ---

func TestIntegration_PublisherPersistsAndNotifies(t *testing.T) {
	env := setupStreamingTest(t)
	ctx := context.Background()

	err := env.publisher.PublishTurnStarted(ctx, env.caseID, TurnStartedPayload{
		Type:      EventTypeTurnStarted,
		CaseID:    env.caseID,
		MessageID: "msg-1",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	err = env.publisher.PublishTurnCompleted(ctx, env.caseID, TurnCompletedPayload{
		Type:       EventTypeTurnCompleted,
		CaseID:     env.caseID,
		TurnID:     uuid.New().String(),
		MessageID:  "msg-1",
		TurnNumber: 1,
		Outcome:    turninteraction.OutcomeProgress,
		Phase:      "INTAKE",
		Reply:      "Tell me when the latency started.",
		CaseStatus: faultcase.StatusConsulting,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	events, err := env.eventService.GetEventsSince(ctx, env.caseID, nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, env.caseID, events[0].CaseID)
	assert.Equal(t, EventTypeTurnStarted, events[0].EventType)
	assert.Equal(t, EventTypeTurnStarted, events[0].Payload["type"])
	assert.Equal(t, "msg-1", events[0].Payload["message_id"])

	assert.Equal(t, EventTypeTurnCompleted, events[1].EventType)
	assert.Equal(t, "Tell me when the latency started.", events[1].Payload["reply"])
	assert.Equal(t, float64(1), events[1].Payload["turn_number"])

	assert.Greater(t, events[1].ID, events[0].ID, "event ids must increase")
}

func TestIntegration_GlobalCopyNotPersisted(t *testing.T) {
	env := setupStreamingTest(t)
	ctx := context.Background()

	// Case lifecycle events mirror onto the global channel, but only the
	// case-channel copy may land as a row.
	err := env.publisher.PublishCaseStatus(ctx, env.caseID, CaseStatusPayload{
		Type:      EventTypeCaseStatus,
		CaseID:    env.caseID,
		Status:    faultcase.StatusInvestigating,
		Title:     "checkout latency spike",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	events, err := env.eventService.GetEventsSince(ctx, "", nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 1, "the global copy must not add a second row")
	assert.Equal(t, env.caseID, events[0].CaseID)
	assert.Equal(t, EventTypeCaseStatus, events[0].EventType)
}

func TestIntegration_EndToEnd_PublishToWebSocket(t *testing.T) {
	env := setupStreamingTest(t)

	conn := env.subscribeAndWait(t, env.channel)

	err := env.publisher.PublishTurnStarted(context.Background(), env.caseID, TurnStartedPayload{
		Type:      EventTypeTurnStarted,
		CaseID:    env.caseID,
		MessageID: "msg-ws-1",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	// pg_notify → listener → manager → this socket.
	msg := readJSONTimeout(t, conn, 5*time.Second)
	assert.Equal(t, EventTypeTurnStarted, msg["type"])
	assert.Equal(t, "msg-ws-1", msg["message_id"])
	assert.Equal(t, env.caseID, msg["case_id"])
	assert.NotNil(t, msg["db_event_id"], "persisted events carry the catch-up cursor")
}

func TestIntegration_CrossReplicaDelivery(t *testing.T) {
	env := setupStreamingTest(t)
	ctx := context.Background()

	// A second replica: its own pool onto the same schema, its own
	// publisher. Events it publishes must reach clients connected to the
	// first replica's manager via NOTIFY, not shared memory.
	replicaB := env.shared.NewClient(t)
	publisherB := NewEventPublisher(replicaB.DB())

	conn := env.subscribeAndWait(t, env.channel)

	err := publisherB.PublishTurnStarted(ctx, env.caseID, TurnStartedPayload{
		Type:      EventTypeTurnStarted,
		CaseID:    env.caseID,
		MessageID: "msg-replica-b",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	msg := readJSONTimeout(t, conn, 5*time.Second)
	assert.Equal(t, EventTypeTurnStarted, msg["type"])
	assert.Equal(t, "msg-replica-b", msg["message_id"])

	// The row is visible through the first replica's event service too.
	events, err := env.eventService.GetEventsSince(ctx, env.caseID, nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "msg-replica-b", events[0].Payload["message_id"])
}

func TestIntegration_GlobalChannelDelivery(t *testing.T) {
	env := setupStreamingTest(t)

	caseConn := env.subscribeAndWait(t, env.channel)
	globalConn := env.subscribeAndWait(t, GlobalCasesChannel)

	err := env.publisher.PublishCaseStatus(context.Background(), env.caseID, CaseStatusPayload{
		Type:      EventTypeCaseStatus,
		CaseID:    env.caseID,
		Status:    faultcase.StatusInvestigating,
		Title:     "checkout latency spike",
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	// The persisted case-channel copy carries the catch-up cursor.
	caseMsg := readJSONTimeout(t, caseConn, 5*time.Second)
	assert.Equal(t, EventTypeCaseStatus, caseMsg["type"])
	assert.Equal(t, "INVESTIGATING", caseMsg["status"])
	assert.NotNil(t, caseMsg["db_event_id"])

	// The global copy is transient: same payload, no cursor.
	globalMsg := readJSONTimeout(t, globalConn, 5*time.Second)
	assert.Equal(t, EventTypeCaseStatus, globalMsg["type"])
	assert.Equal(t, env.caseID, globalMsg["case_id"])
	_, hasCursor := globalMsg["db_event_id"]
	assert.False(t, hasCursor, "transient global copy should not carry db_event_id")
}

func TestIntegration_CatchupFromRealDB(t *testing.T) {
	env := setupStreamingTest(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := env.publisher.PublishTurnStarted(ctx, env.caseID, TurnStartedPayload{
			Type:      EventTypeTurnStarted,
			CaseID:    env.caseID,
			MessageID: uuid.New().String(),
			Timestamp: time.Now().Format(time.RFC3339Nano),
		})
		require.NoError(t, err)
	}

	allEvents, err := env.eventService.GetEventsSince(ctx, env.caseID, nil, 0, 100)
	require.NoError(t, err)
	require.Len(t, allEvents, 3)

	// A freshly subscribing client (a reconnect, from the server's point
	// of view) gets every prior event replayed before live traffic.
	conn := env.connectWS(t)
	writeClientMessage(t, conn, ClientMessage{Action: "subscribe", Channel: env.channel})
	msg := readJSONTimeout(t, conn, 5*time.Second)
	require.Equal(t, "subscription.confirmed", msg["type"])

	for i := 0; i < 3; i++ {
		msg = readJSONTimeout(t, conn, 5*time.Second)
		assert.Equal(t, EventTypeTurnStarted, msg["type"])
		assert.Equal(t, float64(allEvents[i].ID), msg["db_event_id"])
	}

	// Explicit catch-up from the first id replays only what follows it.
	catchupFrom := allEvents[0].ID
	writeClientMessage(t, conn, ClientMessage{
		Action:      "catchup",
		Channel:     env.channel,
		LastEventID: &catchupFrom,
	})
	for i := 1; i < 3; i++ {
		msg = readJSONTimeout(t, conn, 5*time.Second)
		assert.Equal(t, float64(allEvents[i].ID), msg["db_event_id"])
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	assert.Error(t, err, "should not receive more messages after catchup")
}
