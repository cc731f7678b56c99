package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/casemessage"
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/pkg/config"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/events"
	"github.com/faultmaven/faultmaven/pkg/llm"
	"github.com/faultmaven/faultmaven/pkg/masking"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/faultmaven/faultmaven/pkg/queue"
	"github.com/faultmaven/faultmaven/pkg/services"
	testdb "github.com/faultmaven/faultmaven/test/database"
)

// ────────────────────────────────────────────────────────────
// Test harness
// ────────────────────────────────────────────────────────────

// newAPITestServer wires a Server the way main does: one engine for the
// executor (saves absorbed, CommitTurn persists) and one for the
// synchronous transition endpoints (saves persist), both on the same
// provider.
func newAPITestServer(t *testing.T, provider llm.Provider) (*Server, *database.Client) {
	t.Helper()

	client := testdb.NewTestClient(t)
	cfg := &config.Config{
		Server: config.DefaultServerConfig(),
		Queue:  config.DefaultQueueConfig(),
	}

	publisher := events.NewEventPublisher(client.DB())

	execEngine, err := engine.New(engine.Config{}, engine.Dependencies{
		Provider: provider,
		Store:    queue.NewEngineStateStore(client.Client),
	})
	require.NoError(t, err)
	executor := queue.NewTurnExecutor(client, execEngine, publisher, nil, queue.TurnExecutorConfig{
		PodID: "test-pod",
	})
	t.Cleanup(executor.Stop)

	connManager := events.NewConnectionManager(
		events.NewEventServiceAdapter(services.NewEventService(client.Client)),
		5*time.Second)

	transitionEngine, err := engine.New(engine.Config{}, engine.Dependencies{
		Provider: provider,
		Store:    services.NewEntStateStore(client.Client),
	})
	require.NoError(t, err)

	server := NewServer(cfg, client, executor, connManager)
	server.SetTransitionEngine(transitionEngine)
	server.SetEventPublisher(publisher)
	server.SetMasker(masking.NewService(&config.MaskingConfig{Enabled: true, PatternGroup: "security"}))
	return server, client
}

// doJSON drives a request through the full router, middleware included.
func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Forwarded-User", "sre@example.com")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func createAPITestCase(t *testing.T, server *Server) *ent.FaultCase {
	t.Helper()

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases", models.CreateCaseRequest{
		Title:       "checkout latency spike",
		Description: "p99 checkout latency tripled since the 14:00 deploy",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created ent.FaultCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return &created
}

// apiBlockingProvider parks Chat until released, for tests that need a
// turn held in flight.
type apiBlockingProvider struct {
	releaseCh chan struct{}
	started   chan struct{}
	startOnce sync.Once
	relOnce   sync.Once
}

func newAPIBlockingProvider() *apiBlockingProvider {
	return &apiBlockingProvider{
		releaseCh: make(chan struct{}),
		started:   make(chan struct{}),
	}
}

func (p *apiBlockingProvider) Chat(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.startOnce.Do(func() { close(p.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.releaseCh:
		return &llm.ChatResponse{
			Text:  `{"reply": "Understood."}`,
			Usage: llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}
}

func (p *apiBlockingProvider) Close() error { return nil }

func (p *apiBlockingProvider) release() { p.relOnce.Do(func() { close(p.releaseCh) }) }

func waitForProvider(t *testing.T, p *apiBlockingProvider) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("turn never reached the LLM provider")
	}
}

// ────────────────────────────────────────────────────────────
// Cases
// ────────────────────────────────────────────────────────────

func TestIntegration_CreateCaseMasksAndAttributesOwner(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases", models.CreateCaseRequest{
		Title:       "API gateway rejects requests",
		Description: "The gateway config carries password: hunter2hunter in plain text",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created ent.FaultCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, faultcase.StatusConsulting, created.Status)
	require.NotNil(t, created.Owner)
	assert.Equal(t, "sre@example.com", *created.Owner)

	// The secret never reached the database.
	assert.Contains(t, created.Description, "__MASKED_PASSWORD__")
	assert.NotContains(t, created.Description, "hunter2hunter")
}

func TestIntegration_CreateCaseValidation(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases", models.CreateCaseRequest{
		Description: "no title given",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "title")
}

func TestIntegration_GetCase(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())
	created := createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got ent.FaultCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "checkout latency spike", got.Title)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/cases/no-such-case", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntegration_ListCasesWithStatusFilter(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())
	createAPITestCase(t, server)
	createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/cases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.CaseListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.TotalCount)
	assert.Len(t, list.Cases, 2)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/cases?status=INVESTIGATING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = models.CaseListResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.TotalCount)
	assert.Empty(t, list.Cases)
}

// ────────────────────────────────────────────────────────────
// Messages and turns
// ────────────────────────────────────────────────────────────

func TestIntegration_MessageTurnRoundTrip(t *testing.T) {
	reply := "What error do the checkout logs show?"
	server, _ := newAPITestServer(t, llm.NewFakeProvider(
		llm.FakeResponse{Text: `{"reply": "` + reply + `"}`},
	))
	created := createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/messages",
		SendMessageRequest{Content: "Checkout requests started failing around 14:00."})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted models.MessageAcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, created.ID, accepted.CaseID)
	assert.NotEmpty(t, accepted.MessageID)
	assert.NotEmpty(t, accepted.TurnID)
	assert.Equal(t, "queued", accepted.Status)

	// The turn runs in the background; both conversation sides land once
	// it commits.
	var msgs models.MessageListResponse
	require.Eventually(t, func() bool {
		rec := doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID+"/messages", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		msgs = models.MessageListResponse{}
		if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
			return false
		}
		return len(msgs.Messages) == 2
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, casemessage.RoleUser, msgs.Messages[0].Role)
	assert.Equal(t, casemessage.StatusCompleted, msgs.Messages[0].Status)
	assert.Equal(t, casemessage.RoleAssistant, msgs.Messages[1].Role)
	assert.Equal(t, reply, msgs.Messages[1].Content)

	// The audit trail records the turn under the ID from the 202.
	rec = doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID+"/turns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var turns models.TurnListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turns))
	require.Len(t, turns.Turns, 1)
	assert.Equal(t, accepted.TurnID, turns.Turns[0].ID)
	assert.Equal(t, 1, turns.Turns[0].TurnNumber)

	// The committed investigation state is readable.
	rec = doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stateResp models.CaseStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stateResp))
	assert.Equal(t, "CONSULTING", stateResp.Status)
	require.NotNil(t, stateResp.State)
	assert.Len(t, stateResp.State.TurnHistory, 1)
}

func TestIntegration_MessageToMissingCase(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases/no-such-case/messages",
		SendMessageRequest{Content: "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntegration_StateOfFreshCaseIsNull(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())
	created := createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stateResp models.CaseStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stateResp))
	assert.Equal(t, "CONSULTING", stateResp.Status)
	assert.Nil(t, stateResp.State)
}

func TestIntegration_SecondMessageWhileTurnActive(t *testing.T) {
	provider := newAPIBlockingProvider()
	t.Cleanup(provider.release)

	server, client := newAPITestServer(t, provider)
	created := createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/messages",
		SendMessageRequest{Content: "first message"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForProvider(t, provider)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/messages",
		SendMessageRequest{Content: "second message"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already running")

	// The rejected message was cleaned up, not left queued forever.
	count, err := client.CaseMessage.Query().
		Where(casemessage.CaseIDEQ(created.ID)).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	provider.release()
}

// ────────────────────────────────────────────────────────────
// Consulting transition
// ────────────────────────────────────────────────────────────

func TestIntegration_TransitionProposeConfirm(t *testing.T) {
	proposal := `{"temporal_state": "ONGOING", "urgency_level": "HIGH", "confidence": 0.85, "reasoning": "active incident with user impact"}`
	server, client := newAPITestServer(t, llm.NewFakeProvider(llm.FakeResponse{Text: proposal}))
	created := createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/transition/propose", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var prop models.TransitionProposalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prop))
	assert.Equal(t, "ONGOING", prop.TemporalState)
	assert.Equal(t, "HIGH", prop.UrgencyLevel)
	assert.Equal(t, "MITIGATION_FIRST", prop.Strategy)
	assert.InDelta(t, 0.85, prop.Confidence, 0.001)
	assert.NotEmpty(t, prop.Reasoning)

	// Nothing binds until the user confirms.
	rec = doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var afterPropose ent.FaultCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &afterPropose))
	assert.Equal(t, faultcase.StatusConsulting, afterPropose.Status)

	// The user corrects the urgency downward; the strategy re-derives.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/transition/confirm",
		models.ConfirmTransitionRequest{TemporalState: "ongoing", UrgencyLevel: "medium"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var confirmed models.ConfirmTransitionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, "INVESTIGATING", confirmed.Status)
	assert.Equal(t, "ONGOING", confirmed.TemporalState)
	assert.Equal(t, "MEDIUM", confirmed.UrgencyLevel)
	assert.Equal(t, "ROOT_CAUSE", confirmed.Strategy)

	// Confirmation persisted the state with both milestones set.
	rec = doJSON(t, server, http.MethodGet, "/api/v1/cases/"+created.ID+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stateResp models.CaseStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stateResp))
	assert.Equal(t, "INVESTIGATING", stateResp.Status)
	require.NotNil(t, stateResp.State)
	assert.True(t, stateResp.State.MilestoneDone(state.MilestoneProblemStatementConfirmed))
	assert.True(t, stateResp.State.MilestoneDone(state.MilestoneDecidedToInvestigate))

	// The confirm lease was released.
	leases, err := client.CaseLease.Query().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, leases)

	// The case left CONSULTING, so a second confirm is refused.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/transition/confirm",
		models.ConfirmTransitionRequest{TemporalState: "ONGOING", UrgencyLevel: "HIGH"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIntegration_ConfirmWhileTurnActive(t *testing.T) {
	provider := newAPIBlockingProvider()
	t.Cleanup(provider.release)

	server, _ := newAPITestServer(t, provider)
	created := createAPITestCase(t, server)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/messages",
		SendMessageRequest{Content: "first message"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForProvider(t, provider)

	// The executor holds the case lease for the in-flight turn, so the
	// confirm cannot interleave with it.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/transition/confirm",
		models.ConfirmTransitionRequest{TemporalState: "ONGOING", UrgencyLevel: "HIGH"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "currently running")

	provider.release()
}

// ────────────────────────────────────────────────────────────
// Close
// ────────────────────────────────────────────────────────────

func TestIntegration_CloseCaseLifecycle(t *testing.T) {
	server, client := newAPITestServer(t, llm.NewFakeProvider())
	created := createAPITestCase(t, server)
	ctx := context.Background()

	// A consulting case is not closeable.
	rec := doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "DOCUMENTING or RESOLVED")

	// Walk the case to DOCUMENTING, then close it over the API.
	require.NoError(t, client.FaultCase.UpdateOneID(created.ID).
		SetStatus(faultcase.StatusDocumenting).
		Exec(ctx))

	rec = doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/close", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed ent.FaultCase
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	assert.Equal(t, faultcase.StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	// Closing twice conflicts.
	rec = doJSON(t, server, http.MethodPost, "/api/v1/cases/"+created.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "case is closed")

	// The status change was published for WebSocket delivery and catch-up.
	evts, err := services.NewEventService(client.Client).GetEventsSince(ctx, created.ID, nil, 0, 50)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTypeCaseStatus, evts[0].EventType)
	assert.Equal(t, "CLOSED", evts[0].Payload["status"])
}

// ────────────────────────────────────────────────────────────
// Health and WebSocket
// ────────────────────────────────────────────────────────────

func TestIntegration_HealthEndpoint(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := doJSON(t, server, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		assert.Equal(t, healthStatusHealthy, health.Status)
		assert.Equal(t, healthStatusHealthy, health.Checks["database"].Status)
		assert.Equal(t, healthStatusHealthy, health.Checks["executor"].Status)
	}

	// Every response carries the security headers.
	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestIntegration_HealthReportsLLMConnState(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())
	server.SetLLMConnState(staticConnState("TRANSIENT_FAILURE"))

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, healthStatusDegraded, health.Status)
	assert.Equal(t, healthStatusDegraded, health.Checks["llm"].Status)
	assert.Equal(t, healthStatusHealthy, health.Checks["database"].Status)
}

type staticConnState string

func (s staticConnState) State() string { return string(s) }

func TestIntegration_WebSocketConnects(t *testing.T) {
	server, _ := newAPITestServer(t, llm.NewFakeProvider())

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + ts.URL[len("http"):] + "/api/v1/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}
