package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/casemessage"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/events"
	"github.com/faultmaven/faultmaven/pkg/llm"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/faultmaven/faultmaven/pkg/services"
	testdb "github.com/faultmaven/faultmaven/test/database"
)

// ────────────────────────────────────────────────────────────
// Submit tests (slot reservation, no DB needed for rejects)
// ────────────────────────────────────────────────────────────

func TestTurnExecutor_Submit_RejectsWhenStopped(t *testing.T) {
	executor := &TurnExecutor{
		stopped:     true,
		activeExecs: make(map[string]context.CancelFunc),
	}

	_, err := executor.Submit(context.Background(), TurnInput{
		Case:    &ent.FaultCase{ID: "case-1"},
		Message: &ent.CaseMessage{ID: "msg-1"},
	})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestTurnExecutor_Submit_RejectsActiveTurn(t *testing.T) {
	executor := &TurnExecutor{
		execConfig:  TurnExecutorConfig{MaxConcurrentTurns: 4, TurnTimeout: time.Minute},
		activeExecs: map[string]context.CancelFunc{"case-1": func() {}},
	}

	_, err := executor.Submit(context.Background(), TurnInput{
		Case:    &ent.FaultCase{ID: "case-1"},
		Message: &ent.CaseMessage{ID: "msg-1"},
	})
	assert.ErrorIs(t, err, ErrTurnActive)
}

func TestTurnExecutor_Submit_RejectsAtCapacity(t *testing.T) {
	executor := &TurnExecutor{
		execConfig: TurnExecutorConfig{MaxConcurrentTurns: 2, TurnTimeout: time.Minute},
		activeExecs: map[string]context.CancelFunc{
			"case-1": func() {},
			"case-2": func() {},
		},
	}

	_, err := executor.Submit(context.Background(), TurnInput{
		Case:    &ent.FaultCase{ID: "case-3"},
		Message: &ent.CaseMessage{ID: "msg-3"},
	})
	assert.ErrorIs(t, err, ErrQueueFull)
}

// ────────────────────────────────────────────────────────────
// Cancellation
// ────────────────────────────────────────────────────────────

func TestTurnExecutor_CancelTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	executor := &TurnExecutor{
		activeExecs: map[string]context.CancelFunc{"case-1": cancel},
	}

	assert.False(t, executor.CancelTurn("case-other"))

	assert.True(t, executor.CancelTurn("case-1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

// ────────────────────────────────────────────────────────────
// Config defaults
// ────────────────────────────────────────────────────────────

func TestTurnExecutorConfig_ApplyDefaults(t *testing.T) {
	cfg := TurnExecutorConfig{}
	cfg.applyDefaults()

	assert.Equal(t, 8, cfg.MaxConcurrentTurns)
	assert.Equal(t, 120*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.OrphanSweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.TurnTimeout)
	assert.Equal(t, 5*time.Minute, cfg.GracefulShutdownTimeout)
}

func TestTurnExecutorConfig_ApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := TurnExecutorConfig{
		MaxConcurrentTurns: 2,
		TurnTimeout:        time.Second,
	}
	cfg.applyDefaults()

	assert.Equal(t, 2, cfg.MaxConcurrentTurns)
	assert.Equal(t, time.Second, cfg.TurnTimeout)
	assert.Equal(t, 120*time.Second, cfg.LeaseTTL)
}

// ────────────────────────────────────────────────────────────
// Escalation reason wording
// ────────────────────────────────────────────────────────────

func TestEscalationReason(t *testing.T) {
	tests := []struct {
		name string
		st   *state.InvestigationState
		want string
	}{
		{
			name: "nil state falls back to loopback budget",
			st:   nil,
			want: "loop-back budget exhausted",
		},
		{
			name: "no degraded mode falls back to loopback budget",
			st:   state.New(),
			want: "loop-back budget exhausted",
		},
		{
			name: "degraded mode carries its own reason",
			st: func() *state.InvestigationState {
				s := state.New()
				s.DegradedMode = &state.DegradedModeData{
					EnteredAtTurn: 7,
					Reason:        "3 turns without progress",
				}
				return s
			}(),
			want: "3 turns without progress",
		},
		{
			name: "degraded mode without reason falls back",
			st: func() *state.InvestigationState {
				s := state.New()
				s.DegradedMode = &state.DegradedModeData{EnteredAtTurn: 7}
				return s
			}(),
			want: "loop-back budget exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escalationReason(tt.st))
		})
	}
}

// ────────────────────────────────────────────────────────────
// Engine state store
// ────────────────────────────────────────────────────────────

func TestEngineStateStore_SaveAbsorbed(t *testing.T) {
	client := testdb.NewTestClient(t)
	caseRow := createQueueTestCase(t, client)
	store := NewEngineStateStore(client.Client)

	st := state.New()
	st.ProblemStatement = "checkout failures"
	require.NoError(t, store.Save(context.Background(), caseRow.ID, st))

	// Nothing reaches the database: CommitTurn owns state persistence.
	loaded, err := store.Load(context.Background(), caseRow.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestEngineStateStore_LoadReadsPersistedState(t *testing.T) {
	client := testdb.NewTestClient(t)
	caseRow := createQueueTestCase(t, client)
	store := NewEngineStateStore(client.Client)

	err := client.FaultCase.UpdateOneID(caseRow.ID).
		SetInvestigationState(`{"problem_statement": "checkout failures"}`).
		Exec(context.Background())
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), caseRow.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "checkout failures", loaded.ProblemStatement)
}

// ────────────────────────────────────────────────────────────
// Test helpers
// ────────────────────────────────────────────────────────────

// newQueueTestExecutor builds an executor on a per-test schema. The
// engine runs against the given provider with the absorbed state store,
// exactly as in production.
func newQueueTestExecutor(t *testing.T, provider llm.Provider, cfg TurnExecutorConfig) (*TurnExecutor, *database.Client) {
	t.Helper()

	client := testdb.NewTestClient(t)
	if cfg.PodID == "" {
		cfg.PodID = "test-pod"
	}

	eng, err := engine.New(engine.Config{}, engine.Dependencies{
		Provider: provider,
		Store:    NewEngineStateStore(client.Client),
	})
	require.NoError(t, err)

	executor := NewTurnExecutor(client, eng, events.NewEventPublisher(client.DB()), nil, cfg)
	t.Cleanup(executor.Stop)
	return executor, client
}

func createQueueTestCase(t *testing.T, client *database.Client) *ent.FaultCase {
	t.Helper()

	caseRow, err := services.NewCaseService(client.Client).CreateCase(context.Background(), models.CreateCaseRequest{
		Title:       "checkout latency spike",
		Description: "p99 checkout latency tripled since the 14:00 deploy",
		Owner:       "sre@example.com",
	})
	require.NoError(t, err)
	return caseRow
}

func queueTestMessage(t *testing.T, client *database.Client, caseID, content string) *ent.CaseMessage {
	t.Helper()

	msg, err := services.NewMessageService(client.Client).AddUserMessage(context.Background(), models.AddMessageRequest{
		CaseID:  caseID,
		Content: content,
		Author:  "sre@example.com",
	})
	require.NoError(t, err)
	return msg
}

func getQueueMessage(t *testing.T, client *database.Client, messageID string) *ent.CaseMessage {
	t.Helper()

	msg, err := client.CaseMessage.Get(context.Background(), messageID)
	require.NoError(t, err)
	return msg
}

// blockingProvider parks Chat until released, for tests that need a
// turn held in flight. started closes when the first call arrives.
type blockingProvider struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (p *blockingProvider) Chat(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.once.Do(func() { close(p.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.release:
		return &llm.ChatResponse{
			Text:  `{"reply": "Understood."}`,
			Usage: llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}
}

func (p *blockingProvider) Close() error { return nil }

// waitForTurnStart blocks until the in-flight turn reaches the provider,
// so cancellation tests hit the LLM wait rather than an earlier step.
func waitForTurnStart(t *testing.T, p *blockingProvider) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("turn never reached the LLM provider")
	}
}

// newStuckProcessingMessage inserts a message already in processing,
// backdated so the orphan sweep sees it as stuck.
func newStuckProcessingMessage(t *testing.T, client *database.Client, caseID string, age time.Duration) *ent.CaseMessage {
	t.Helper()

	msg, err := client.CaseMessage.Create().
		SetID(uuid.New().String()).
		SetCaseID(caseID).
		SetRole(casemessage.RoleUser).
		SetContent("stuck message").
		SetStatus(casemessage.StatusProcessing).
		SetCreatedAt(time.Now().Add(-age)).
		Save(context.Background())
	require.NoError(t, err)
	return msg
}
