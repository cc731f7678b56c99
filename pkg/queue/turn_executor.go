package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/ent/turninteraction"
	"github.com/faultmaven/faultmaven/pkg/database"
	"github.com/faultmaven/faultmaven/pkg/engine"
	"github.com/faultmaven/faultmaven/pkg/engine/state"
	"github.com/faultmaven/faultmaven/pkg/events"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/faultmaven/faultmaven/pkg/notify"
	"github.com/faultmaven/faultmaven/pkg/services"
)

// ────────────────────────────────────────────────────────────
// Input and config types
// ────────────────────────────────────────────────────────────

// TurnInput groups everything needed to run one turn. Both rows are
// loaded by the handler before submission.
type TurnInput struct {
	Case    *ent.FaultCase
	Message *ent.CaseMessage
}

// TurnExecutorConfig holds the executor's runtime knobs. Zero values
// fall back to the defaults noted per field.
type TurnExecutorConfig struct {
	PodID                   string        // lease holder prefix, unique per replica
	MaxConcurrentTurns      int           // global in-flight turn cap (default: 8)
	LeaseTTL                time.Duration // case lease lifetime (default: 120s)
	HeartbeatInterval       time.Duration // lease renewal frequency (default: 30s)
	OrphanSweepInterval     time.Duration // expired lease / stuck message sweep (default: 60s)
	TurnTimeout             time.Duration // max duration for one turn (default: 5 minutes)
	GracefulShutdownTimeout time.Duration // drain window before cancelling turns (default: 5 minutes)
}

func (c *TurnExecutorConfig) applyDefaults() {
	if c.MaxConcurrentTurns <= 0 {
		c.MaxConcurrentTurns = 8
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 120 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.OrphanSweepInterval <= 0 {
		c.OrphanSweepInterval = 60 * time.Second
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 5 * time.Minute
	}
	if c.GracefulShutdownTimeout <= 0 {
		c.GracefulShutdownTimeout = 5 * time.Minute
	}
}

// ────────────────────────────────────────────────────────────
// Engine state store
// ────────────────────────────────────────────────────────────

// turnStore is the StateStore the engine runs with under the executor.
// Loads read the persisted case state; saves are absorbed, because the
// executor commits the post-turn state itself, in the same transaction
// as the turn record and the case row update (TurnService.CommitTurn).
type turnStore struct {
	loader *services.EntStateStore
}

// NewEngineStateStore returns the StateStore to construct the engine
// with when its turns run under a TurnExecutor.
func NewEngineStateStore(client *ent.Client) engine.StateStore {
	return &turnStore{loader: services.NewEntStateStore(client)}
}

func (s *turnStore) Load(ctx context.Context, caseID string) (*state.InvestigationState, error) {
	return s.loader.Load(ctx, caseID)
}

func (s *turnStore) Save(context.Context, string, *state.InvestigationState) error {
	return nil
}

// ────────────────────────────────────────────────────────────
// TurnExecutor
// ────────────────────────────────────────────────────────────

// TurnExecutor handles asynchronous turn processing. It enforces one
// in-flight turn per case on this pod (the database lease covers other
// replicas), supports cancellation, and drains gracefully on shutdown.
type TurnExecutor struct {
	// Dependencies
	db         *database.Client
	engine     *engine.Engine
	publisher  *events.EventPublisher
	notifier   *notify.Service
	execConfig TurnExecutorConfig

	// Services
	caseService    *services.CaseService
	messageService *services.MessageService
	turnService    *services.TurnService
	leaseService   *services.LeaseService

	// Active turn tracking (for cancellation + shutdown)
	mu          sync.RWMutex
	activeExecs map[string]context.CancelFunc // caseID → cancel
	wg          sync.WaitGroup                // tracks active goroutines for shutdown
	stopped     bool                          // reject new submissions after Stop()
	stopCh      chan struct{}                 // stops the orphan sweeper

	orphans orphanState
}

// NewTurnExecutor creates a new TurnExecutor. The engine must have been
// constructed with the store from NewEngineStateStore so that turn
// state reaches the database through CommitTurn only. notifier may be
// nil when Slack is not configured.
func NewTurnExecutor(
	db *database.Client,
	eng *engine.Engine,
	publisher *events.EventPublisher,
	notifier *notify.Service,
	execConfig TurnExecutorConfig,
) *TurnExecutor {
	execConfig.applyDefaults()
	return &TurnExecutor{
		db:             db,
		engine:         eng,
		publisher:      publisher,
		notifier:       notifier,
		execConfig:     execConfig,
		caseService:    services.NewCaseService(db.Client),
		messageService: services.NewMessageService(db.Client),
		turnService:    services.NewTurnService(db.Client),
		leaseService:   services.NewLeaseService(db.Client, execConfig.LeaseTTL),
		activeExecs:    make(map[string]context.CancelFunc),
		stopCh:         make(chan struct{}),
	}
}

// ────────────────────────────────────────────────────────────
// Submit — entry point for turn processing
// ────────────────────────────────────────────────────────────

// Submit reserves the case's turn slot, claims the queued message, and
// launches asynchronous execution. Returns the turn ID for the 202
// response body.
func (e *TurnExecutor) Submit(ctx context.Context, input TurnInput) (string, error) {
	// 1. Fast-fail if already stopped (avoids unnecessary DB work)
	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return "", ErrShuttingDown
	}
	e.mu.RUnlock()

	turnID := uuid.New().String()

	// 2. Reserve the per-case slot and a pool slot atomically. The same
	// critical section re-checks stopped so Stop() cannot complete
	// wg.Wait() before this turn is tracked.
	turnCtx, cancel := context.WithTimeout(context.Background(), e.execConfig.TurnTimeout)
	e.mu.Lock()
	switch {
	case e.stopped:
		e.mu.Unlock()
		cancel()
		return "", ErrShuttingDown
	case e.hasActiveLocked(input.Case.ID):
		e.mu.Unlock()
		cancel()
		return "", ErrTurnActive
	case len(e.activeExecs) >= e.execConfig.MaxConcurrentTurns:
		e.mu.Unlock()
		cancel()
		return "", ErrQueueFull
	}
	e.activeExecs[input.Case.ID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	// 3. Claim the queued message so a concurrent submission (or another
	// replica polling the same queue) cannot pick it up.
	if err := e.messageService.ClaimQueued(ctx, input.Message.ID); err != nil {
		e.unregisterExecution(input.Case.ID)
		e.wg.Done()
		cancel()
		if errors.Is(err, services.ErrWrongStatus) {
			return "", ErrTurnActive
		}
		return "", fmt.Errorf("failed to claim message: %w", err)
	}

	// 4. Launch goroutine with detached context (not tied to HTTP request lifecycle)
	go e.execute(turnCtx, cancel, input, turnID)

	return turnID, nil
}

func (e *TurnExecutor) hasActiveLocked(caseID string) bool {
	_, ok := e.activeExecs[caseID]
	return ok
}

// ────────────────────────────────────────────────────────────
// execute — async turn flow
// ────────────────────────────────────────────────────────────

func (e *TurnExecutor) execute(ctx context.Context, cancel context.CancelFunc, input TurnInput, turnID string) {
	defer e.wg.Done()
	defer e.unregisterExecution(input.Case.ID)
	defer cancel()

	caseID := input.Case.ID
	logger := slog.With(
		"case_id", caseID,
		"message_id", input.Message.ID,
		"turn_id", turnID,
	)
	logger.Info("Turn executor: starting turn")

	started := time.Now()

	// --- All failure paths must mark the user message failed ---

	// 1. Acquire the case lease. A held lease means another replica is
	// mid-turn on this case; the message fails rather than waits.
	holder := e.execConfig.PodID + "/" + turnID
	lease, err := e.leaseService.Acquire(ctx, caseID, holder)
	if err != nil {
		if errors.Is(err, services.ErrLeaseHeld) {
			logger.Warn("Case lease held by another replica")
			e.failTurn(input.Message.ID, "case is locked by another replica", logger)
			return
		}
		logger.Error("Failed to acquire case lease", "error", err)
		e.failTurn(input.Message.ID, err.Error(), logger)
		return
	}
	defer func() {
		if releaseErr := e.leaseService.Release(context.Background(), lease.ID, holder); releaseErr != nil {
			logger.Warn("Failed to release case lease", "lease_id", lease.ID, "error", releaseErr)
		}
	}()

	// 2. Renew the lease in the background. A lost lease cancels the
	// turn context so the LLM wait aborts before anything is committed.
	var leaseLost atomic.Bool
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.runLeaseHeartbeat(heartbeatCtx, lease.ID, holder, func() {
		leaseLost.Store(true)
		cancel()
	})

	// 3. Announce the turn
	e.publishTurnStarted(ctx, caseID, input.Message.ID)

	// 4. Build the engine's view of the case
	history, err := e.messageService.ConversationHistory(ctx, caseID)
	if err != nil {
		logger.Error("Failed to load conversation history", "error", err)
		e.failTurn(input.Message.ID, err.Error(), logger)
		return
	}

	engineCase := &engine.Case{
		ID:            caseID,
		Title:         input.Case.Title,
		Description:   input.Case.Description,
		Status:        state.CaseStatus(input.Case.Status),
		TemporalState: state.TemporalState(input.Case.TemporalState),
		UrgencyLevel:  state.UrgencyLevel(input.Case.UrgencyLevel),
		Strategy:      state.Strategy(input.Case.Strategy),
		History:       history,
	}

	// 5. Run the engine
	outcome, err := e.engine.ProcessTurn(ctx, engineCase, input.Message.Content)
	if err != nil {
		errMsg := err.Error()
		switch {
		case leaseLost.Load():
			errMsg = "case lease lost mid-turn"
		case ctx.Err() == context.DeadlineExceeded:
			errMsg = fmt.Sprintf("turn timed out after %s", e.execConfig.TurnTimeout)
		case ctx.Err() == context.Canceled:
			errMsg = "turn cancelled"
		}
		logger.Error("Turn failed", "error", err, "error_kind", engine.ErrorKind(err))
		e.failTurn(input.Message.ID, errMsg, logger)
		return
	}

	// 6. Commit the turn: state, case row, both messages, and the audit
	// record in one transaction, fenced on the lease.
	stateJSON, err := json.Marshal(outcome.State)
	if err != nil {
		logger.Error("Failed to serialize investigation state", "error", err)
		e.failTurn(input.Message.ID, "failed to serialize investigation state", logger)
		return
	}

	newStatus := faultcase.Status(outcome.Status)
	turn, _, err := e.turnService.CommitTurn(ctx, services.CommitTurnParams{
		LeaseID:            lease.ID,
		Holder:             holder,
		CaseID:             caseID,
		UserMessageID:      input.Message.ID,
		StateJSON:          string(stateJSON),
		Status:             newStatus,
		EscalationRequired: outcome.EscalationRequired,
		Turn: models.RecordTurnRequest{
			TurnID:              turnID,
			CaseID:              caseID,
			MessageID:           input.Message.ID,
			TurnNumber:          outcome.TurnNumber,
			Outcome:             string(outcome.Outcome),
			ErrorKind:           outcome.ErrorKind,
			Phase:               string(outcome.Phase),
			Intensity:           string(outcome.Intensity),
			ParseTier:           outcome.ParseTier.String(),
			CaseStatus:          string(outcome.Status),
			EscalationRequired:  outcome.EscalationRequired,
			Reply:               outcome.Reply,
			MilestonesCompleted: outcome.MilestonesCompleted,
			HypothesesCreated:   outcome.HypothesesCreated,
			EvidenceAdded:       outcome.EvidenceAdded,
			InputTokens:         outcome.Usage.InputTokens,
			OutputTokens:        outcome.Usage.OutputTokens,
			TotalTokens:         outcome.Usage.TotalTokens,
			DurationMs:          int(time.Since(started).Milliseconds()),
		},
	})
	if err != nil {
		errMsg := err.Error()
		switch {
		case errors.Is(err, services.ErrLeaseLost):
			errMsg = "case lease lost before commit; turn discarded"
		case errors.Is(err, services.ErrCaseClosed):
			errMsg = "case was closed while the turn was running"
		case errors.Is(err, services.ErrAlreadyExists):
			errMsg = "turn number already committed for this case"
		}
		logger.Error("Failed to commit turn", "error", err)
		e.failTurn(input.Message.ID, errMsg, logger)
		return
	}

	// 7. Terminal events and notifications (background context — the
	// turn context may be near its deadline)
	e.publishTurnCompleted(context.Background(), turn, input, outcome)
	if outcome.StatusChanged {
		e.publishCaseStatus(context.Background(), input.Case, newStatus)
	}
	if outcome.EscalationRequired && !input.Case.EscalationRequired {
		e.publishEscalationRequired(context.Background(), input.Case, outcome)
		e.notifyEscalation(input.Case, outcome)
	}

	logger.Info("Turn executor: turn committed",
		"turn_number", outcome.TurnNumber,
		"outcome", outcome.Outcome,
		"case_status", outcome.Status,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// failTurn marks the user message failed so the client sees a terminal
// message status. Used for every path that exits before CommitTurn; an
// uncommitted turn publishes no turn.completed event.
func (e *TurnExecutor) failTurn(messageID, errMsg string, logger *slog.Logger) {
	if err := e.messageService.MarkFailed(context.Background(), messageID, errMsg); err != nil {
		logger.Error("Failed to mark message failed",
			"error", err,
			"original_error", errMsg,
		)
	}
}

// ────────────────────────────────────────────────────────────
// Lease heartbeat
// ────────────────────────────────────────────────────────────

// runLeaseHeartbeat periodically renews the case lease. Renewal failing
// with ErrLeaseLost means another holder fenced us out (or the lease
// expired); the turn is cancelled and nothing will be committed.
// Transient renewal errors are tolerated — the next tick retries.
func (e *TurnExecutor) runLeaseHeartbeat(ctx context.Context, leaseID, holder string, onLost func()) {
	interval := e.execConfig.HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.leaseService.Heartbeat(ctx, leaseID, holder); err != nil {
				if errors.Is(err, services.ErrLeaseLost) {
					slog.Error("Case lease lost mid-turn; cancelling",
						"lease_id", leaseID,
						"holder", holder,
					)
					onLost()
					return
				}
				slog.Warn("Lease heartbeat failed",
					"lease_id", leaseID,
					"error", err,
				)
			}
		}
	}
}

// ────────────────────────────────────────────────────────────
// Event publishing
// ────────────────────────────────────────────────────────────

func (e *TurnExecutor) publishTurnStarted(ctx context.Context, caseID, messageID string) {
	err := e.publisher.PublishTurnStarted(ctx, caseID, events.TurnStartedPayload{
		Type:      events.EventTypeTurnStarted,
		CaseID:    caseID,
		MessageID: messageID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		slog.Warn("Failed to publish turn.started", "case_id", caseID, "error", err)
	}
}

func (e *TurnExecutor) publishTurnCompleted(ctx context.Context, turn *ent.TurnInteraction, input TurnInput, outcome *engine.TurnOutcome) {
	err := e.publisher.PublishTurnCompleted(ctx, input.Case.ID, events.TurnCompletedPayload{
		Type:       events.EventTypeTurnCompleted,
		CaseID:     input.Case.ID,
		TurnID:     turn.ID,
		MessageID:  input.Message.ID,
		TurnNumber: outcome.TurnNumber,
		Outcome:    turninteraction.Outcome(outcome.Outcome),
		ErrorKind:  outcome.ErrorKind,
		Phase:      string(outcome.Phase),
		Reply:      outcome.Reply,
		CaseStatus: faultcase.Status(outcome.Status),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		slog.Warn("Failed to publish turn.completed", "case_id", input.Case.ID, "error", err)
	}
}

func (e *TurnExecutor) publishCaseStatus(ctx context.Context, c *ent.FaultCase, status faultcase.Status) {
	err := e.publisher.PublishCaseStatus(ctx, c.ID, events.CaseStatusPayload{
		Type:      events.EventTypeCaseStatus,
		CaseID:    c.ID,
		Status:    status,
		Title:     c.Title,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		slog.Warn("Failed to publish case.status_changed", "case_id", c.ID, "error", err)
	}
}

func (e *TurnExecutor) publishEscalationRequired(ctx context.Context, c *ent.FaultCase, outcome *engine.TurnOutcome) {
	err := e.publisher.PublishEscalationRequired(ctx, c.ID, events.EscalationRequiredPayload{
		Type:      events.EventTypeEscalationRequired,
		CaseID:    c.ID,
		Title:     c.Title,
		Phase:     string(outcome.Phase),
		Reason:    escalationReason(outcome.State),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		slog.Warn("Failed to publish case.escalation_required", "case_id", c.ID, "error", err)
	}
}

// ────────────────────────────────────────────────────────────
// Escalation notification
// ────────────────────────────────────────────────────────────

// notifyEscalation posts the Slack escalation and stores the returned
// fingerprint on the case so repeat escalations thread under the first
// message. Fail-open throughout; the turn is already committed.
func (e *TurnExecutor) notifyEscalation(c *ent.FaultCase, outcome *engine.TurnOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	hadPrior := c.SlackFingerprint != nil && *c.SlackFingerprint != ""
	problem := ""
	if outcome.State != nil {
		problem = outcome.State.ProblemStatement
	}

	fingerprint := e.notifier.NotifyEscalation(ctx, notify.EscalationInput{
		CaseID:               c.ID,
		Title:                c.Title,
		Phase:                string(outcome.Phase),
		Reason:               escalationReason(outcome.State),
		UrgencyLevel:         c.UrgencyLevel,
		ProblemStatement:     problem,
		HasPriorNotification: hadPrior,
	})
	if fingerprint != "" && !hadPrior {
		if err := e.caseService.SetSlackFingerprint(ctx, c.ID, fingerprint); err != nil {
			slog.Warn("Failed to store Slack fingerprint", "case_id", c.ID, "error", err)
		}
	}
}

// escalationReason words the reason line from the state that raised the
// flag. Degraded mode carries its own reason; otherwise the phase
// loop-back budget ran out.
func escalationReason(st *state.InvestigationState) string {
	if st != nil && st.DegradedMode != nil && st.DegradedMode.Reason != "" {
		return st.DegradedMode.Reason
	}
	return "loop-back budget exhausted"
}

// ────────────────────────────────────────────────────────────
// Cancellation and shutdown
// ────────────────────────────────────────────────────────────

// CancelTurn cancels the active turn for a case on this pod. Returns
// true if an active turn was found and cancelled.
func (e *TurnExecutor) CancelTurn(caseID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if cancel, ok := e.activeExecs[caseID]; ok {
		cancel()
		return true
	}
	return false
}

// ActiveTurns returns the number of in-flight turns on this pod.
func (e *TurnExecutor) ActiveTurns() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeExecs)
}

// Stop rejects new submissions and drains in-flight turns. Turns still
// running when the graceful shutdown window closes are cancelled; their
// messages are marked failed by the usual error path. Safe to call
// multiple times.
func (e *TurnExecutor) Stop() {
	e.mu.Lock()
	alreadyStopped := e.stopped
	e.stopped = true
	if !alreadyStopped {
		close(e.stopCh)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(e.execConfig.GracefulShutdownTimeout):
	}

	e.mu.RLock()
	active := len(e.activeExecs)
	for _, cancelTurn := range e.activeExecs {
		cancelTurn()
	}
	e.mu.RUnlock()
	slog.Warn("Shutdown grace period expired; cancelling in-flight turns", "active_turns", active)

	<-done
}

// ────────────────────────────────────────────────────────────
// Health
// ────────────────────────────────────────────────────────────

// Health reports this pod's executor state for the health endpoint.
func (e *TurnExecutor) Health(ctx context.Context) ExecutorHealth {
	h := ExecutorHealth{
		PodID:         e.execConfig.PodID,
		ActiveTurns:   e.ActiveTurns(),
		MaxConcurrent: e.execConfig.MaxConcurrentTurns,
	}

	if err := e.db.DB().PingContext(ctx); err != nil {
		h.DBError = err.Error()
	} else {
		h.DBReachable = true
	}

	e.orphans.mu.Lock()
	h.LastOrphanScan = e.orphans.lastScan
	h.LeasesSwept = e.orphans.leasesSwept
	h.MessagesFailed = e.orphans.messagesFailed
	e.orphans.mu.Unlock()

	h.IsHealthy = h.DBReachable
	return h
}

// ────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────

// unregisterExecution removes a turn from tracking.
func (e *TurnExecutor) unregisterExecution(caseID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.activeExecs, caseID)
}
