package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/faultmaven/faultmaven/ent"
	"github.com/faultmaven/faultmaven/ent/casemessage"
	"github.com/faultmaven/faultmaven/ent/faultcase"
	"github.com/faultmaven/faultmaven/pkg/llm"
	"github.com/faultmaven/faultmaven/pkg/models"
	"github.com/google/uuid"
)

// MessageService manages the user/assistant conversation on a case.
// User messages are accepted as queued and flipped to processing by the
// turn executor; the matching assistant message is written by CommitTurn.
type MessageService struct {
	client *ent.Client
}

// NewMessageService creates a new MessageService
func NewMessageService(client *ent.Client) *MessageService {
	return &MessageService{client: client}
}

// AddUserMessage persists a queued user message after checking the case
// accepts input. The turn itself runs asynchronously.
func (s *MessageService) AddUserMessage(httpCtx context.Context, req models.AddMessageRequest) (*ent.CaseMessage, error) {
	if req.CaseID == "" {
		return nil, NewValidationError("case_id", "required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, NewValidationError("content", "required")
	}

	c, err := s.client.FaultCase.Get(httpCtx, req.CaseID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	if c.Status == faultcase.StatusClosed {
		return nil, ErrCaseClosed
	}

	// Use background context with timeout for critical write
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	builder := s.client.CaseMessage.Create().
		SetID(uuid.New().String()).
		SetCaseID(req.CaseID).
		SetRole(casemessage.RoleUser).
		SetContent(req.Content).
		SetStatus(casemessage.StatusQueued)
	if req.Author != "" {
		builder.SetAuthor(req.Author)
	}

	msg, err := builder.Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

// ListMessages returns a case's conversation in chronological order
func (s *MessageService) ListMessages(ctx context.Context, caseID string) (*models.MessageListResponse, error) {
	messages, err := s.client.CaseMessage.Query().
		Where(casemessage.CaseIDEQ(caseID)).
		Order(ent.Asc(casemessage.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return &models.MessageListResponse{Messages: messages}, nil
}

// ConversationHistory returns the completed conversation as LLM messages,
// oldest first. Queued, processing and failed messages are excluded: the
// engine only sees turns that actually committed.
func (s *MessageService) ConversationHistory(ctx context.Context, caseID string) ([]llm.Message, error) {
	messages, err := s.client.CaseMessage.Query().
		Where(
			casemessage.CaseIDEQ(caseID),
			casemessage.StatusEQ(casemessage.StatusCompleted),
		).
		Order(ent.Asc(casemessage.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	history := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		role := llm.RoleUser
		if m.Role == casemessage.RoleAssistant {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: m.Content})
	}

	return history, nil
}

// ClaimQueued flips a message from queued to processing. Returns
// ErrWrongStatus when the message was already claimed or finished.
func (s *MessageService) ClaimQueued(ctx context.Context, messageID string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := s.client.CaseMessage.Update().
		Where(
			casemessage.IDEQ(messageID),
			casemessage.StatusEQ(casemessage.StatusQueued),
		).
		SetStatus(casemessage.StatusProcessing).
		Save(writeCtx)
	if err != nil {
		return fmt.Errorf("failed to claim message: %w", err)
	}
	if n == 0 {
		exists, err := s.client.CaseMessage.Query().
			Where(casemessage.IDEQ(messageID)).
			Exist(ctx)
		if err != nil {
			return fmt.Errorf("failed to check message: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrWrongStatus
	}

	return nil
}

// MarkFailed records a terminal failure on a message. Uses a background
// context so the write survives caller cancellation.
func (s *MessageService) MarkFailed(_ context.Context, messageID, errorMessage string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.CaseMessage.UpdateOneID(messageID).
		SetStatus(casemessage.StatusFailed).
		SetErrorMessage(errorMessage).
		Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	return nil
}

// DeleteMessage removes a message outright. Used to clean up a queued
// message whose turn submission was rejected, so it cannot linger as an
// unclaimable orphan.
func (s *MessageService) DeleteMessage(_ context.Context, messageID string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.CaseMessage.DeleteOneID(messageID).Exec(writeCtx)
	if err != nil {
		if ent.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

// FailStuckProcessing fails processing messages older than the threshold.
// A message only stays in processing while its worker is alive and
// heartbeating, so anything old enough belongs to a crashed worker.
func (s *MessageService) FailStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.client.CaseMessage.Update().
		Where(
			casemessage.StatusEQ(casemessage.StatusProcessing),
			casemessage.CreatedAtLT(cutoff),
		).
		SetStatus(casemessage.StatusFailed).
		SetErrorMessage("worker lost while processing this message").
		Save(writeCtx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck messages: %w", err)
	}

	return count, nil
}
