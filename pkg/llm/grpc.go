package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	llmv1 "github.com/faultmaven/faultmaven/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GRPCProvider implements Provider by calling the Python LLM service.
type GRPCProvider struct {
	conn   *grpc.ClientConn
	client llmv1.LLMServiceClient
}

// NewGRPCProvider connects to the LLM service at addr.
func NewGRPCProvider(addr string) (*GRPCProvider, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to LLM service at %s: %w", addr, err)
	}
	return &GRPCProvider{
		conn:   conn,
		client: llmv1.NewLLMServiceClient(conn),
	}, nil
}

// Chat sends the conversation and assembles the streamed chunks into a
// single response. Usage and thinking chunks are folded in when the backend
// emits them.
func (p *GRPCProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	stream, err := p.client.Generate(ctx, toProtoRequest(req))
	if err != nil {
		return nil, fmt.Errorf("%w: generate call: %v", ErrUnavailable, err)
	}

	var text, thinking strings.Builder
	var usage Usage

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stream recv: %v", ErrUnavailable, err)
		}

		switch c := resp.Content.(type) {
		case *llmv1.GenerateResponse_Text:
			text.WriteString(c.Text.Content)
		case *llmv1.GenerateResponse_Thinking:
			thinking.WriteString(c.Thinking.Content)
		case *llmv1.GenerateResponse_Usage:
			usage = Usage{
				InputTokens:    int(c.Usage.InputTokens),
				OutputTokens:   int(c.Usage.OutputTokens),
				TotalTokens:    int(c.Usage.TotalTokens),
				ThinkingTokens: int(c.Usage.ThinkingTokens),
			}
		case *llmv1.GenerateResponse_Error:
			if c.Error.Retryable {
				return nil, fmt.Errorf("%w: %s", ErrUnavailable, c.Error.Message)
			}
			return nil, &ProviderError{Code: c.Error.Code, Message: c.Error.Message}
		default:
			slog.Debug("ignoring unknown chunk type from LLM service",
				"case_id", req.CaseID, "turn_id", req.TurnID)
		}
	}

	if text.Len() == 0 {
		return nil, ErrEmptyCompletion
	}

	return &ChatResponse{
		Text:     text.String(),
		Thinking: thinking.String(),
		Usage:    usage,
	}, nil
}

// State reports the transport connectivity for health checks without
// issuing an RPC. grpc.NewClient dials lazily, so IDLE is normal before
// the first turn.
func (p *GRPCProvider) State() string {
	return p.conn.GetState().String()
}

// Close releases the gRPC connection.
func (p *GRPCProvider) Close() error {
	return p.conn.Close()
}

func toProtoRequest(req *ChatRequest) *llmv1.GenerateRequest {
	out := &llmv1.GenerateRequest{
		CaseId:   req.CaseID,
		TurnId:   req.TurnID,
		Messages: make([]*llmv1.ConversationMessage, len(req.Messages)),
		Model:    req.Model,
	}
	for i, m := range req.Messages {
		out.Messages[i] = &llmv1.ConversationMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = req.MaxTokens
	}
	if req.ResponseFormat != "" {
		out.ResponseFormat = &req.ResponseFormat
	}
	return out
}
