package notify

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// EscalationInput contains data for an escalation notification.
type EscalationInput struct {
	CaseID           string
	Title            string
	Phase            string // investigation phase the case is stuck in
	Reason           string // loop-back budget exhausted, degraded mode
	UrgencyLevel     string // CRITICAL, HIGH, MEDIUM, LOW (may be empty pre-investigation)
	ProblemStatement string

	// HasPriorNotification is true when the case already carries a Slack
	// fingerprint, meaning an earlier escalation was posted. Follow-ups
	// thread under it instead of re-alerting the channel.
	HasPriorNotification bool
}

// Service handles Slack escalation notification delivery.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyEscalation posts an escalation summary to the configured channel.
// Returns the case fingerprint so the caller can store it on the case;
// returns empty string when the service is disabled.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyEscalation(ctx context.Context, input EscalationInput) string {
	if s == nil {
		return ""
	}

	fingerprint := CaseFingerprint(input.CaseID)

	threadTS := ""
	if input.HasPriorNotification {
		var err error
		threadTS, err = s.client.FindMessageByFingerprint(ctx, fingerprint)
		if err != nil {
			s.logger.Warn("Failed to find Slack thread for case",
				"case_id", input.CaseID,
				"fingerprint", fingerprint,
				"error", err)
		}
	}

	blocks := BuildEscalationMessage(input, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, EscalationFallback(input), threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack escalation notification",
			"case_id", input.CaseID,
			"error", err)
	}

	return fingerprint
}
